package domain

import "time"

// BatchLine описывает одну строку пакетного резерва/возврата.
type BatchLine struct {
	ProductID string
	Qty       int32
}

// InventoryLedger описывает взаимодействие со складским остатком.
type InventoryLedger interface {
	// Reserve атомарно уменьшает остаток товара; остаток никогда не уходит в минус.
	Reserve(productID string, qty int32) error
	// Release возвращает количество на остаток. Неизвестный товар — no-op
	// (резерв мог пережить удаление товара из каталога).
	Release(productID string, qty int32) error
	// ReserveBatch резервирует все строки или ни одной: при первой нехватке
	// уже зарезервированные строки возвращаются, ошибка называет товар.
	ReserveBatch(lines []BatchLine) error
	// ReleaseBatch возвращает все строки на остаток.
	ReleaseBatch(lines []BatchLine) error
}

// CatalogService отдаёт данные каталога, нужные для оформления заказа.
type CatalogService interface {
	GetProduct(productID string) (Product, error)
}

// CartService очищает корзину покупателя после успешного оформления.
type CartService interface {
	ClearCart(userID string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
