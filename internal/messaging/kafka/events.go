package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// Order события
	EventTypeOrderPlaced    EventType = "order.placed"
	EventTypeOrderPaid      EventType = "order.paid"
	EventTypeOrderDelivered EventType = "order.delivered"
	EventTypeOrderCancelled EventType = "order.cancelled"

	// Payment события
	EventTypePaymentApplied EventType = "payment.applied"
	EventTypePaymentFailed  EventType = "payment.failed"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "shop.order.events"
	TopicPaymentEvents   = "shop.payment.events"
	TopicDeadLetterQueue = "shop.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent представляет событие заказа
type OrderEvent struct {
	EventType EventType              `json:"event_type"`
	OrderID   string                 `json:"order_id"`
	UserID    string                 `json:"user_id"`
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// PaymentEvent представляет событие платёжной сверки
type PaymentEvent struct {
	EventType     EventType              `json:"event_type"`
	OrderID       string                 `json:"order_id"`
	Gateway       string                 `json:"gateway"`
	TransactionID string                 `json:"transaction_id"`
	Outcome       string                 `json:"outcome"`
	Timestamp     time.Time              `json:"timestamp"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID, userID, status string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType: eventType,
		OrderID:   orderID,
		UserID:    userID,
		Status:    status,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}

// NewPaymentEvent создает новое событие платёжной сверки
func NewPaymentEvent(eventType EventType, orderID, gateway, transactionID, outcome string, metadata map[string]interface{}) *PaymentEvent {
	return &PaymentEvent{
		EventType:     eventType,
		OrderID:       orderID,
		Gateway:       gateway,
		TransactionID: transactionID,
		Outcome:       outcome,
		Timestamp:     time.Now(),
		Metadata:      metadata,
	}
}
