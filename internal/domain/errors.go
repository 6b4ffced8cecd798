package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора покупателя.
	ErrUserRequired = errors.New("user_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия итога заказа и сумм позиций с налогом и доставкой.
	ErrTotalMismatch = errors.New("order total does not match items sum")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrInvalidTransition — запрошенный переход статуса недопустим.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrForbidden — у действующего лица нет прав на операцию.
	ErrForbidden = errors.New("operation forbidden for actor")

	// ErrProductNotFound возвращается каталогом и складом для неизвестного товара.
	ErrProductNotFound = errors.New("product not found")
	// ErrInsufficientStock — на складе недостаточно остатка для резерва.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidSignature — подпись webhook не прошла проверку.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrGatewayUnknown — платёжный шлюз не зарегистрирован.
	ErrGatewayUnknown = errors.New("unknown payment gateway")
	// ErrPaymentReferenceInvalid — платёжная ссылка не соответствует формату ord_<orderID>_<nonce>.
	ErrPaymentReferenceInvalid = errors.New("invalid payment reference")
	// ErrPaymentOutcomeInvalid — неизвестный исход платёжного события.
	ErrPaymentOutcomeInvalid = errors.New("invalid payment outcome")
	// ErrGatewayEventIgnored — тип события шлюза не относится к платежам; webhook подтверждается без обработки.
	ErrGatewayEventIgnored = errors.New("gateway event ignored")
	// ErrTransactionIDRequired — платёжное событие без идентификатора транзакции.
	ErrTransactionIDRequired = errors.New("transaction_id is required")

	// ErrIdempotencyKeyRequired — пустой ключ идемпотентности.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой hash тела запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже занят (повтор того же запроса).
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyKeyNotFound — запись по ключу отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency record not found")
	// ErrIdempotencyHashMismatch — тот же ключ с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsValidation сообщает, относится ли ошибка к нарушению инвариантов заказа.
func IsValidation(err error) bool {
	switch {
	case errors.Is(err, ErrUserRequired),
		errors.Is(err, ErrCurrencyRequired),
		errors.Is(err, ErrItemsRequired),
		errors.Is(err, ErrAmountNegative),
		errors.Is(err, ErrItemQtyInvalid),
		errors.Is(err, ErrItemPriceInvalid),
		errors.Is(err, ErrTotalMismatch),
		errors.Is(err, ErrPaymentReferenceInvalid),
		errors.Is(err, ErrTransactionIDRequired):
		return true
	default:
		return false
	}
}
