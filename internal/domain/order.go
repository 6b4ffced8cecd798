package domain

import (
	"fmt"
	"time"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, сток зарезервирован, оплата ещё не подтверждена.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing — заказ в обработке (как правило, после подтверждения оплаты).
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusDelivered — заказ доставлен покупателю; терминальный статус.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён, резерв возвращён на склад; терминальный статус.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal сообщает, является ли статус конечным.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// allowedTransitions задаёт разрешённые переходы статусов.
// Флаг оплаты ортогонален статусу и не участвует в этой таблице.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusDelivered, OrderStatusCancelled},
}

// LineItem представляет одну позицию заказа.
// Цена — снимок каталожной цены на момент оформления, после создания не меняется.
type LineItem struct {
	ID         string
	ProductID  string
	Qty        int32
	PriceMinor int64
	CreatedAt  time.Time
}

// PaymentResult хранит результат последнего платёжного события по заказу.
type PaymentResult struct {
	// TransactionID — идентификатор транзакции на стороне шлюза (ключ идемпотентности).
	TransactionID string
	Gateway       string
	Status        string
	UpdateTime    time.Time
	PayerEmail    string
}

// Empty сообщает, было ли по заказу хотя бы одно платёжное событие.
func (r PaymentResult) Empty() bool {
	return r.TransactionID == "" && r.Status == ""
}

// PaymentOutcome — нормализованный исход платёжного события.
type PaymentOutcome string

const (
	PaymentOutcomeSucceeded PaymentOutcome = "succeeded"
	PaymentOutcomeFailed    PaymentOutcome = "failed"
)

// Order агрегирует состояние заказа, его позиции и платёжный результат.
type Order struct {
	ID       string
	UserID   string
	Status   OrderStatus
	Currency string
	Items    []LineItem

	// Суммы фиксируются при создании и далее неизменяемы.
	TotalMinor    int64
	TaxMinor      int64
	ShippingMinor int64

	ShippingAddress string
	PaymentMethod   string

	IsPaid        bool
	PaidAt        time.Time
	DeliveredAt   time.Time
	PaymentResult PaymentResult

	// StockReleased защищает от повторного возврата резерва при retry отмены.
	StockReleased bool

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.TaxMinor < 0 || o.ShippingMinor < 0 || o.TotalMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем итог с суммой позиций, налогом и доставкой.
	var itemsSum int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		itemsSum += int64(item.Qty) * item.PriceMinor
	}
	if len(o.Items) > 0 && itemsSum+o.TaxMinor+o.ShippingMinor != o.TotalMinor {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}

// CanTransitionTo проверяет допустимость перехода в статус next.
func (o *Order) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range allowedTransitions[o.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// invalidTransition формирует ошибку с текущим и запрошенным статусами.
func (o *Order) invalidTransition(next OrderStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
}

// MarkDelivered переводит заказ в delivered и один раз фиксирует DeliveredAt.
func (o *Order) MarkDelivered(now time.Time) error {
	if !o.CanTransitionTo(OrderStatusDelivered) {
		return o.invalidTransition(OrderStatusDelivered)
	}
	o.Status = OrderStatusDelivered
	if o.DeliveredAt.IsZero() {
		o.DeliveredAt = now
	}
	o.UpdatedAt = now
	return nil
}

// MarkCancelled переводит заказ в cancelled. Повторная отмена уже отменённого
// заказа обрабатывается вызывающей стороной как no-op.
func (o *Order) MarkCancelled(now time.Time) error {
	if !o.CanTransitionTo(OrderStatusCancelled) {
		return o.invalidTransition(OrderStatusCancelled)
	}
	o.Status = OrderStatusCancelled
	o.UpdatedAt = now
	return nil
}

// ApplyPayment идемпотентно применяет платёжное событие к заказу.
// Возвращает true, если состояние заказа изменилось.
//
// Правила:
//   - успешное событие переводит неоплаченный pending/processing заказ в оплаченный,
//     PaidAt фиксируется только при первом переходе;
//   - повтор события с тем же TransactionID ничего не меняет;
//   - PaymentResult перезаписывается только строго более поздним событием;
//   - неуспешное событие никогда не снимает флаг оплаты и не трогает статус.
func (o *Order) ApplyPayment(result PaymentResult, outcome PaymentOutcome, now time.Time) (bool, error) {
	switch outcome {
	case PaymentOutcomeSucceeded:
		return o.applyPaymentSuccess(result, now)
	case PaymentOutcomeFailed:
		return o.applyPaymentFailure(result, now), nil
	default:
		return false, ErrPaymentOutcomeInvalid
	}
}

func (o *Order) applyPaymentSuccess(result PaymentResult, now time.Time) (bool, error) {
	if o.IsPaid {
		if result.TransactionID == o.PaymentResult.TransactionID {
			// Повторная доставка того же события — no-op.
			return false, nil
		}
		if !o.resultSupersedes(result) {
			return false, nil
		}
		o.PaymentResult = result
		o.UpdatedAt = now
		return true, nil
	}

	if o.Status != OrderStatusPending && o.Status != OrderStatusProcessing {
		return false, o.invalidTransition(OrderStatusProcessing)
	}

	o.IsPaid = true
	if o.PaidAt.IsZero() {
		o.PaidAt = now
	}
	o.PaymentResult = result
	if o.Status == OrderStatusPending {
		o.Status = OrderStatusProcessing
	}
	o.UpdatedAt = now
	return true, nil
}

func (o *Order) applyPaymentFailure(result PaymentResult, now time.Time) bool {
	// Оплаченный заказ не деградирует: failed после succeeded игнорируется.
	if o.IsPaid {
		return false
	}
	if !o.PaymentResult.Empty() && !o.resultSupersedes(result) {
		return false
	}
	o.PaymentResult = result
	o.UpdatedAt = now
	return true
}

// resultSupersedes проверяет, что событие строго позже уже записанного результата.
func (o *Order) resultSupersedes(result PaymentResult) bool {
	if o.PaymentResult.Empty() {
		return true
	}
	return result.UpdateTime.After(o.PaymentResult.UpdateTime)
}
