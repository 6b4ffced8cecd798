package domain

import (
	"fmt"
	"strings"
	"time"
)

// GatewayEvent — нормализованное платёжное событие, уже прошедшее проверку
// подписи и разбор формата конкретного шлюза.
type GatewayEvent struct {
	Gateway       string
	Reference     string
	TransactionID string
	Outcome       PaymentOutcome
	Status        string
	AmountMinor   int64
	PayerEmail    string
	OccurredAt    time.Time
}

// Validate проверяет обязательные поля события.
func (e GatewayEvent) Validate() error {
	if e.TransactionID == "" {
		return ErrTransactionIDRequired
	}
	if e.Outcome != PaymentOutcomeSucceeded && e.Outcome != PaymentOutcomeFailed {
		return ErrPaymentOutcomeInvalid
	}
	if _, err := OrderIDFromReference(e.Reference); err != nil {
		return err
	}
	return nil
}

// Result приводит событие к записываемому в заказ результату.
func (e GatewayEvent) Result() PaymentResult {
	return PaymentResult{
		TransactionID: e.TransactionID,
		Gateway:       e.Gateway,
		Status:        e.Status,
		UpdateTime:    e.OccurredAt,
		PayerEmail:    e.PayerEmail,
	}
}

const referencePrefix = "ord"

// NewPaymentReference собирает платёжную ссылку формата ord_<orderID>_<nonce>.
func NewPaymentReference(orderID, nonce string) string {
	return fmt.Sprintf("%s_%s_%s", referencePrefix, orderID, nonce)
}

// OrderIDFromReference извлекает идентификатор заказа из платёжной ссылки.
// Формат ord_<orderID>_<nonce>; orderID сам не содержит подчёркиваний.
func OrderIDFromReference(reference string) (string, error) {
	parts := strings.Split(reference, "_")
	if len(parts) != 3 || parts[0] != referencePrefix || parts[1] == "" || parts[2] == "" {
		return "", fmt.Errorf("%w: %q", ErrPaymentReferenceInvalid, reference)
	}
	return parts[1], nil
}
