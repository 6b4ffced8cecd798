package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
)

func TestPaymentReferenceRoundtrip(t *testing.T) {
	reference := domain.NewPaymentReference("a1b2c3", "n0nce")
	if reference != "ord_a1b2c3_n0nce" {
		t.Fatalf("unexpected reference: %s", reference)
	}

	orderID, err := domain.OrderIDFromReference(reference)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if orderID != "a1b2c3" {
		t.Fatalf("expected a1b2c3, got %s", orderID)
	}
}

func TestOrderIDFromReference_Invalid(t *testing.T) {
	cases := []string{
		"",
		"ord_only-two",
		"pay_a1b2c3_nonce",
		"ord__nonce",
		"ord_a1b2c3_",
		"ord_a_b_c",
	}

	for _, reference := range cases {
		if _, err := domain.OrderIDFromReference(reference); !errors.Is(err, domain.ErrPaymentReferenceInvalid) {
			t.Fatalf("reference %q: expected ErrPaymentReferenceInvalid, got %v", reference, err)
		}
	}
}

func TestGatewayEventValidate(t *testing.T) {
	event := domain.GatewayEvent{
		Gateway:       "paystack",
		Reference:     domain.NewPaymentReference("a1b2c3", "nonce"),
		TransactionID: "tx-1",
		Outcome:       domain.PaymentOutcomeSucceeded,
		OccurredAt:    time.Now().UTC(),
	}
	if err := event.Validate(); err != nil {
		t.Fatalf("expected valid event, got %v", err)
	}

	noTx := event
	noTx.TransactionID = ""
	if err := noTx.Validate(); !errors.Is(err, domain.ErrTransactionIDRequired) {
		t.Fatalf("expected ErrTransactionIDRequired, got %v", err)
	}

	badOutcome := event
	badOutcome.Outcome = "chargeback"
	if err := badOutcome.Validate(); !errors.Is(err, domain.ErrPaymentOutcomeInvalid) {
		t.Fatalf("expected ErrPaymentOutcomeInvalid, got %v", err)
	}

	badRef := event
	badRef.Reference = "not-a-reference"
	if err := badRef.Validate(); !errors.Is(err, domain.ErrPaymentReferenceInvalid) {
		t.Fatalf("expected ErrPaymentReferenceInvalid, got %v", err)
	}
}

func TestGatewayEventResult(t *testing.T) {
	at := time.Now().UTC()
	event := domain.GatewayEvent{
		Gateway:       "mock",
		TransactionID: "tx-9",
		Status:        "success",
		PayerEmail:    "buyer@example.com",
		OccurredAt:    at,
	}

	result := event.Result()
	if result.TransactionID != "tx-9" || result.Gateway != "mock" || !result.UpdateTime.Equal(at) {
		t.Fatalf("unexpected result: %+v", result)
	}
}
