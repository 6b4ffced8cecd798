package reconciler_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
	"github.com/vladislavdragonenkov/shopcore/internal/gateway/mock"
	"github.com/vladislavdragonenkov/shopcore/internal/service/reconciler"
	"github.com/vladislavdragonenkov/shopcore/internal/storage/memory"
)

type fixture struct {
	reconciler *reconciler.Reconciler
	repo       domain.OrderRepository
	gateway    *mock.Adapter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := memory.NewOrderRepository()
	rec := reconciler.New(
		repo,
		memory.NewIdempotencyRepository(),
		memory.NewOutboxRepository(),
		memory.NewTimelineRepository(),
	)
	gateway := mock.New("test-secret")
	rec.Register(gateway)

	return &fixture{reconciler: rec, repo: repo, gateway: gateway}
}

// seedOrder кладёт pending-заказ прямо в репозиторий.
func seedOrder(t *testing.T, f *fixture, id string) domain.Order {
	t.Helper()
	now := time.Now().UTC()
	order, err := f.repo.Create(domain.Order{
		ID:         id,
		UserID:     "buyer-1",
		Status:     domain.OrderStatusPending,
		Currency:   "NGN",
		TotalMinor: 500,
		Items: []domain.LineItem{
			{ID: "item-1", ProductID: "product-1", Qty: 5, PriceMinor: 100, CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func successEvent(orderID, txID string, at time.Time) domain.GatewayEvent {
	return domain.GatewayEvent{
		Gateway:       "mock",
		Reference:     domain.NewPaymentReference(orderID, "n1"),
		TransactionID: txID,
		Outcome:       domain.PaymentOutcomeSucceeded,
		Status:        "success",
		AmountMinor:   500,
		PayerEmail:    "buyer@example.com",
		OccurredAt:    at,
	}
}

func TestApply_Success(t *testing.T) {
	f := newFixture(t)
	order := seedOrder(t, f, "order1")

	if err := f.reconciler.Apply(successEvent(order.ID, "tx-1", time.Now().UTC())); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	updated, err := f.repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !updated.IsPaid || updated.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected paid processing order, got paid=%v status=%s", updated.IsPaid, updated.Status)
	}
	if updated.PaidAt.IsZero() {
		t.Fatalf("expected PaidAt to be stamped")
	}
	if updated.PaymentResult.TransactionID != "tx-1" {
		t.Fatalf("expected tx-1, got %s", updated.PaymentResult.TransactionID)
	}
}

func TestApply_DuplicateTransactionID(t *testing.T) {
	f := newFixture(t)
	order := seedOrder(t, f, "order1")
	event := successEvent(order.ID, "tx-1", time.Now().UTC())

	if err := f.reconciler.Apply(event); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}
	afterFirst, _ := f.repo.Get(order.ID)

	// Повторная доставка того же события не меняет заказ.
	if err := f.reconciler.Apply(event); err != nil {
		t.Fatalf("second apply failed: %v", err)
	}
	afterSecond, _ := f.repo.Get(order.ID)
	if afterSecond.Version != afterFirst.Version {
		t.Fatalf("duplicate must not touch the order: version %d -> %d", afterFirst.Version, afterSecond.Version)
	}
}

func TestApply_FailedAfterSucceededIgnored(t *testing.T) {
	f := newFixture(t)
	order := seedOrder(t, f, "order1")
	base := time.Now().UTC()

	if err := f.reconciler.Apply(successEvent(order.ID, "tx-1", base)); err != nil {
		t.Fatalf("success apply failed: %v", err)
	}

	failed := successEvent(order.ID, "tx-2", base.Add(time.Minute))
	failed.Outcome = domain.PaymentOutcomeFailed
	failed.Status = "failed"
	if err := f.reconciler.Apply(failed); err != nil {
		t.Fatalf("failed apply returned error: %v", err)
	}

	updated, _ := f.repo.Get(order.ID)
	if !updated.IsPaid {
		t.Fatalf("failed event must not clear the paid flag")
	}
	if updated.PaymentResult.TransactionID != "tx-1" {
		t.Fatalf("payment result must stay tx-1, got %s", updated.PaymentResult.TransactionID)
	}
}

func TestApply_OutOfOrderEvents(t *testing.T) {
	f := newFixture(t)
	order := seedOrder(t, f, "order1")
	base := time.Now().UTC()

	if err := f.reconciler.Apply(successEvent(order.ID, "tx-late", base)); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	// Событие, случившееся раньше уже применённого, игнорируется.
	stale := successEvent(order.ID, "tx-early", base.Add(-time.Hour))
	if err := f.reconciler.Apply(stale); err != nil {
		t.Fatalf("stale apply returned error: %v", err)
	}

	updated, _ := f.repo.Get(order.ID)
	if updated.PaymentResult.TransactionID != "tx-late" {
		t.Fatalf("expected tx-late to remain, got %s", updated.PaymentResult.TransactionID)
	}
}

func TestApply_UnknownOrder(t *testing.T) {
	f := newFixture(t)
	err := f.reconciler.Apply(successEvent("missing", "tx-1", time.Now().UTC()))
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestApply_BadReference(t *testing.T) {
	f := newFixture(t)
	event := successEvent("order1", "tx-1", time.Now().UTC())
	event.Reference = "garbage"
	if err := f.reconciler.Apply(event); !errors.Is(err, domain.ErrPaymentReferenceInvalid) {
		t.Fatalf("expected ErrPaymentReferenceInvalid, got %v", err)
	}
}

func webhookBody(t *testing.T, orderID, txID, outcome string, at time.Time) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"reference":      domain.NewPaymentReference(orderID, "n1"),
		"transaction_id": txID,
		"outcome":        outcome,
		"status":         outcome,
		"amount_minor":   500,
		"occurred_at":    at.Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("marshal webhook body: %v", err)
	}
	return body
}

func TestHandleWebhook_Success(t *testing.T) {
	f := newFixture(t)
	order := seedOrder(t, f, "order1")

	body := webhookBody(t, order.ID, "tx-1", "succeeded", time.Now().UTC())
	if err := f.reconciler.HandleWebhook("mock", body, f.gateway.Sign(body)); err != nil {
		t.Fatalf("webhook failed: %v", err)
	}

	updated, _ := f.repo.Get(order.ID)
	if !updated.IsPaid {
		t.Fatalf("expected order to be paid")
	}
}

func TestHandleWebhook_BadSignatureMutatesNothing(t *testing.T) {
	f := newFixture(t)
	order := seedOrder(t, f, "order1")

	body := webhookBody(t, order.ID, "tx-1", "succeeded", time.Now().UTC())
	err := f.reconciler.HandleWebhook("mock", body, "deadbeef")
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	updated, _ := f.repo.Get(order.ID)
	if updated.IsPaid || updated.Version != order.Version {
		t.Fatalf("order must be untouched after bad signature: %+v", updated)
	}
}

func TestHandleWebhook_UnknownGateway(t *testing.T) {
	f := newFixture(t)
	err := f.reconciler.HandleWebhook("stripe", []byte(`{}`), "sig")
	if !errors.Is(err, domain.ErrGatewayUnknown) {
		t.Fatalf("expected ErrGatewayUnknown, got %v", err)
	}
}

// brokenSaveRepo отказывает первым failures сохранениям заказа.
type brokenSaveRepo struct {
	domain.OrderRepository
	failures int
}

func (r *brokenSaveRepo) Save(order domain.Order) (domain.Order, error) {
	if r.failures > 0 {
		r.failures--
		return domain.Order{}, errors.New("storage unavailable")
	}
	return r.OrderRepository.Save(order)
}

func TestApply_RedeliveryAfterInternalFailure(t *testing.T) {
	base := memory.NewOrderRepository()
	repo := &brokenSaveRepo{OrderRepository: base, failures: 1}
	rec := reconciler.New(
		repo,
		memory.NewIdempotencyRepository(),
		memory.NewOutboxRepository(),
		memory.NewTimelineRepository(),
	)

	now := time.Now().UTC()
	order, err := base.Create(domain.Order{
		ID:         "order1",
		UserID:     "buyer-1",
		Status:     domain.OrderStatusPending,
		Currency:   "NGN",
		TotalMinor: 500,
		Items: []domain.LineItem{
			{ID: "item-1", ProductID: "product-1", Qty: 5, PriceMinor: 100, CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}

	event := successEvent(order.ID, "tx-1", now)
	if err := rec.Apply(event); err == nil {
		t.Fatal("expected error while storage is unavailable")
	}

	// Повторная доставка того же события — не дубликат: оплата доводится до конца.
	if err := rec.Apply(event); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}

	updated, err := base.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if !updated.IsPaid {
		t.Fatal("expected order paid after redelivery")
	}
	if updated.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected processing, got %s", updated.Status)
	}
	if updated.PaymentResult.TransactionID != "tx-1" {
		t.Fatalf("expected tx-1, got %s", updated.PaymentResult.TransactionID)
	}
}
