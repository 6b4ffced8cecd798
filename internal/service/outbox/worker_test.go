package outbox_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
	"github.com/vladislavdragonenkov/shopcore/internal/service/outbox"
	"github.com/vladislavdragonenkov/shopcore/internal/storage/memory"
)

// stubPublisher считает публикации и может возвращать ошибку.
type stubPublisher struct {
	mu     sync.Mutex
	events []domain.OutboxMessage
	err    error
}

func (p *stubPublisher) Publish(event domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *stubPublisher) published() []domain.OutboxMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.OutboxMessage(nil), p.events...)
}

func enqueue(t *testing.T, repo domain.OutboxRepository) domain.OutboxMessage {
	t.Helper()
	msg, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     "OrderPlaced",
		Payload:       []byte(`{"order_id":"order-1"}`),
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	return msg
}

func TestWorker_ProcessOncePublishes(t *testing.T) {
	repo := memory.NewOutboxRepository()
	publisher := &stubPublisher{}
	worker := outbox.NewWorker(repo, publisher)

	enqueue(t, repo)
	worker.ProcessOnce(context.Background())

	if got := publisher.published(); len(got) != 1 || got[0].EventType != "OrderPlaced" {
		t.Fatalf("expected one published event, got %+v", got)
	}

	pending, err := repo.PullPending(10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("published message must be marked sent, backlog %+v", pending)
	}
}

func TestWorker_FailedPublishGoesToDLQ(t *testing.T) {
	repo := memory.NewOutboxRepository()
	publisher := &stubPublisher{err: errors.New("broker unavailable")}
	dlq := &stubPublisher{}
	worker := outbox.NewWorker(repo, publisher,
		outbox.WithDLQPublisher(dlq),
		outbox.WithMaxAttempts(2),
		outbox.WithRetryBaseDelay(0),
	)

	msg := enqueue(t, repo)
	worker.ProcessOnce(context.Background())

	dlqEvents := dlq.published()
	if len(dlqEvents) != 1 {
		t.Fatalf("expected one DLQ event, got %d", len(dlqEvents))
	}
	if dlqEvents[0].ID != msg.ID {
		t.Fatalf("DLQ event must keep the outbox id, got %s", dlqEvents[0].ID)
	}

	pending, err := repo.PullPending(10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("failed message must leave the pending backlog, got %+v", pending)
	}
}

func TestWorker_RetriesBeforeDLQ(t *testing.T) {
	repo := memory.NewOutboxRepository()

	// Публикация падает один раз, затем проходит.
	attempts := 0
	publisher := &flakyPublisher{failFirst: 1, attempts: &attempts}
	worker := outbox.NewWorker(repo, publisher,
		outbox.WithMaxAttempts(3),
		outbox.WithRetryBaseDelay(0),
	)

	enqueue(t, repo)
	worker.ProcessOnce(context.Background())

	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
	pending, _ := repo.PullPending(10)
	if len(pending) != 0 {
		t.Fatalf("message must be sent after retry, got %+v", pending)
	}
}

type flakyPublisher struct {
	failFirst int
	attempts  *int
}

func (p *flakyPublisher) Publish(domain.OutboxMessage) error {
	*p.attempts++
	if *p.attempts <= p.failFirst {
		return errors.New("transient error")
	}
	return nil
}
