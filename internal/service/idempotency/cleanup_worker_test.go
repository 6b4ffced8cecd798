package idempotency_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
	idemsvc "github.com/vladislavdragonenkov/shopcore/internal/service/idempotency"
	"github.com/vladislavdragonenkov/shopcore/internal/storage/memory"
)

func TestCleanupWorker_DeleteExpired(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	now := time.Now().UTC()

	if _, err := repo.CreateProcessing("expired", "hash-1", now.Add(-time.Hour)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := repo.CreateProcessing("alive", "hash-2", now.Add(time.Hour)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	worker := idemsvc.NewCleanupWorker(repo, idemsvc.WithBatchSize(10))
	removed, err := worker.DeleteExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("delete expired failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	if _, err := repo.Get("expired"); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expired record must be gone, got %v", err)
	}
	if _, err := repo.Get("alive"); err != nil {
		t.Fatalf("live record must survive: %v", err)
	}
}
