package memory_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
	"github.com/vladislavdragonenkov/shopcore/internal/storage/memory"
)

func newOrder(id, userID string, createdAt time.Time) domain.Order {
	return domain.Order{
		ID:         id,
		UserID:     userID,
		Status:     domain.OrderStatusPending,
		Currency:   "NGN",
		TotalMinor: 500,
		Items: []domain.LineItem{
			{ID: "item-1", ProductID: "product-1", Qty: 5, PriceMinor: 100, CreatedAt: createdAt},
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestOrderRepository_CreateGet(t *testing.T) {
	repo := memory.NewOrderRepository()

	created, err := repo.Create(newOrder("order-1", "user-1", time.Now().UTC()))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.Version != 1 {
		t.Fatalf("expected version 1, got %d", created.Version)
	}

	stored, err := repo.Get("order-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.UserID != "user-1" {
		t.Fatalf("expected user-1, got %s", stored.UserID)
	}
}

func TestOrderRepository_GetNotFound(t *testing.T) {
	repo := memory.NewOrderRepository()
	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_CreateAssignsID(t *testing.T) {
	repo := memory.NewOrderRepository()

	created, err := repo.Create(newOrder("", "user-1", time.Now().UTC()))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}
}

func TestOrderRepository_SaveVersionConflict(t *testing.T) {
	repo := memory.NewOrderRepository()
	created, err := repo.Create(newOrder("order-1", "user-1", time.Now().UTC()))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	first := created
	first.Status = domain.OrderStatusProcessing
	saved, err := repo.Save(first)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if saved.Version != created.Version+1 {
		t.Fatalf("expected version bump to %d, got %d", created.Version+1, saved.Version)
	}

	// Второй писатель со старой версией.
	stale := created
	stale.Status = domain.OrderStatusCancelled
	if _, err := repo.Save(stale); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected ErrOrderVersionConflict, got %v", err)
	}
}

func TestOrderRepository_ListOrdering(t *testing.T) {
	repo := memory.NewOrderRepository()
	base := time.Now().UTC()

	if _, err := repo.Create(newOrder("order-old", "user-1", base.Add(-time.Hour))); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := repo.Create(newOrder("order-new", "user-1", base)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := repo.Create(newOrder("order-other", "user-2", base.Add(-time.Minute))); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	mine, err := repo.ListByUser("user-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != "order-new" || mine[1].ID != "order-old" {
		t.Fatalf("expected newest-first [order-new, order-old], got %+v", mine)
	}

	all, err := repo.ListAll()
	if err != nil {
		t.Fatalf("list all failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(all))
	}
}

func TestOrderRepository_StoresClones(t *testing.T) {
	repo := memory.NewOrderRepository()
	created, err := repo.Create(newOrder("order-1", "user-1", time.Now().UTC()))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Мутация возвращённой копии не должна затрагивать хранилище.
	created.Items[0].Qty = 999
	created.Status = domain.OrderStatusCancelled

	stored, err := repo.Get("order-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Items[0].Qty != 5 || stored.Status != domain.OrderStatusPending {
		t.Fatalf("repository must store clones, got %+v", stored)
	}
}
