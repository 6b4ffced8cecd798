package memory_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
	"github.com/vladislavdragonenkov/shopcore/internal/storage/memory"
)

func newProductStore(t *testing.T, stock int32) *memory.ProductStore {
	t.Helper()
	store := memory.NewProductStore()
	if err := store.Put(domain.Product{
		ID:         "product-1",
		Name:       "Widget",
		OwnerID:    "seller-1",
		PriceMinor: 100,
		Currency:   "NGN",
		Stock:      stock,
	}); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	return store
}

func TestProductStore_Reserve(t *testing.T) {
	store := newProductStore(t, 5)

	if err := store.Reserve("product-1", 3); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	product, err := store.GetProduct("product-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if product.Stock != 2 {
		t.Fatalf("expected stock 2, got %d", product.Stock)
	}
}

func TestProductStore_ReserveInsufficient(t *testing.T) {
	store := newProductStore(t, 2)

	if err := store.Reserve("product-1", 3); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	product, _ := store.GetProduct("product-1")
	if product.Stock != 2 {
		t.Fatalf("failed reserve must not touch stock, got %d", product.Stock)
	}
}

func TestProductStore_ReserveUnknownProduct(t *testing.T) {
	store := memory.NewProductStore()
	if err := store.Reserve("missing", 1); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestProductStore_ReserveBatchAllOrNothing(t *testing.T) {
	store := newProductStore(t, 10)
	if err := store.Put(domain.Product{ID: "product-2", Name: "Gadget", PriceMinor: 200, Currency: "NGN", Stock: 0}); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	err := store.ReserveBatch([]domain.BatchLine{
		{ProductID: "product-1", Qty: 4},
		{ProductID: "product-2", Qty: 1},
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// Первая строка должна быть откатана.
	first, _ := store.GetProduct("product-1")
	if first.Stock != 10 {
		t.Fatalf("expected rollback to 10, got %d", first.Stock)
	}
}

func TestProductStore_ReserveBatchAndRelease(t *testing.T) {
	store := newProductStore(t, 10)
	if err := store.Put(domain.Product{ID: "product-2", Name: "Gadget", PriceMinor: 200, Currency: "NGN", Stock: 3}); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	lines := []domain.BatchLine{
		{ProductID: "product-1", Qty: 4},
		{ProductID: "product-2", Qty: 3},
	}
	if err := store.ReserveBatch(lines); err != nil {
		t.Fatalf("reserve batch failed: %v", err)
	}

	second, _ := store.GetProduct("product-2")
	if second.Stock != 0 {
		t.Fatalf("expected stock 0, got %d", second.Stock)
	}

	if err := store.ReleaseBatch(lines); err != nil {
		t.Fatalf("release batch failed: %v", err)
	}
	first, _ := store.GetProduct("product-1")
	second, _ = store.GetProduct("product-2")
	if first.Stock != 10 || second.Stock != 3 {
		t.Fatalf("expected full release, got %d/%d", first.Stock, second.Stock)
	}
}

func TestProductStore_ReleaseUnknownProductIsNoop(t *testing.T) {
	store := memory.NewProductStore()
	if err := store.Release("missing", 5); err != nil {
		t.Fatalf("release of unknown product must be a no-op, got %v", err)
	}
}

// Остаток не уходит в минус даже при конкурентном резерве последней единицы.
func TestProductStore_ConcurrentReserve(t *testing.T) {
	store := newProductStore(t, 10)

	const workers = 50
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.Reserve("product-1", 1)
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, domain.ErrInsufficientStock) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 10 {
		t.Fatalf("expected exactly 10 successful reserves, got %d", succeeded)
	}

	product, _ := store.GetProduct("product-1")
	if product.Stock != 0 {
		t.Fatalf("expected stock 0, got %d", product.Stock)
	}
}
