package memory

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
)

// ProductStore — in-memory каталог, одновременно служащий складским остатком.
// Один mutex сериализует все изменения остатков, поэтому ReserveBatch
// выполняется как атомарная операция.
type ProductStore struct {
	mu     sync.RWMutex
	items  map[string]domain.Product
	logger *log.Entry
}

// NewProductStore создаёт пустой каталог/склад.
func NewProductStore() *ProductStore {
	return &ProductStore{
		items:  make(map[string]domain.Product),
		logger: log.WithField("component", "memory-product-store"),
	}
}

// Put добавляет или обновляет запись каталога.
func (s *ProductStore) Put(product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[product.ID] = product
	return nil
}

// GetProduct возвращает товар или ErrProductNotFound.
func (s *ProductStore) GetProduct(productID string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.items[productID]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// Reserve атомарно уменьшает остаток; остаток никогда не уходит в минус.
func (s *ProductStore) Reserve(productID string, qty int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reserveLocked(productID, qty)
}

// Release возвращает количество на остаток. Неизвестный товар — no-op с warn-логом.
func (s *ProductStore) Release(productID string, qty int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked(productID, qty)
	return nil
}

// ReserveBatch резервирует все строки или ни одной. При первой нехватке
// уже зарезервированные строки возвращаются обратно, ошибка называет товар.
func (s *ProductStore) ReserveBatch(lines []domain.BatchLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, line := range lines {
		if err := s.reserveLocked(line.ProductID, line.Qty); err != nil {
			// Откатываем уже зарезервированные строки.
			for _, done := range lines[:i] {
				s.releaseLocked(done.ProductID, done.Qty)
			}
			return fmt.Errorf("product %s: %w", line.ProductID, err)
		}
	}
	return nil
}

// ReleaseBatch возвращает все строки на остаток.
func (s *ProductStore) ReleaseBatch(lines []domain.BatchLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, line := range lines {
		s.releaseLocked(line.ProductID, line.Qty)
	}
	return nil
}

func (s *ProductStore) reserveLocked(productID string, qty int32) error {
	if qty <= 0 {
		return domain.ErrItemQtyInvalid
	}
	product, ok := s.items[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if product.Stock < qty {
		return domain.ErrInsufficientStock
	}
	product.Stock -= qty
	s.items[productID] = product
	return nil
}

func (s *ProductStore) releaseLocked(productID string, qty int32) {
	if qty <= 0 {
		return
	}
	product, ok := s.items[productID]
	if !ok {
		// Товар мог быть удалён из каталога после резерва.
		s.logger.WithField("product_id", productID).Warn("release for unknown product, skipping")
		return
	}
	product.Stock += qty
	s.items[productID] = product
}

var (
	_ domain.CatalogService  = (*ProductStore)(nil)
	_ domain.InventoryLedger = (*ProductStore)(nil)
)
