package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
)

// CartStore — in-memory корзины покупателей.
// Оформление заказа очищает корзину best-effort, поэтому реализация минимальна.
type CartStore struct {
	mu    sync.Mutex
	carts map[string][]domain.BatchLine
}

// NewCartStore создаёт пустое хранилище корзин.
func NewCartStore() *CartStore {
	return &CartStore{carts: make(map[string][]domain.BatchLine)}
}

// SetCart задаёт содержимое корзины покупателя.
func (s *CartStore) SetCart(userID string, lines []domain.BatchLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[userID] = append([]domain.BatchLine(nil), lines...)
}

// GetCart возвращает содержимое корзины.
func (s *CartStore) GetCart(userID string) []domain.BatchLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.BatchLine(nil), s.carts[userID]...)
}

// ClearCart удаляет корзину покупателя.
func (s *CartStore) ClearCart(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, userID)
	return nil
}

var _ domain.CartService = (*CartStore)(nil)
