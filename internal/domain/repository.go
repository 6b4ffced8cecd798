package domain

// OrderRepository описывает хранилище заказов.
// Save выполняет optimistic check по Version: запись с устаревшей версией
// завершается ErrOrderVersionConflict, при успехе версия увеличивается.
type OrderRepository interface {
	Create(order Order) (Order, error)
	Get(id string) (Order, error)
	ListByUser(userID string) ([]Order, error)
	ListAll() ([]Order, error)
	Save(order Order) (Order, error)
}
