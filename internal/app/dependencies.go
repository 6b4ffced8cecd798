package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
	"github.com/vladislavdragonenkov/shopcore/internal/storage/memory"
	"github.com/vladislavdragonenkov/shopcore/internal/storage/postgres"
)

// Catalog объединяет чтение каталога, управление товарами и складской остаток.
// Обе реализации (memory и postgres) закрывают его целиком.
type Catalog interface {
	domain.CatalogService
	domain.InventoryLedger
	Put(product domain.Product) error
}

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Orders      domain.OrderRepository
	Catalog     Catalog
	Cart        domain.CartService
	Outbox      domain.OutboxRepository
	Timeline    domain.TimelineRepository
	Idempotency domain.IdempotencyRepository
	Store       *postgres.Store
	Logger      *log.Entry
}

// NewDependencies собирает in-memory зависимости для локального запуска и тестов.
func NewDependencies(logger *log.Entry) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	return &Dependencies{
		Orders:      memory.NewOrderRepository(),
		Catalog:     memory.NewProductStore(),
		Cart:        memory.NewCartStore(),
		Outbox:      memory.NewOutboxRepository(),
		Timeline:    memory.NewTimelineRepository(),
		Idempotency: memory.NewIdempotencyRepository(),
		Logger:      logger,
	}
}

// NewPostgresDependencies открывает подключение к PostgreSQL, применяет схему
// и собирает зависимости поверх неё. Корзина остаётся in-memory: её потеря
// при рестарте допустима.
func NewPostgresDependencies(ctx context.Context, dsn string, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Dependencies{
		Orders:      postgres.NewOrderRepository(store),
		Catalog:     postgres.NewProductRepository(store),
		Cart:        memory.NewCartStore(),
		Outbox:      postgres.NewOutboxRepository(store),
		Timeline:    postgres.NewTimelineRepository(store),
		Idempotency: postgres.NewIdempotencyRepository(store),
		Store:       store,
		Logger:      logger,
	}, nil
}

// Close освобождает ресурсы зависимостей.
func (d *Dependencies) Close() {
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}
