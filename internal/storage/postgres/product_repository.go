package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
)

// productRepository реализует каталог и складской остаток поверх таблицы products.
type productRepository struct {
	db     *sql.DB
	logger *log.Entry
}

// NewProductRepository создаёт PostgreSQL-реализацию CatalogService и InventoryLedger.
func NewProductRepository(store *Store) *productRepository {
	return &productRepository{
		db:     store.DB(),
		logger: log.WithField("component", "postgres-product-repository"),
	}
}

// Put добавляет или обновляет запись каталога.
func (r *productRepository) Put(product domain.Product) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, store_id, owner_id, price_minor, currency, stock)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			store_id = EXCLUDED.store_id,
			owner_id = EXCLUDED.owner_id,
			price_minor = EXCLUDED.price_minor,
			currency = EXCLUDED.currency,
			stock = EXCLUDED.stock,
			updated_at = NOW()
	`, product.ID, product.Name, product.StoreID, product.OwnerID, product.PriceMinor, product.Currency, product.Stock)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

// GetProduct возвращает товар или ErrProductNotFound.
func (r *productRepository) GetProduct(productID string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var product domain.Product
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, store_id, owner_id, price_minor, currency, stock
		FROM products
		WHERE id = $1
	`, productID).Scan(
		&product.ID, &product.Name, &product.StoreID, &product.OwnerID,
		&product.PriceMinor, &product.Currency, &product.Stock,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

// Reserve атомарно списывает остаток: условный UPDATE не пропускает
// отрицательный сток даже при конкурентных запросах.
func (r *productRepository) Reserve(productID string, qty int32) error {
	if qty <= 0 {
		return domain.ErrItemQtyInvalid
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
	`, productID, qty)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
			return fmt.Errorf("check product exists: %w", err)
		}
		if !exists {
			return domain.ErrProductNotFound
		}
		return domain.ErrInsufficientStock
	}
	return nil
}

// Release возвращает количество на остаток. Неизвестный товар — no-op с warn-логом.
func (r *productRepository) Release(productID string, qty int32) error {
	if qty <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1
	`, productID, qty)
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		r.logger.WithField("product_id", productID).Warn("release for unknown product, skipping")
	}
	return nil
}

// ReserveBatch резервирует все строки в одной транзакции.
// Строки блокируются FOR UPDATE в детерминированном порядке id,
// чтобы конкурентные батчи не взаимоблокировались.
func (r *productRepository) ReserveBatch(lines []domain.BatchLine) error {
	if len(lines) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	sorted := append([]domain.BatchLine(nil), lines...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, line := range sorted {
		if line.Qty <= 0 {
			err = fmt.Errorf("product %s: %w", line.ProductID, domain.ErrItemQtyInvalid)
			return err
		}

		var stock int32
		scanErr := tx.QueryRowContext(ctx, `
			SELECT stock FROM products WHERE id = $1 FOR UPDATE
		`, line.ProductID).Scan(&stock)
		if scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				err = fmt.Errorf("product %s: %w", line.ProductID, domain.ErrProductNotFound)
				return err
			}
			err = fmt.Errorf("lock product %s: %w", line.ProductID, scanErr)
			return err
		}
		if stock < line.Qty {
			// Rollback транзакции возвращает уже списанные строки.
			err = fmt.Errorf("product %s: %w", line.ProductID, domain.ErrInsufficientStock)
			return err
		}

		if _, execErr := tx.ExecContext(ctx, `
			UPDATE products SET stock = stock - $2, updated_at = NOW() WHERE id = $1
		`, line.ProductID, line.Qty); execErr != nil {
			err = fmt.Errorf("reserve product %s: %w", line.ProductID, execErr)
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit batch reserve: %w", err)
	}
	return nil
}

// ReleaseBatch возвращает все строки на остаток в одной транзакции.
func (r *productRepository) ReleaseBatch(lines []domain.BatchLine) error {
	if len(lines) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, line := range lines {
		if line.Qty <= 0 {
			continue
		}
		res, execErr := tx.ExecContext(ctx, `
			UPDATE products SET stock = stock + $2, updated_at = NOW() WHERE id = $1
		`, line.ProductID, line.Qty)
		if execErr != nil {
			err = fmt.Errorf("release product %s: %w", line.ProductID, execErr)
			return err
		}
		if affected, raErr := res.RowsAffected(); raErr == nil && affected == 0 {
			r.logger.WithField("product_id", line.ProductID).Warn("release for unknown product, skipping")
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit batch release: %w", err)
	}
	return nil
}

var (
	_ domain.CatalogService  = (*productRepository)(nil)
	_ domain.InventoryLedger = (*productRepository)(nil)
)
