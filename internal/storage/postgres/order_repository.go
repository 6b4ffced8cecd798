package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

const orderColumns = `
	id, user_id, status, currency, total_minor, tax_minor, shipping_minor,
	shipping_address, payment_method, is_paid, paid_at, delivered_at,
	payment_transaction_id, payment_gateway, payment_status, payment_update_time,
	payment_payer_email, stock_released, version, created_at, updated_at`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(order domain.Order) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	if order.Version == 0 {
		order.Version = 1
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, user_id, status, currency, total_minor, tax_minor, shipping_minor,
			shipping_address, payment_method, is_paid, paid_at, delivered_at,
			payment_transaction_id, payment_gateway, payment_status, payment_update_time,
			payment_payer_email, stock_released, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`,
		order.ID, order.UserID, string(order.Status), order.Currency,
		order.TotalMinor, order.TaxMinor, order.ShippingMinor,
		order.ShippingAddress, order.PaymentMethod, order.IsPaid,
		nullTime(order.PaidAt), nullTime(order.DeliveredAt),
		order.PaymentResult.TransactionID, order.PaymentResult.Gateway,
		order.PaymentResult.Status, nullTime(order.PaymentResult.UpdateTime),
		order.PaymentResult.PayerEmail, order.StockReleased,
		order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Order{}, domain.ErrOrderVersionConflict
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, product_id, qty, price_minor, created_at
			) VALUES ($1,$2,$3,$4,$5,$6)
		`,
			item.ID, order.ID, item.ProductID, item.Qty, item.PriceMinor, item.CreatedAt,
		); err != nil {
			return domain.Order{}, fmt.Errorf("insert order item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit create order: %w", err)
	}

	return order, nil
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

func (r *orderRepository) ListByUser(userID string) ([]domain.Order, error) {
	return r.list(`WHERE user_id = $1`, userID)
}

func (r *orderRepository) ListAll() ([]domain.Order, error) {
	return r.list(``)
}

func (r *orderRepository) list(where string, args ...interface{}) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `SELECT ` + orderColumns + ` FROM orders ` + where + ` ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	for i := range orders {
		items, err := r.loadItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}

// Save перезаписывает заказ с optimistic-проверкой версии.
// Позиции заказа неизменяемы после создания и не обновляются.
func (r *orderRepository) Save(order domain.Order) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	order.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET
			status = $1,
			is_paid = $2,
			paid_at = $3,
			delivered_at = $4,
			payment_transaction_id = $5,
			payment_gateway = $6,
			payment_status = $7,
			payment_update_time = $8,
			payment_payer_email = $9,
			stock_released = $10,
			version = version + 1,
			updated_at = $11
		WHERE id = $12 AND version = $13
	`,
		string(order.Status), order.IsPaid,
		nullTime(order.PaidAt), nullTime(order.DeliveredAt),
		order.PaymentResult.TransactionID, order.PaymentResult.Gateway,
		order.PaymentResult.Status, nullTime(order.PaymentResult.UpdateTime),
		order.PaymentResult.PayerEmail, order.StockReleased,
		order.UpdatedAt, order.ID, order.Version,
	)
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Order{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Либо заказа нет, либо версия устарела.
		var exists bool
		if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
			return domain.Order{}, fmt.Errorf("check order exists: %w", err)
		}
		if !exists {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, domain.ErrOrderVersionConflict
	}

	order.Version++
	return order, nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.LineItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, qty, price_minor, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	var items []domain.LineItem
	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Qty, &item.PriceMinor, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order       domain.Order
		status      string
		paidAt      sql.NullTime
		deliveredAt sql.NullTime
		updateTime  sql.NullTime
	)

	err := row.Scan(
		&order.ID, &order.UserID, &status, &order.Currency,
		&order.TotalMinor, &order.TaxMinor, &order.ShippingMinor,
		&order.ShippingAddress, &order.PaymentMethod, &order.IsPaid,
		&paidAt, &deliveredAt,
		&order.PaymentResult.TransactionID, &order.PaymentResult.Gateway,
		&order.PaymentResult.Status, &updateTime,
		&order.PaymentResult.PayerEmail, &order.StockReleased,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	order.Status = domain.OrderStatus(status)
	if paidAt.Valid {
		order.PaidAt = paidAt.Time
	}
	if deliveredAt.Valid {
		order.DeliveredAt = deliveredAt.Time
	}
	if updateTime.Valid {
		order.PaymentResult.UpdateTime = updateTime.Time
	}

	return order, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
