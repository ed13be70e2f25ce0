package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/voltmart/commerce-api/internal/model"
)

// InsufficientStockError reports every product whose conditional decrement
// matched no row during checkout. The transaction it occurred in is rolled
// back, so no decrement it mentions was ever committed.
type InsufficientStockError struct {
	ProductIDs []uuid.UUID
}

func (e *InsufficientStockError) Error() string {
	ids := make([]string, len(e.ProductIDs))
	for i, id := range e.ProductIDs {
		ids[i] = id.String()
	}
	return "insufficient stock for products: " + strings.Join(ids, ", ")
}

// OrderFilter narrows List. Nil fields mean no constraint.
type OrderFilter struct {
	UserID *uuid.UUID
	Status *model.OrderStatus
	Limit  int
	Offset int
}

type OrderRepository interface {
	// CreateFromCart runs the whole checkout commit in one transaction:
	// insert the order and its items, conditionally decrement stock per
	// item, and clear the source cart. Any stock failure aborts the entire
	// transaction and surfaces as *InsufficientStockError.
	CreateFromCart(ctx context.Context, order *model.Order, cartID uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	List(ctx context.Context, f OrderFilter) ([]model.Order, int, error)
	// UpdateStatus is a compare-and-set: it only applies when the stored
	// status still equals from. Returns false when no row matched.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus) (bool, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to model.PaymentStatus) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
	TotalSales(ctx context.Context) (decimal.Decimal, error)
	Count(ctx context.Context) (int, error)
	Recent(ctx context.Context, n int) ([]model.Order, error)
	TopProducts(ctx context.Context, n int) ([]model.ProductSales, error)
}

type pgOrderRepo struct {
	pool     *pgxpool.Pool
	products ProductRepository
}

func NewOrderRepository(pool *pgxpool.Pool, products ProductRepository) OrderRepository {
	return &pgOrderRepo{pool: pool, products: products}
}

func (r *pgOrderRepo) CreateFromCart(ctx context.Context, order *model.Order, cartID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	order.ID = uuid.New()
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (id, user_id, status, payment_status, total_amount, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW()) RETURNING created_at, updated_at`,
		order.ID, order.UserID, order.Status, order.PaymentStatus, order.TotalAmount,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	// A stock conflict does not abort the transaction mid-loop, so every
	// short product gets reported at once before the rollback.
	var short []uuid.UUID
	for i := range order.Items {
		order.Items[i].ID = uuid.New()
		order.Items[i].OrderID = order.ID
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items (id, order_id, product_id, name, quantity, unit_price, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
			order.Items[i].ID, order.Items[i].OrderID, order.Items[i].ProductID,
			order.Items[i].Name, order.Items[i].Quantity, order.Items[i].UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}

		err = r.products.DecrementStock(ctx, tx, order.Items[i].ProductID, order.Items[i].Quantity)
		switch {
		case errors.Is(err, ErrStockConflict):
			short = append(short, order.Items[i].ProductID)
		case err != nil:
			return err
		}
	}
	if len(short) > 0 {
		return &InsufficientStockError{ProductIDs: short}
	}

	// Clearing the cart inside the same transaction means a crash can never
	// leave a committed order behind a still-full cart, or vice versa.
	if _, err = tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit checkout: %w", err)
	}
	return nil
}

func (r *pgOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order := &model.Order{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, status, payment_status, total_amount, created_at, updated_at
		 FROM orders WHERE id = $1`, id,
	).Scan(&order.ID, &order.UserID, &order.Status, &order.PaymentStatus, &order.TotalAmount, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, product_id, name, quantity, unit_price FROM order_items WHERE order_id = $1 ORDER BY created_at`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Name, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.OrderID = order.ID
		order.Items = append(order.Items, item)
	}
	return order, rows.Err()
}

func (r *pgOrderRepo) List(ctx context.Context, f OrderFilter) ([]model.Order, int, error) {
	var userID any
	if f.UserID != nil {
		userID = *f.UserID
	}
	var status any
	if f.Status != nil {
		status = *f.Status
	}

	var total int
	countQ := `SELECT COUNT(*) FROM orders
			   WHERE ($1::uuid IS NULL OR user_id = $1) AND ($2::text IS NULL OR status = $2)`
	if err := r.pool.QueryRow(ctx, countQ, userID, status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, status, payment_status, total_amount, created_at, updated_at
		 FROM orders
		 WHERE ($1::uuid IS NULL OR user_id = $1) AND ($2::text IS NULL OR status = $2)
		 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		userID, status, f.Limit, f.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Status, &o.PaymentStatus, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

func (r *pgOrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus) (bool, error) {
	ct, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (r *pgOrderRepo) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to model.PaymentStatus) (bool, error) {
	ct, err := r.pool.Exec(ctx,
		`UPDATE orders SET payment_status = $3, updated_at = NOW() WHERE id = $1 AND payment_status = $2`,
		id, from, to,
	)
	if err != nil {
		return false, fmt.Errorf("update payment status: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (r *pgOrderRepo) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgOrderRepo) TotalSales(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(total_amount), 0) FROM orders`).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("total sales: %w", err)
	}
	return total, nil
}

func (r *pgOrderRepo) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return total, nil
}

func (r *pgOrderRepo) Recent(ctx context.Context, n int) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, status, payment_status, total_amount, created_at, updated_at
		 FROM orders ORDER BY created_at DESC LIMIT $1`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("recent orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Status, &o.PaymentStatus, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *pgOrderRepo) TopProducts(ctx context.Context, n int) ([]model.ProductSales, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT product_id, MAX(name), SUM(quantity) AS units
		 FROM order_items GROUP BY product_id ORDER BY units DESC LIMIT $1`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("top products: %w", err)
	}
	defer rows.Close()

	var top []model.ProductSales
	for rows.Next() {
		var ps model.ProductSales
		if err := rows.Scan(&ps.ProductID, &ps.Name, &ps.UnitsSold); err != nil {
			return nil, fmt.Errorf("scan product sales: %w", err)
		}
		top = append(top, ps)
	}
	return top, rows.Err()
}
