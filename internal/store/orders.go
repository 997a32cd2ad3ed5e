package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// ErrNotPending is returned by conditional transitions when the order already left pending
var ErrNotPending = errors.New("order is not pending")

const orderColumns = `id, user_id, total, freight, status, payment_id, shipped, shipped_at, created_at`

// CreateOrder inserts an order and its items in one transaction
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total, freight, status, shipped, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		order.ID, order.UserID, order.Total, order.Freight, order.Status, order.Shipped, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4)`,
			order.ID, item.ProductID, item.Quantity, item.UnitPrice)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrder retrieves an order and its items
func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	if err := s.db.SelectContext(ctx, &order.Items,
		"SELECT order_id, product_id, quantity, unit_price FROM order_items WHERE order_id = $1", id); err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}
	return &order, nil
}

// ListOrders returns orders newest first. An empty userID lists every order.
func (s *Store) ListOrders(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	var err error
	if userID == "" {
		err = s.db.SelectContext(ctx, &orders,
			"SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC")
	} else {
		err = s.db.SelectContext(ctx, &orders,
			"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) attachItems(ctx context.Context, orders []models.Order) error {
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	query, args, err := sqlx.In(
		"SELECT order_id, product_id, quantity, unit_price FROM order_items WHERE order_id IN (?)", ids)
	if err != nil {
		return err
	}

	var items []models.OrderItem
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to get order items: %w", err)
	}
	for _, item := range items {
		if i, ok := index[item.OrderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	return nil
}

// ApproveOrder is a compare-and-swap on status = 'pending'. Orders created before cutoff
// are cancelled instead. Returns the status written, or ErrNotPending when nothing matched.
func (s *Store) ApproveOrder(ctx context.Context, id, paymentID string, cutoff time.Time) (models.OrderStatus, error) {
	var status models.OrderStatus
	err := s.db.GetContext(ctx, &status, `
		UPDATE orders
		SET status = CASE WHEN created_at < $3 THEN 'cancelled' ELSE 'approved' END,
		    payment_id = CASE WHEN created_at < $3 THEN payment_id ELSE $2 END
		WHERE id = $1 AND status = 'pending'
		RETURNING status`,
		id, paymentID, cutoff)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotPending
	}
	if err != nil {
		return "", fmt.Errorf("failed to approve order: %w", err)
	}
	return status, nil
}

// CancelIfPending flips a pending order to cancelled. Reports whether this call did it.
func (s *Store) CancelIfPending(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = 'cancelled' WHERE id = $1 AND status = 'pending'", id)
	if err != nil {
		return false, fmt.Errorf("failed to cancel order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CancelExpired cancels every pending order created before cutoff and returns them
func (s *Store) CancelExpired(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, `
		UPDATE orders SET status = 'cancelled'
		WHERE status = 'pending' AND created_at < $1
		RETURNING `+orderColumns, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel expired orders: %w", err)
	}
	return orders, nil
}

// SetShipped updates the shipping flag. Expired pending orders are cancelled in the same write.
func (s *Store) SetShipped(ctx context.Context, id string, shipped bool, shippedAt *time.Time, cutoff time.Time) (models.OrderStatus, error) {
	var status models.OrderStatus
	err := s.db.GetContext(ctx, &status, `
		UPDATE orders
		SET shipped = $2,
		    shipped_at = $3,
		    status = CASE WHEN status = 'pending' AND created_at < $4 THEN 'cancelled' ELSE status END
		WHERE id = $1
		RETURNING status`,
		id, shipped, shippedAt, cutoff)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to update shipping: %w", err)
	}
	return status, nil
}
