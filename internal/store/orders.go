package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const orderColumns = `id, user_id, items, subtotal, shipping, total, status, payment_status,
	shipping_address, idempotency_key, created_at, updated_at`

// CreateOrder creates a new order, assigning its ID and timestamps
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.IdempotencyKey == "" {
		order.IdempotencyKey = uuid.NewString()
	}

	query := `
		INSERT INTO orders (id, user_id, items, subtotal, shipping, total, status, payment_status,
			shipping_address, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		order.ID, order.UserID, order.Items, order.Subtotal, order.Shipping, order.Total,
		order.Status, order.PaymentStatus, order.ShippingAddress, order.IdempotencyKey,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("order with idempotency key %s: %w", order.IdempotencyKey, apperr.ErrConflict)
		}
		return unavailable(err)
	}
	return nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "order", id)
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves a user's order by idempotency key.
// It returns nil, nil when no order carries the key.
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, userID, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 AND idempotency_key = $2", userID, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return &order, nil
}

// GetOrdersByUserID retrieves orders for a user, newest first
func (s *Store) GetOrdersByUserID(ctx context.Context, userID string) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, unavailable(err)
}

// GetOrders retrieves all orders, newest first
func (s *Store) GetOrders(ctx context.Context) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC")
	return orders, unavailable(err)
}

// AppendOrderUpdate records a status update and moves the order to its status
// in one transaction
func (s *Store) AppendOrderUpdate(ctx context.Context, update *models.OrderUpdate) error {
	if update.ID == "" {
		update.ID = uuid.NewString()
	}
	if update.CreatedAt.IsZero() {
		update.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    payment_status = COALESCE(NULLIF($2::text, ''), payment_status),
		    updated_at = NOW()
		WHERE id = $3`,
		update.Status, string(update.PaymentStatus), update.OrderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", unavailable(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(sql.ErrNoRows, "order", update.OrderID)
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO order_updates (id, order_id, status, payment_status, note, created_at)
		VALUES (:id, :order_id, :status, :payment_status, :note, :created_at)`,
		update)
	if err != nil {
		return fmt.Errorf("failed to append order update: %w", unavailable(err))
	}

	return unavailable(tx.Commit())
}

// GetOrderUpdates retrieves the status history of an order, oldest first
func (s *Store) GetOrderUpdates(ctx context.Context, orderID string) ([]models.OrderUpdate, error) {
	updates := []models.OrderUpdate{}
	err := s.db.SelectContext(ctx, &updates, `
		SELECT id, order_id, status, payment_status, note, created_at
		FROM order_updates WHERE order_id = $1 ORDER BY created_at`, orderID)
	return updates, unavailable(err)
}

// GetOrderStats aggregates order totals for the admin dashboard
func (s *Store) GetOrderStats(ctx context.Context) (*models.OrderStats, error) {
	var stats models.OrderStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT COUNT(*) AS total_orders,
		       COALESCE(SUM(total), 0) AS total_revenue,
		       COUNT(*) FILTER (WHERE status = 'delivered') AS delivered_count,
		       COUNT(*) FILTER (WHERE status = 'pending') AS pending_count
		FROM orders`)
	if err != nil {
		return nil, unavailable(err)
	}
	if stats.TotalOrders > 0 {
		stats.CompletionRate = float64(stats.DeliveredCount) / float64(stats.TotalOrders)
	}
	return &stats, nil
}
