package service

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/session"
	"storefront/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// validTransitions defines the allowed order status state machine.
var validTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:    {models.OrderStatusPaid, models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusPaid:       {models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusProcessing: {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:    {models.OrderStatusDelivered},
	models.OrderStatusDelivered:  {},
	models.OrderStatusCancelled:  {},
}

// CanTransition reports whether an order may move from one status to another
func CanTransition(from, to models.OrderStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// OrderStore is the order half of the store
type OrderStore interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID string) ([]models.Order, error)
	GetOrders(ctx context.Context) ([]models.Order, error)
	GetOrderUpdates(ctx context.Context, orderID string) ([]models.OrderUpdate, error)
	GetOrderStats(ctx context.Context) (*models.OrderStats, error)
	AppendOrderUpdate(ctx context.Context, update *models.OrderUpdate) error
}

// OrderEventPublisher receives order status events
type OrderEventPublisher interface {
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
}

// OrderDetail is an order with its status history
type OrderDetail struct {
	Order   *models.Order        `json:"order"`
	Updates []models.OrderUpdate `json:"updates"`
}

// OrderService handles order history and admin order management
type OrderService struct {
	store  OrderStore
	events OrderEventPublisher
	logger *zap.Logger
}

// NewOrderService creates a new order service. events may be nil.
func NewOrderService(store OrderStore, events OrderEventPublisher) *OrderService {
	return &OrderService{
		store:  store,
		events: events,
		logger: util.GetLogger(),
	}
}

// ListMine returns the session user's orders, newest first
func (s *OrderService) ListMine(ctx context.Context, sess *session.Session) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListMine")
	defer span.End()

	if err := requireSession(sess); err != nil {
		return nil, err
	}
	orders, err := s.store.GetOrdersByUserID(ctx, sess.UserID)
	if err != nil {
		return nil, unavailable(err)
	}
	return orders, nil
}

// GetOrder returns an order and its history. Customers only see their own
// orders; another user's order reads as not found.
func (s *OrderService) GetOrder(ctx context.Context, sess *session.Session, id string) (*OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	if err := requireSession(sess); err != nil {
		return nil, err
	}

	order, err := s.store.GetOrderByID(ctx, id)
	if err != nil {
		return nil, unavailable(err)
	}
	if order.UserID != sess.UserID && !sess.IsAdmin() {
		return nil, fmt.Errorf("order %s: %w", id, apperr.ErrNotFound)
	}

	updates, err := s.store.GetOrderUpdates(ctx, id)
	if err != nil {
		return nil, unavailable(err)
	}
	return &OrderDetail{Order: order, Updates: updates}, nil
}

// ListAll returns every order, newest first, optionally narrowed to one status
func (s *OrderService) ListAll(ctx context.Context, sess *session.Session, status models.OrderStatus) ([]models.Order, error) {
	if err := requireAdmin(sess); err != nil {
		return nil, err
	}
	orders, err := s.store.GetOrders(ctx)
	if err != nil {
		return nil, unavailable(err)
	}
	if status == "" {
		return orders, nil
	}
	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out, nil
}

// Stats returns the admin dashboard totals
func (s *OrderService) Stats(ctx context.Context, sess *session.Session) (*models.OrderStats, error) {
	if err := requireAdmin(sess); err != nil {
		return nil, err
	}
	stats, err := s.store.GetOrderStats(ctx)
	if err != nil {
		return nil, unavailable(err)
	}
	return stats, nil
}

// UpdateStatus moves an order along the status state machine by appending a status update
func (s *OrderService) UpdateStatus(ctx context.Context, sess *session.Session, id string, to models.OrderStatus, note string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus",
		attribute.String("order.id", id),
		attribute.String("order.status", string(to)))
	defer span.End()

	if err := requireAdmin(sess); err != nil {
		return nil, err
	}

	to = models.OrderStatus(strings.ToLower(strings.TrimSpace(string(to))))
	if _, known := validTransitions[to]; !known {
		verr := apperr.NewValidationError()
		verr.Add("status", "unknown status")
		return nil, verr
	}

	order, err := s.store.GetOrderByID(ctx, id)
	if err != nil {
		return nil, unavailable(err)
	}

	from := order.Status
	if !CanTransition(from, to) {
		return nil, fmt.Errorf("%w: cannot transition order from %s to %s", apperr.ErrInvalidTransition, from, to)
	}

	update := &models.OrderUpdate{
		OrderID: order.ID,
		Status:  to,
		Note:    strings.TrimSpace(note),
	}
	if to == models.OrderStatusPaid {
		update.PaymentStatus = models.PaymentStatusPaid
	}
	if err := s.store.AppendOrderUpdate(ctx, update); err != nil {
		return nil, unavailable(err)
	}

	order.Status = to
	if update.PaymentStatus != "" {
		order.PaymentStatus = update.PaymentStatus
	}

	util.OrderStatusTransitionsTotal.WithLabelValues(string(to)).Inc()
	s.logger.Info("Order status changed",
		zap.String("order_id", order.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("admin_id", sess.UserID))

	if s.events != nil {
		event := &models.OrderStatusChangedEvent{
			BaseEvent: models.NewBaseEvent(models.EventTypeOrderStatusChanged),
			OrderID:   order.ID,
			From:      from,
			To:        to,
		}
		if err := s.events.PublishOrderStatusChanged(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
		}
	}

	return order, nil
}
