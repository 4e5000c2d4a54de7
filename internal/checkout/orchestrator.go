package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/cart"
	"storefront/internal/models"
	"storefront/internal/session"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// State is a step of a checkout attempt
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateSubmitting State = "submitting"
	StateConfirming State = "confirming"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

// Redirect targets handed back to the caller
const (
	RedirectLogin   = "/auth/login"
	RedirectCatalog = "/products"
)

// OrderStore is the part of the catalog store checkout writes to
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByIdempotencyKey(ctx context.Context, userID, key string) (*models.Order, error)
	AppendOrderUpdate(ctx context.Context, update *models.OrderUpdate) error
}

// PaymentConfirmer captures payment for a persisted order and returns a transaction id
type PaymentConfirmer interface {
	Confirm(ctx context.Context, order *models.Order) (string, error)
}

// Guard is a keyed single-flight lock. Acquire hands back a token that
// identifies this holder; Release only drops the lock while it still carries
// that token.
type Guard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// EventPublisher receives checkout domain events
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
}

// Request is one checkout submission
type Request struct {
	Session        *session.Session
	Cart           *cart.Cart
	Form           ShippingForm
	IdempotencyKey string
}

// Attempt records the path a checkout took
type Attempt struct {
	ID       string  `json:"attemptId"`
	State    State   `json:"state"`
	History  []State `json:"history"`
	OrderID  string  `json:"orderId,omitempty"`
	Redirect string  `json:"redirect,omitempty"`
	Replayed bool    `json:"replayed,omitempty"`
}

func (a *Attempt) transition(to State) {
	a.State = to
	a.History = append(a.History, to)
	util.CheckoutStateTransitionsTotal.WithLabelValues(string(to)).Inc()
}

// Reached reports whether the attempt ever entered s
func (a *Attempt) Reached(s State) bool {
	for _, h := range a.History {
		if h == s {
			return true
		}
	}
	return false
}

// Orchestrator turns a cart and shipping form into a paid order
type Orchestrator struct {
	orders  OrderStore
	payment PaymentConfirmer
	guard   Guard
	events  EventPublisher
	lockTTL time.Duration
	logger  *zap.Logger
}

// NewOrchestrator creates a checkout orchestrator. events may be nil.
func NewOrchestrator(
	orders OrderStore,
	payment PaymentConfirmer,
	guard Guard,
	events EventPublisher,
	lockTTL time.Duration,
) *Orchestrator {
	return &Orchestrator{
		orders:  orders,
		payment: payment,
		guard:   guard,
		events:  events,
		lockTTL: lockTTL,
		logger:  util.GetLogger().Named("checkout"),
	}
}

// Checkout runs one attempt. On success the cart is empty and the attempt holds
// the new order id; on any failure the cart is left as it was.
func (o *Orchestrator) Checkout(ctx context.Context, req Request) (*Attempt, error) {
	ctx, span := util.StartSpan(ctx, "Orchestrator.Checkout")
	defer span.End()

	util.CheckoutAttemptsTotal.Inc()
	attempt := &Attempt{ID: uuid.NewString(), State: StateIdle, History: []State{StateIdle}}

	if req.Session == nil {
		attempt.Redirect = RedirectLogin
		util.CheckoutFailedTotal.WithLabelValues("auth_required").Inc()
		return attempt, apperr.ErrAuthRequired
	}
	span.SetAttributes(attribute.String("user.id", req.Session.UserID))
	if req.Cart == nil || req.Cart.IsEmpty() {
		attempt.Redirect = RedirectCatalog
		util.CheckoutFailedTotal.WithLabelValues("empty_cart").Inc()
		return attempt, apperr.ErrEmptyCart
	}

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	attempt.transition(StateValidating)
	form := req.Form.Normalize()
	if err := form.Validate(); err != nil {
		attempt.transition(StateIdle)
		util.CheckoutFailedTotal.WithLabelValues("validation").Inc()
		return attempt, err
	}

	lockKey := "checkout:" + req.Session.UserID
	token, acquired, err := o.guard.Acquire(ctx, lockKey, o.lockTTL)
	if err != nil {
		attempt.transition(StateFailed)
		util.CheckoutFailedTotal.WithLabelValues("lock_error").Inc()
		return attempt, fmt.Errorf("%w: acquire checkout lock: %v", apperr.ErrStoreUnavailable, err)
	}
	if !acquired {
		attempt.transition(StateIdle)
		util.CheckoutFailedTotal.WithLabelValues("in_flight").Inc()
		return attempt, apperr.ErrCheckoutInFlight
	}
	defer func() {
		if err := o.guard.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			o.logger.Warn("Failed to release checkout lock",
				zap.String("user_id", req.Session.UserID),
				zap.Error(err))
		}
	}()

	order, err := o.submit(ctx, attempt, req, form)
	if err != nil {
		util.SpanError(span, err)
		return attempt, err
	}

	if order.PaymentStatus != models.PaymentStatusPaid {
		if err := o.confirm(ctx, attempt, order); err != nil {
			util.SpanError(span, err)
			return attempt, err
		}
	}

	req.Cart.Clear()
	attempt.transition(StateComplete)
	attempt.Redirect = "/orders/" + order.ID

	o.logger.Info("Checkout complete",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.String("total", order.Total.String()),
		zap.Bool("replayed", attempt.Replayed))
	return attempt, nil
}

// submit persists the order snapshot, or finds the order a previous attempt
// with the same idempotency key already wrote.
func (o *Orchestrator) submit(ctx context.Context, attempt *Attempt, req Request, form ShippingForm) (*models.Order, error) {
	attempt.transition(StateSubmitting)
	userID := req.Session.UserID
	summary := req.Cart.Summary()

	if req.IdempotencyKey != "" {
		existing, err := o.orders.GetOrderByIdempotencyKey(ctx, userID, req.IdempotencyKey)
		if err != nil {
			attempt.transition(StateFailed)
			util.CheckoutFailedTotal.WithLabelValues("store_error").Inc()
			return nil, storeError("check idempotency key", err)
		}
		if existing != nil {
			return o.replay(attempt, req.IdempotencyKey, existing, summary)
		}
	}

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	order := &models.Order{
		UserID:          userID,
		Items:           summary.Items,
		Subtotal:        summary.Subtotal,
		Shipping:        summary.Shipping,
		Total:           summary.Total,
		Status:          models.OrderStatusPending,
		PaymentStatus:   models.PaymentStatusPending,
		ShippingAddress: form.ShippingAddress(),
		IdempotencyKey:  key,
	}

	if err := o.orders.CreateOrder(ctx, order); err != nil {
		// a concurrent attempt with the same key won the insert
		if errors.Is(err, apperr.ErrConflict) && req.IdempotencyKey != "" {
			existing, gerr := o.orders.GetOrderByIdempotencyKey(ctx, userID, key)
			if gerr == nil && existing != nil {
				return o.replay(attempt, key, existing, summary)
			}
		}
		attempt.transition(StateFailed)
		util.CheckoutFailedTotal.WithLabelValues("store_error").Inc()
		o.logger.Error("Failed to create order", zap.String("user_id", userID), zap.Error(err))
		return nil, storeError("create order", err)
	}
	attempt.OrderID = order.ID

	util.OrdersCreatedTotal.Inc()
	o.logger.Info("Order created", zap.String("order_id", order.ID), zap.String("user_id", userID))

	if o.events != nil {
		event := &models.OrderCreatedEvent{
			BaseEvent: models.NewBaseEvent(models.EventTypeOrderCreated),
			OrderID:   order.ID,
			UserID:    order.UserID,
			Total:     order.Total,
			Items:     order.Items,
		}
		if err := o.events.PublishOrderCreated(ctx, event); err != nil {
			o.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
		}
	}

	return order, nil
}

// replay hands back the order an earlier attempt wrote under key. The key is
// only honoured for the same cart, and an unpaid order is only resumed while
// it is still pending.
func (o *Orchestrator) replay(attempt *Attempt, key string, existing *models.Order, summary cart.Summary) (*models.Order, error) {
	if !sameOrder(existing, summary) {
		attempt.transition(StateFailed)
		util.CheckoutFailedTotal.WithLabelValues("idempotency_conflict").Inc()
		o.logger.Warn("Idempotency key reused for a different cart",
			zap.String("idempotency_key", key),
			zap.String("order_id", existing.ID))
		return nil, fmt.Errorf("%w: idempotency key already used for order %s", apperr.ErrConflict, existing.ID)
	}
	if existing.PaymentStatus != models.PaymentStatusPaid && existing.Status != models.OrderStatusPending {
		attempt.transition(StateFailed)
		util.CheckoutFailedTotal.WithLabelValues("order_settled").Inc()
		return nil, fmt.Errorf("%w: order %s is %s", apperr.ErrConflict, existing.ID, existing.Status)
	}

	o.logger.Info("Duplicate checkout detected",
		zap.String("idempotency_key", key),
		zap.String("order_id", existing.ID))
	attempt.OrderID = existing.ID
	attempt.Replayed = true
	return existing, nil
}

// sameOrder reports whether order was placed for exactly the lines and total in summary
func sameOrder(order *models.Order, summary cart.Summary) bool {
	if !order.Total.Equal(summary.Total) || len(order.Items) != len(summary.Items) {
		return false
	}
	placed := make(map[string]models.CartLine, len(order.Items))
	for _, line := range order.Items {
		placed[line.ProductID] = line
	}
	for _, line := range summary.Items {
		p, ok := placed[line.ProductID]
		if !ok || p.Quantity != line.Quantity || !p.Price.Equal(line.Price) {
			return false
		}
	}
	return true
}

// confirm captures payment and appends the paid status update. A failure
// leaves the order pending.
func (o *Orchestrator) confirm(ctx context.Context, attempt *Attempt, order *models.Order) error {
	attempt.transition(StateConfirming)

	txID, err := o.payment.Confirm(ctx, order)
	if err != nil {
		attempt.transition(StateFailed)
		util.CheckoutFailedTotal.WithLabelValues("payment").Inc()
		o.logger.Warn("Payment confirmation failed, order left pending",
			zap.String("order_id", order.ID),
			zap.Error(err))
		return fmt.Errorf("%w: order %s: %v", apperr.ErrPaymentFailed, order.ID, err)
	}

	update := &models.OrderUpdate{
		OrderID:       order.ID,
		Status:        models.OrderStatusPaid,
		PaymentStatus: models.PaymentStatusPaid,
		Note:          "payment " + txID,
	}
	if err := o.orders.AppendOrderUpdate(ctx, update); err != nil {
		attempt.transition(StateFailed)
		util.CheckoutFailedTotal.WithLabelValues("store_error").Inc()
		o.logger.Error("Failed to record payment",
			zap.String("order_id", order.ID),
			zap.String("tx_id", txID),
			zap.Error(err))
		return storeError("record payment", err)
	}
	order.Status = models.OrderStatusPaid
	order.PaymentStatus = models.PaymentStatusPaid

	util.OrdersPaidTotal.Inc()

	if o.events != nil {
		event := &models.OrderPaidEvent{
			BaseEvent: models.NewBaseEvent(models.EventTypeOrderPaid),
			OrderID:   order.ID,
			UserID:    order.UserID,
			Amount:    order.Total,
			TxID:      txID,
		}
		if err := o.events.PublishOrderPaid(ctx, event); err != nil {
			o.logger.Error("Failed to publish OrderPaid event", zap.Error(err))
		}
	}

	return nil
}

// storeError keeps a store error's kind, treating anything unclassified as unavailable
func storeError(op string, err error) error {
	if errors.Is(err, apperr.ErrStoreUnavailable) || errors.Is(err, apperr.ErrConflict) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", apperr.ErrStoreUnavailable, op, err)
}
