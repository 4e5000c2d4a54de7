package service

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/checkout"
	"storefront/internal/session"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// CheckoutService runs the checkout orchestrator against a session's stored cart
type CheckoutService struct {
	orchestrator *checkout.Orchestrator
	carts        CartRepository
	cartTTL      time.Duration
	timeout      time.Duration
	logger       *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(orchestrator *checkout.Orchestrator, carts CartRepository, cartTTL, timeout time.Duration) *CheckoutService {
	return &CheckoutService{
		orchestrator: orchestrator,
		carts:        carts,
		cartTTL:      cartTTL,
		timeout:      timeout,
		logger:       util.GetLogger(),
	}
}

// Checkout places an order for the cart stored under cartSessionID. The
// attempt runs to completion even if ctx is cancelled by the caller going
// away, bounded by the service timeout.
func (s *CheckoutService) Checkout(
	ctx context.Context,
	sess *session.Session,
	cartSessionID string,
	form checkout.ShippingForm,
	idempotencyKey string,
) (*checkout.Attempt, error) {
	ctx = context.WithoutCancel(ctx)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	c, err := s.carts.LoadCart(ctx, cartSessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", unavailable(err))
	}

	attempt, err := s.orchestrator.Checkout(ctx, checkout.Request{
		Session:        sess,
		Cart:           c,
		Form:           form,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return attempt, err
	}

	if err := s.carts.SaveCart(ctx, cartSessionID, c, s.cartTTL); err != nil {
		s.logger.Error("Order placed but cart could not be cleared",
			zap.String("order_id", attempt.OrderID),
			zap.Error(err))
	}
	return attempt, nil
}
