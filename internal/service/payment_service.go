package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ErrPaymentDeclined is returned when the simulated provider declines a charge
var ErrPaymentDeclined = errors.New("mock_payment_declined")

// PaymentService simulates payment capture with a fixed delay
type PaymentService struct {
	delay       time.Duration
	successRate float64 // 0.0 - 1.0
	roll        func() float64
	logger      *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(delay time.Duration, successRate float64) *PaymentService {
	return &PaymentService{
		delay:       delay,
		successRate: successRate,
		roll:        rand.Float64,
		logger:      util.GetLogger(),
	}
}

// Confirm waits out the simulated provider delay and returns a transaction id.
// Cancelling ctx abandons the wait.
func (ps *PaymentService) Confirm(ctx context.Context, order *models.Order) (string, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Confirm",
		attribute.String("order.id", order.ID))
	defer span.End()

	util.PaymentAttemptsTotal.Inc()
	start := time.Now()
	defer func() {
		util.PaymentProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	ps.logger.Info("Processing payment",
		zap.String("order_id", order.ID),
		zap.String("amount", order.Total.String()))

	if ps.delay > 0 {
		timer := time.NewTimer(ps.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			util.PaymentFailedTotal.Inc()
			err := fmt.Errorf("payment for order %s interrupted: %w", order.ID, ctx.Err())
			util.SpanError(span, err)
			return "", err
		case <-timer.C:
		}
	}

	if ps.roll() >= ps.successRate {
		util.PaymentFailedTotal.Inc()
		ps.logger.Warn("Payment failed", zap.String("order_id", order.ID))
		util.SpanError(span, ErrPaymentDeclined)
		return "", ErrPaymentDeclined
	}

	txID := fmt.Sprintf("TXN-%s", uuid.New().String()[:8])
	util.PaymentSuccessTotal.Inc()
	ps.logger.Info("Payment succeeded",
		zap.String("order_id", order.ID),
		zap.String("tx_id", txID))
	return txID, nil
}
