package service

import (
	"context"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentConfirmSucceeds(t *testing.T) {
	ps := NewPaymentService(10*time.Millisecond, 1)

	start := time.Now()
	txID, err := ps.Confirm(context.Background(), &models.Order{ID: "o1", Total: decimal.NewFromInt(95)})
	require.NoError(t, err)

	assert.Contains(t, txID, "TXN-")
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestPaymentConfirmDeclines(t *testing.T) {
	ps := NewPaymentService(0, 0.9)
	ps.roll = func() float64 { return 0.95 }

	_, err := ps.Confirm(context.Background(), &models.Order{ID: "o1"})
	assert.ErrorIs(t, err, ErrPaymentDeclined)
}

func TestPaymentConfirmHonoursCancellation(t *testing.T) {
	ps := NewPaymentService(time.Hour, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ps.Confirm(ctx, &models.Order{ID: "o1"})
	assert.ErrorIs(t, err, context.Canceled)
}
