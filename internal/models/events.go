package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderPaid          = "ORDER_PAID"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeProductCreated     = "PRODUCT_CREATED"
	EventTypeProductUpdated     = "PRODUCT_UPDATED"
	EventTypeProductDeleted     = "PRODUCT_DELETED"
	EventTypeUserLoggedIn       = "USER_LOGGED_IN"
	EventTypeUserLoggedOut      = "USER_LOGGED_OUT"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event id and the current time
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// OrderCreatedEvent published when checkout persists an order
type OrderCreatedEvent struct {
	BaseEvent
	OrderID string          `json:"order_id"`
	UserID  string          `json:"user_id"`
	Total   decimal.Decimal `json:"total"`
	Items   []CartLine      `json:"items"`
}

// OrderPaidEvent published when the payment confirmation is recorded
type OrderPaidEvent struct {
	BaseEvent
	OrderID string          `json:"order_id"`
	UserID  string          `json:"user_id"`
	Amount  decimal.Decimal `json:"amount"`
	TxID    string          `json:"tx_id"`
}

// OrderStatusChangedEvent published on admin status transitions
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID string      `json:"order_id"`
	From    OrderStatus `json:"from"`
	To      OrderStatus `json:"to"`
}

// ProductEvent published on catalog changes. Product is nil for deletions.
type ProductEvent struct {
	BaseEvent
	ProductID string   `json:"product_id"`
	Product   *Product `json:"product,omitempty"`
}

// AuthEvent published on login and logout
type AuthEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}
