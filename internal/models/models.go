package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Category is one of the fixed storefront categories
type Category string

const (
	CategoryElectronics Category = "electronics"
	CategorySmartphones Category = "smartphones"
	CategoryAudio       Category = "audio"
	CategoryCameras     Category = "cameras"
	CategoryWearables   Category = "wearables"
	CategoryAccessories Category = "accessories"
)

// Categories lists every valid category in display order
var Categories = []Category{
	CategoryElectronics,
	CategorySmartphones,
	CategoryAudio,
	CategoryCameras,
	CategoryWearables,
	CategoryAccessories,
}

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Product represents a product in the catalog
type Product struct {
	ID          string          `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price" json:"price"`
	ImageURL    string          `db:"image_url" json:"imageUrl"`
	Category    Category        `db:"category" json:"category"`
	Stock       int             `db:"stock" json:"stock"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
}

// CartLine is a product snapshot held in a cart
type CartLine struct {
	ProductID string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	ImageURL  string          `json:"imageUrl"`
	Quantity  int             `json:"quantity"`
}

// LineTotal returns price × quantity
func (l CartLine) LineTotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartLines is stored as a JSON column on orders
type CartLines []CartLine

// Value implements driver.Valuer
func (l CartLines) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner
func (l *CartLines) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// ShippingAddress is the shipping snapshot stored with an order
type ShippingAddress struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// Value implements driver.Valuer
func (a ShippingAddress) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements sql.Scanner
func (a *ShippingAddress) Scan(src interface{}) error {
	return scanJSON(src, a)
}

// Order represents a submitted checkout
type Order struct {
	ID              string          `db:"id" json:"id"`
	UserID          string          `db:"user_id" json:"userId"`
	Items           CartLines       `db:"items" json:"items"`
	Subtotal        decimal.Decimal `db:"subtotal" json:"subtotal"`
	Shipping        decimal.Decimal `db:"shipping" json:"shipping"`
	Total           decimal.Decimal `db:"total" json:"total"`
	Status          OrderStatus     `db:"status" json:"status"`
	PaymentStatus   PaymentStatus   `db:"payment_status" json:"paymentStatus"`
	ShippingAddress ShippingAddress `db:"shipping_address" json:"shippingAddress"`
	IdempotencyKey  string          `db:"idempotency_key" json:"-"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
}

// OrderUpdate is an append-only status record for an order
type OrderUpdate struct {
	ID            string        `db:"id" json:"id"`
	OrderID       string        `db:"order_id" json:"orderId"`
	Status        OrderStatus   `db:"status" json:"status"`
	PaymentStatus PaymentStatus `db:"payment_status" json:"paymentStatus,omitempty"`
	Note          string        `db:"note" json:"note,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"timestamp"`
}

// OrderStatus is the fulfilment state of an order
type OrderStatus string

// Order statuses
const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// PaymentStatus is the capture state of an order's payment
type PaymentStatus string

// Payment statuses
const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Role controls access to admin operations
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// UserProfile represents a registered user
type UserProfile struct {
	ID            string         `db:"id" json:"uid"`
	Email         string         `db:"email" json:"email"`
	DisplayName   string         `db:"display_name" json:"displayName"`
	PasswordHash  string         `db:"password_hash" json:"-"`
	Role          Role           `db:"role" json:"role"`
	LikedProducts pq.StringArray `db:"liked_products" json:"likedProducts"`
	CreatedAt     time.Time      `db:"created_at" json:"createdAt"`
}

func scanJSON(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
}

// ProductPatch is a partial product update. Nil fields are left unchanged.
type ProductPatch struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	ImageURL    *string          `json:"imageUrl,omitempty"`
	Category    *Category        `json:"category,omitempty"`
	Stock       *int             `json:"stock,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p ProductPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil &&
		p.ImageURL == nil && p.Category == nil && p.Stock == nil
}

// Apply copies the set fields onto product
func (p ProductPatch) Apply(product *Product) {
	if p.Name != nil {
		product.Name = *p.Name
	}
	if p.Description != nil {
		product.Description = *p.Description
	}
	if p.Price != nil {
		product.Price = *p.Price
	}
	if p.ImageURL != nil {
		product.ImageURL = *p.ImageURL
	}
	if p.Category != nil {
		product.Category = *p.Category
	}
	if p.Stock != nil {
		product.Stock = *p.Stock
	}
}

// OrderStats summarises all orders for the admin dashboard
type OrderStats struct {
	TotalOrders    int             `db:"total_orders" json:"totalOrders"`
	TotalRevenue   decimal.Decimal `db:"total_revenue" json:"totalRevenue"`
	DeliveredCount int             `db:"delivered_count" json:"deliveredCount"`
	PendingCount   int             `db:"pending_count" json:"pendingCount"`
	CompletionRate float64         `db:"-" json:"completionRate"`
}
