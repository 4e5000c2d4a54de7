// Package cart implements the per-session shopping cart.
//
// A Cart is owned by a single session and is not safe for concurrent use.
// Totals are derived from the lines on every read.
package cart

import (
	"encoding/json"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

var (
	// FreeShippingThreshold is the subtotal that must be exceeded for free shipping
	FreeShippingThreshold = decimal.NewFromInt(100)
	// FlatShippingFee applies when the subtotal does not exceed FreeShippingThreshold
	FlatShippingFee = decimal.NewFromInt(10)
)

// Cart is an ordered set of lines keyed by product id
type Cart struct {
	lines []models.CartLine
}

// New returns an empty cart
func New() *Cart {
	return &Cart{}
}

// FromLines rebuilds a cart from stored lines. Lines with a repeated product id
// are merged and lines with quantity below 1 are dropped.
func FromLines(lines []models.CartLine) *Cart {
	c := New()
	for _, l := range lines {
		if l.Quantity < 1 {
			continue
		}
		if i := c.find(l.ProductID); i >= 0 {
			c.lines[i].Quantity += l.Quantity
			continue
		}
		c.lines = append(c.lines, l)
	}
	return c
}

// AddItem increments the line for p or inserts a new line with quantity 1,
// snapshotting name, price and image. Stock is not checked.
func (c *Cart) AddItem(p models.Product) {
	if i := c.find(p.ID); i >= 0 {
		c.lines[i].Quantity++
		return
	}
	c.lines = append(c.lines, models.CartLine{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		ImageURL:  p.ImageURL,
		Quantity:  1,
	})
}

// UpdateQuantity sets the quantity of an existing line. Quantities below 1
// are rejected and leave the line unchanged; use RemoveItem to drop a line.
// It reports whether the cart changed.
func (c *Cart) UpdateQuantity(id string, quantity int) bool {
	if quantity < 1 {
		return false
	}
	i := c.find(id)
	if i < 0 {
		return false
	}
	c.lines[i].Quantity = quantity
	return true
}

// RemoveItem deletes the line for id if present
func (c *Cart) RemoveItem(id string) {
	i := c.find(id)
	if i < 0 {
		return
	}
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
}

// Clear empties the cart
func (c *Cart) Clear() {
	c.lines = nil
}

// Lines returns a copy of the lines in insertion order
func (c *Cart) Lines() []models.CartLine {
	out := make([]models.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

// Line returns the line for id
func (c *Cart) Line(id string) (models.CartLine, bool) {
	i := c.find(id)
	if i < 0 {
		return models.CartLine{}, false
	}
	return c.lines[i], true
}

// Len returns the number of distinct lines
func (c *Cart) Len() int {
	return len(c.lines)
}

// IsEmpty reports whether the cart has no lines
func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// ItemCount returns the sum of all quantities
func (c *Cart) ItemCount() int {
	n := 0
	for _, l := range c.lines {
		n += l.Quantity
	}
	return n
}

// Subtotal returns Σ price × quantity
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range c.lines {
		sum = sum.Add(l.LineTotal())
	}
	return sum
}

// ShippingFee returns 0 when the subtotal exceeds the threshold, the flat fee otherwise
func (c *Cart) ShippingFee() decimal.Decimal {
	return ShippingFor(c.Subtotal())
}

// Total returns subtotal plus shipping
func (c *Cart) Total() decimal.Decimal {
	subtotal := c.Subtotal()
	return subtotal.Add(ShippingFor(subtotal))
}

// ShippingFor returns the shipping fee for a subtotal
func ShippingFor(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThan(FreeShippingThreshold) {
		return decimal.Zero
	}
	return FlatShippingFee
}

// Summary is the derived view of a cart
type Summary struct {
	Items     []models.CartLine `json:"items"`
	ItemCount int               `json:"itemCount"`
	Subtotal  decimal.Decimal   `json:"subtotal"`
	Shipping  decimal.Decimal   `json:"shipping"`
	Total     decimal.Decimal   `json:"total"`
}

// Summary computes the derived totals
func (c *Cart) Summary() Summary {
	subtotal := c.Subtotal()
	shipping := ShippingFor(subtotal)
	return Summary{
		Items:     c.Lines(),
		ItemCount: c.ItemCount(),
		Subtotal:  subtotal,
		Shipping:  shipping,
		Total:     subtotal.Add(shipping),
	}
}

// MarshalJSON encodes the cart as its list of lines
func (c *Cart) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Lines())
}

// UnmarshalJSON decodes a list of lines
func (c *Cart) UnmarshalJSON(data []byte) error {
	var lines []models.CartLine
	if err := json.Unmarshal(data, &lines); err != nil {
		return err
	}
	*c = *FromLines(lines)
	return nil
}

func (c *Cart) find(id string) int {
	for i := range c.lines {
		if c.lines[i].ProductID == id {
			return i
		}
	}
	return -1
}
