package cart

import (
	"encoding/json"
	"testing"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func product(id string, price string) models.Product {
	return models.Product{
		ID:       id,
		Name:     "product " + id,
		Price:    decimal.RequireFromString(price),
		ImageURL: "https://img.example/" + id + ".png",
		Category: models.CategoryAudio,
		Stock:    5,
	}
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(expected).Equal(actual),
		"expected %s, got %s", expected, actual.String())
}

func TestAddItemCountsPerProduct(t *testing.T) {
	c := New()
	sequence := []string{"a", "b", "a", "c", "a", "b"}
	for _, id := range sequence {
		c.AddItem(product(id, "1.50"))
	}

	require.Equal(t, 3, c.Len())

	expected := map[string]int{"a": 3, "b": 2, "c": 1}
	for id, qty := range expected {
		line, ok := c.Line(id)
		require.True(t, ok, id)
		assert.Equal(t, qty, line.Quantity, id)
	}
	assert.Equal(t, len(sequence), c.ItemCount())

	lines := c.Lines()
	assert.Equal(t, "a", lines[0].ProductID)
	assert.Equal(t, "b", lines[1].ProductID)
	assert.Equal(t, "c", lines[2].ProductID)
}

func TestAddItemSnapshotsProduct(t *testing.T) {
	c := New()
	p := product("a", "30")
	c.AddItem(p)

	p.Price = decimal.NewFromInt(99)
	p.Name = "renamed"
	c.AddItem(p)

	line, ok := c.Line("a")
	require.True(t, ok)
	assert.Equal(t, 2, line.Quantity)
	assert.Equal(t, "product a", line.Name)
	assertDecimal(t, "30", line.Price)
	assert.Equal(t, "https://img.example/a.png", line.ImageURL)
}

func TestUpdateQuantity(t *testing.T) {
	c := New()
	c.AddItem(product("a", "10"))

	assert.True(t, c.UpdateQuantity("a", 4))
	line, _ := c.Line("a")
	assert.Equal(t, 4, line.Quantity)

	t.Run("zero is rejected", func(t *testing.T) {
		assert.False(t, c.UpdateQuantity("a", 0))
		line, ok := c.Line("a")
		require.True(t, ok)
		assert.Equal(t, 4, line.Quantity)
	})

	t.Run("negative is rejected", func(t *testing.T) {
		assert.False(t, c.UpdateQuantity("a", -3))
		line, _ := c.Line("a")
		assert.Equal(t, 4, line.Quantity)
	})

	t.Run("unknown id is a no-op", func(t *testing.T) {
		assert.False(t, c.UpdateQuantity("missing", 2))
		assert.Equal(t, 1, c.Len())
	})
}

func TestRemoveItem(t *testing.T) {
	c := New()
	c.AddItem(product("a", "10"))
	c.AddItem(product("b", "20"))
	c.AddItem(product("c", "30"))

	c.RemoveItem("b")
	c.RemoveItem("missing")

	lines := c.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "a", lines[0].ProductID)
	assert.Equal(t, "c", lines[1].ProductID)
}

func TestClear(t *testing.T) {
	c := New()
	c.AddItem(product("a", "10"))
	c.Clear()

	assert.True(t, c.IsEmpty())
	assert.Equal(t, 0, c.ItemCount())
	assertDecimal(t, "0", c.Subtotal())
}

func TestShippingThreshold(t *testing.T) {
	tests := []struct {
		name     string
		subtotal string
		shipping string
	}{
		{name: "empty", subtotal: "0", shipping: "10"},
		{name: "below", subtotal: "99.99", shipping: "10"},
		{name: "exactly threshold", subtotal: "100", shipping: "10"},
		{name: "just above", subtotal: "100.01", shipping: "0"},
		{name: "well above", subtotal: "1299.99", shipping: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertDecimal(t, tt.shipping, ShippingFor(decimal.RequireFromString(tt.subtotal)))
		})
	}
}

func TestCartExactlyAtThreshold(t *testing.T) {
	c := New()
	c.AddItem(product("a", "50"))
	c.UpdateQuantity("a", 2)

	assertDecimal(t, "100", c.Subtotal())
	assertDecimal(t, "10", c.ShippingFee())
	assertDecimal(t, "110", c.Total())
}

func TestTotalsScenario(t *testing.T) {
	c := New()
	c.AddItem(product("A", "30"))
	c.AddItem(product("A", "30"))
	c.AddItem(product("B", "25"))

	assertDecimal(t, "85", c.Subtotal())
	assertDecimal(t, "10", c.ShippingFee())
	assertDecimal(t, "95", c.Total())
	assert.Equal(t, 3, c.ItemCount())

	require.True(t, c.UpdateQuantity("B", 2))

	assertDecimal(t, "110", c.Subtotal())
	assertDecimal(t, "0", c.ShippingFee())
	assertDecimal(t, "110", c.Total())

	s := c.Summary()
	assert.Equal(t, 4, s.ItemCount)
	assertDecimal(t, "110", s.Total)
	assert.Len(t, s.Items, 2)
}

func TestJSONRoundTripKeepsOrderAndMergesDuplicates(t *testing.T) {
	raw := `[
		{"id":"b","name":"B","price":"25","imageUrl":"","quantity":1},
		{"id":"a","name":"A","price":"30","imageUrl":"","quantity":2},
		{"id":"b","name":"B","price":"25","imageUrl":"","quantity":2},
		{"id":"z","name":"Z","price":"1","imageUrl":"","quantity":0}
	]`

	var c Cart
	require.NoError(t, json.Unmarshal([]byte(raw), &c))

	lines := c.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "b", lines[0].ProductID)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.Equal(t, "a", lines[1].ProductID)

	out, err := json.Marshal(&c)
	require.NoError(t, err)

	var again Cart
	require.NoError(t, json.Unmarshal(out, &again))
	assert.Equal(t, c.Lines(), again.Lines())
}
