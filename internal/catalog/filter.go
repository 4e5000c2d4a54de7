package catalog

import (
	"sort"
	"strings"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// SortOrder selects how filtered products are ordered
type SortOrder string

const (
	SortFeatured  SortOrder = "featured"
	SortPriceAsc  SortOrder = "price-asc"
	SortPriceDesc SortOrder = "price-desc"
	SortNewest    SortOrder = "newest"
)

// ParseSortOrder maps a query value to a SortOrder, defaulting to featured
func ParseSortOrder(s string) SortOrder {
	switch SortOrder(strings.ToLower(strings.TrimSpace(s))) {
	case SortPriceAsc, "price_asc":
		return SortPriceAsc
	case SortPriceDesc, "price_desc":
		return SortPriceDesc
	case SortNewest:
		return SortNewest
	default:
		return SortFeatured
	}
}

// Filter narrows and orders a product list. Nil price bounds are open.
type Filter struct {
	Query      string
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	Categories []models.Category
	Sort       SortOrder
}

// Apply returns the products matching f in the requested order. The input is
// not modified and featured order keeps the input order.
func Apply(products []models.Product, f Filter) []models.Product {
	query := strings.ToLower(strings.TrimSpace(f.Query))

	var categories map[models.Category]struct{}
	if len(f.Categories) > 0 {
		categories = make(map[models.Category]struct{}, len(f.Categories))
		for _, c := range f.Categories {
			categories[c] = struct{}{}
		}
	}

	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if query != "" &&
			!strings.Contains(strings.ToLower(p.Name), query) &&
			!strings.Contains(strings.ToLower(p.Description), query) {
			continue
		}
		if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
			continue
		}
		if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
			continue
		}
		if categories != nil {
			if _, ok := categories[p.Category]; !ok {
				continue
			}
		}
		out = append(out, p)
	}

	switch f.Sort {
	case SortPriceAsc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	case SortPriceDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price.GreaterThan(out[j].Price) })
	case SortNewest:
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}

	return out
}

// MatchAdmin filters products by a case-insensitive substring of name or category
func MatchAdmin(products []models.Product, query string) []models.Product {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return products
	}
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Name), query) ||
			strings.Contains(strings.ToLower(string(p.Category)), query) {
			out = append(out, p)
		}
	}
	return out
}
