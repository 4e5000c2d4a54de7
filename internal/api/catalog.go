package api

import (
	"net/http"
	"strconv"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/catalog"
	"storefront/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Storefront price slider bounds, used when a listing sends neither bound
var (
	defaultMinPrice = decimal.Zero
	defaultMaxPrice = decimal.NewFromInt(1000)
)

// parseFilter reads q, min_price, max_price, category and sort
func parseFilter(c *gin.Context) (catalog.Filter, error) {
	f := catalog.Filter{
		Query: strings.TrimSpace(c.Query("q")),
		Sort:  catalog.ParseSortOrder(c.Query("sort")),
	}

	verr := apperr.NewValidationError()
	for _, bound := range []struct {
		param string
		dst   **decimal.Decimal
	}{
		{"min_price", &f.MinPrice},
		{"max_price", &f.MaxPrice},
	} {
		raw := strings.TrimSpace(c.Query(bound.param))
		if raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil || v.IsNegative() {
			verr.Add(bound.param, "must be a non-negative number")
			continue
		}
		*bound.dst = &v
	}

	for _, raw := range c.QueryArray("category") {
		for _, name := range strings.Split(raw, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			cat := models.Category(name)
			if !cat.Valid() {
				verr.Add("category", "unknown category "+name)
				continue
			}
			f.Categories = append(f.Categories, cat)
		}
	}

	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		verr.Add("min_price", "must not exceed max_price")
	}
	return f, verr.OrNil()
}

// parsePage reads the non-negative from and size offsets. A missing size is
// left at 0 for the service default.
func parsePage(c *gin.Context) (int, int, error) {
	verr := apperr.NewValidationError()
	values := make([]int, 2)
	for i, param := range []string{"from", "size"} {
		raw := strings.TrimSpace(c.Query(param))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			verr.Add(param, "must be a non-negative integer")
			continue
		}
		values[i] = n
	}
	return values[0], values[1], verr.OrNil()
}

func (h *Handler) listProducts(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if f.MinPrice == nil && f.MaxPrice == nil {
		f.MinPrice, f.MaxPrice = &defaultMinPrice, &defaultMaxPrice
	}

	products, err := h.catalog.ListProducts(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "count": len(products)})
}

func (h *Handler) featuredProducts(c *gin.Context) {
	products, err := h.catalog.Featured(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) searchProducts(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	from, size, err := parsePage(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	res, err := h.catalog.Search(c.Request.Context(), f, from, size)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
