package api

import (
	"net/http"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/checkout"

	"github.com/gin-gonic/gin"
)

type addItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) getCart(c *gin.Context) {
	summary, err := h.cart.Get(c.Request.Context(), cartSessionID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	summary, err := h.cart.AddItem(c.Request.Context(), cartSessionID(c), strings.TrimSpace(req.ProductID))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// updateCartItem sets a line's quantity. Quantities below 1 leave the line unchanged.
func (h *Handler) updateCartItem(c *gin.Context) {
	var req updateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	summary, err := h.cart.UpdateQuantity(c.Request.Context(), cartSessionID(c), c.Param("productId"), req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	summary, err := h.cart.RemoveItem(c.Request.Context(), cartSessionID(c), c.Param("productId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) clearCart(c *gin.Context) {
	summary, err := h.cart.Clear(c.Request.Context(), cartSessionID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// placeOrder runs checkout for the request's cart. The attempt is returned
// alongside any error so clients can see how far it got.
func (h *Handler) placeOrder(c *gin.Context) {
	if currentSession(c) == nil {
		h.writeError(c, apperr.ErrAuthRequired)
		return
	}

	var form checkout.ShippingForm
	if err := c.ShouldBindJSON(&form); err != nil {
		h.badRequest(c, err)
		return
	}

	attempt, err := h.checkout.Checkout(
		c.Request.Context(),
		currentSession(c),
		cartSessionID(c),
		form,
		strings.TrimSpace(c.GetHeader(IdempotencyHeader)),
	)
	if err != nil {
		h.writeCheckoutError(c, err, attempt)
		return
	}

	status := http.StatusCreated
	if attempt.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, attempt)
}
