package api

import (
	"net/http"
	"strings"

	"storefront/internal/models"

	"github.com/gin-gonic/gin"
)

type statusUpdateRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
	Note   string             `json:"note"`
}

func (h *Handler) listMyOrders(c *gin.Context) {
	orders, err := h.orders.ListMine(c.Request.Context(), currentSession(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getOrder(c *gin.Context) {
	detail, err := h.orders.GetOrder(c.Request.Context(), currentSession(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) adminListOrders(c *gin.Context) {
	status := models.OrderStatus(strings.ToLower(strings.TrimSpace(c.Query("status"))))
	orders, err := h.orders.ListAll(c.Request.Context(), currentSession(c), status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) adminOrderStats(c *gin.Context) {
	stats, err := h.orders.Stats(c.Request.Context(), currentSession(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) adminUpdateOrderStatus(c *gin.Context) {
	var req statusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), currentSession(c), c.Param("id"), req.Status, req.Note)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) adminSearchProducts(c *gin.Context) {
	products, err := h.catalog.AdminSearch(c.Request.Context(), currentSession(c), c.Query("q"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) createProduct(c *gin.Context) {
	var p models.Product
	if err := c.ShouldBindJSON(&p); err != nil {
		h.badRequest(c, err)
		return
	}

	created, err := h.catalog.CreateProduct(c.Request.Context(), currentSession(c), p)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) updateProduct(c *gin.Context) {
	var patch models.ProductPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.badRequest(c, err)
		return
	}

	updated, err := h.catalog.UpdateProduct(c.Request.Context(), currentSession(c), c.Param("id"), patch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	if err := h.catalog.DeleteProduct(c.Request.Context(), currentSession(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
