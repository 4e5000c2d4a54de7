package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"displayName"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	res, err := h.auth.Register(c.Request.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	res, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), currentSession(c)); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) me(c *gin.Context) {
	sess := currentSession(c)
	user, err := h.auth.CurrentUser(c.Request.Context(), sess)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "role": sess.Role})
}

func (h *Handler) listLikes(c *gin.Context) {
	ids, err := h.auth.LikedProducts(c.Request.Context(), currentSession(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	products, err := h.catalog.ProductsByIDs(c.Request.Context(), ids)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"productIds": ids, "products": products})
}

func (h *Handler) toggleLike(c *gin.Context) {
	productID := c.Param("productId")
	liked, err := h.auth.ToggleLike(c.Request.Context(), currentSession(c), productID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"productId": productID, "liked": liked})
}
