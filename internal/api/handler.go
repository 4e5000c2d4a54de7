package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles the application services the handler dispatches to
type Services struct {
	Auth     *service.AuthService
	Catalog  *service.CatalogService
	Cart     *service.CartService
	Checkout *service.CheckoutService
	Orders   *service.OrderService
}

// Handler contains HTTP handlers
type Handler struct {
	auth     *service.AuthService
	catalog  *service.CatalogService
	cart     *service.CartService
	checkout *service.CheckoutService
	orders   *service.OrderService
	ready    []Pinger
	cartTTL  time.Duration
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler. Every Pinger must succeed for /ready.
func NewHandler(svc Services, cartTTL time.Duration, ready ...Pinger) *Handler {
	return &Handler{
		auth:     svc.Auth,
		catalog:  svc.Catalog,
		cart:     svc.Cart,
		checkout: svc.Checkout,
		orders:   svc.Orders,
		ready:    ready,
		cartTTL:  cartTTL,
		logger:   util.GetLogger().Named("api"),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(h.authenticate())
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/featured", h.featuredProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.GET("/search", h.searchProducts)

		cart := v1.Group("/cart", h.cartSession())
		{
			cart.GET("", h.getCart)
			cart.POST("/items", h.addCartItem)
			cart.PUT("/items/:productId", h.updateCartItem)
			cart.DELETE("/items/:productId", h.removeCartItem)
			cart.DELETE("", h.clearCart)
		}
		v1.POST("/checkout", h.cartSession(), h.placeOrder)

		auth := v1.Group("/auth")
		{
			auth.POST("/register", h.register)
			auth.POST("/login", h.login)
			auth.POST("/logout", h.logout)
			auth.GET("/me", h.me)
		}

		v1.GET("/likes", h.listLikes)
		v1.POST("/likes/:productId", h.toggleLike)

		v1.GET("/orders", h.listMyOrders)
		v1.GET("/orders/:id", h.getOrder)

		admin := v1.Group("/admin")
		{
			admin.GET("/products", h.adminSearchProducts)
			admin.POST("/products", h.createProduct)
			admin.PATCH("/products/:id", h.updateProduct)
			admin.DELETE("/products/:id", h.deleteProduct)
			admin.GET("/orders", h.adminListOrders)
			admin.GET("/orders/stats", h.adminOrderStats)
			admin.PUT("/orders/:id/status", h.adminUpdateOrderStatus)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency the service needs to take traffic
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	for _, p := range h.ready {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unavailable",
				"time":   time.Now().Unix(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
