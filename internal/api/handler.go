package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/media"
	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles everything the HTTP layer serves
type Services struct {
	Catalog   *service.CatalogService
	Taxonomy  *service.TaxonomyService
	Orders    *service.OrderService
	Messages  *service.MessageService
	Cart      *service.CartService
	Dashboard *service.DashboardService
	Auth      *service.AuthService
	Uploader  *media.Uploader
	Ready     map[string]Pinger
}

// Handler contains HTTP handlers
type Handler struct {
	catalog   *service.CatalogService
	taxonomy  *service.TaxonomyService
	orders    *service.OrderService
	messages  *service.MessageService
	cart      *service.CartService
	dashboard *service.DashboardService
	auth      *service.AuthService
	uploader  *media.Uploader
	ready     map[string]Pinger
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(s Services) *Handler {
	return &Handler{
		catalog:   s.Catalog,
		taxonomy:  s.Taxonomy,
		orders:    s.Orders,
		messages:  s.Messages,
		cart:      s.Cart,
		dashboard: s.Dashboard,
		auth:      s.Auth,
		uploader:  s.Uploader,
		ready:     s.Ready,
		logger:    util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(util.ServiceName))
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.GET("/categories", h.listCategories)
		v1.GET("/brands", h.listBrands)

		cart := v1.Group("/cart", cartSession())
		{
			cart.GET("", h.viewCart)
			cart.POST("", h.newCart)
			cart.DELETE("", h.clearCart)
			cart.POST("/items", h.addCartItem)
			cart.PATCH("/items/:productId", h.updateCartItem)
			cart.DELETE("/items/:productId", h.removeCartItem)
			cart.POST("/checkout", h.checkout)
		}

		v1.POST("/orders", h.createOrder)
		v1.POST("/messages", h.createMessage)

		v1.POST("/auth/login", h.login)
		v1.GET("/auth/me", requireAdmin(h.auth), h.me)
	}

	admin := v1.Group("/admin", requireAdmin(h.auth))
	{
		admin.GET("/dashboard", h.getDashboard)

		admin.POST("/products", h.createProduct)
		admin.PATCH("/products/:id", h.updateProduct)
		admin.DELETE("/products/:id", h.deleteProduct)
		admin.POST("/products/:id/availability", h.setAvailability)

		admin.POST("/categories", h.createCategory)
		admin.PATCH("/categories/:id", h.updateCategory)
		admin.DELETE("/categories/:id", h.deleteCategory)
		admin.POST("/brands", h.createBrand)
		admin.PATCH("/brands/:id", h.updateBrand)
		admin.DELETE("/brands/:id", h.deleteBrand)

		admin.POST("/uploads", h.uploadImage)
		admin.DELETE("/uploads/*publicId", h.deleteImage)

		admin.GET("/orders", h.listOrders)
		admin.GET("/orders/history", h.listOrderHistory)
		admin.GET("/orders/:id", h.getOrder)
		admin.PATCH("/orders/:id", h.updateOrderStatus)
		admin.POST("/orders/:id/advance", h.advanceOrder)
		admin.POST("/orders/:id/archive", h.archiveOrder)

		admin.GET("/messages", h.listMessages)
		admin.GET("/messages/history", h.listMessageHistory)
		admin.GET("/messages/:id", h.getMessage)
		admin.PATCH("/messages/:id", h.updateMessageStatus)
		admin.POST("/messages/:id/advance", h.advanceMessage)
		admin.POST("/messages/:id/archive", h.archiveMessage)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every backing service
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, dep := range h.ready {
		if err := dep.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
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
