package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/auth"
	"checkout-service/internal/service"
	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// maxWebhookBody caps how much of a provider callback is read
const maxWebhookBody = 1 << 20

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	carts      *service.CartService
	orders     *service.OrderService
	checkout   *service.CheckoutService
	reconciler *service.PaymentReconciler
	store      Pinger
	cache      Pinger
	jwtSecret  string
	logger     *zap.Logger
}

// NewHandler creates a new HTTP handler. cache may be nil when Redis is not in use.
func NewHandler(
	carts *service.CartService,
	orders *service.OrderService,
	checkout *service.CheckoutService,
	reconciler *service.PaymentReconciler,
	store Pinger,
	cache Pinger,
	jwtSecret string,
) *Handler {
	return &Handler{
		carts:      carts,
		orders:     orders,
		checkout:   checkout,
		reconciler: reconciler,
		store:      store,
		cache:      cache,
		jwtSecret:  jwtSecret,
		logger:     util.GetLogger(),
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

	router.POST("/webhooks/payment", h.paymentWebhook)

	authed := router.Group("/", auth.Middleware(h.jwtSecret))
	{
		authed.GET("/cart", h.getCart)
		authed.POST("/cart", h.addToCart)
		authed.DELETE("/cart-item", h.removeFromCart)

		authed.POST("/orders", h.createOrder)
		authed.GET("/orders", h.listOrders)
		authed.PUT("/orders", h.setShipped)

		authed.POST("/payments/link", h.createPaymentLink)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when the store (and cache, if any) answer
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{"store": "ok"}
	ready := true
	if err := h.store.Ping(ctx); err != nil {
		checks["store"] = err.Error()
		ready = false
	}
	if h.cache != nil {
		checks["cache"] = "ok"
		if err := h.cache.Ping(ctx); err != nil {
			checks["cache"] = err.Error()
			ready = false
		}
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not ready", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

type addToCartRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// addToCart handles POST /cart
func (h *Handler) addToCart(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}

	var req addToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.New(apperr.InvalidInput, "invalid request body"))
		return
	}

	if _, err := h.carts.AddItem(c.Request.Context(), id, req.ProductID, req.Quantity); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "product added to cart"})
}

type removeFromCartRequest struct {
	ProductID string `json:"productId"`
}

// removeFromCart handles DELETE /cart-item. The product id may come in the body or the query.
func (h *Handler) removeFromCart(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}

	productID := c.Query("productId")
	if productID == "" && c.Request.ContentLength != 0 {
		var req removeFromCartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.fail(c, apperr.New(apperr.InvalidInput, "invalid request body"))
			return
		}
		productID = req.ProductID
	}

	if _, err := h.carts.RemoveOneUnit(c.Request.Context(), id, productID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "cart item updated"})
}

// getCart handles GET /cart
func (h *Handler) getCart(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}

	lines, err := h.carts.GetCart(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": lines})
}

type createOrderRequest struct {
	Freight json.RawMessage `json:"freight"`
}

// createOrder handles POST /orders
func (h *Handler) createOrder(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.New(apperr.InvalidInput, "invalid request body"))
		return
	}
	freight, err := service.ParseFreight(req.Freight)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp, err := h.orders.CreateOrder(c.Request.Context(), id, freight)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"msg":     "order created",
		"orderId": resp.OrderID,
		"total":   resp.Total,
		"freight": resp.Freight,
	})
}

// listOrders handles GET /orders
func (h *Handler) listOrders(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}

	orders, err := h.orders.ListOrders(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

type setShippedRequest struct {
	Shipped *bool `json:"shipped"`
}

// setShipped handles PUT /orders?id=
func (h *Handler) setShipped(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	if !id.IsAdmin() {
		h.fail(c, apperr.New(apperr.Forbidden, "admins only"))
		return
	}

	orderID := c.Query("id")
	if orderID == "" {
		orderID = c.Query("_id")
	}

	var req setShippedRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Shipped == nil {
		h.fail(c, apperr.New(apperr.InvalidInput, `"shipped" (boolean) is required`))
		return
	}

	if err := h.orders.SetShipped(c.Request.Context(), id, orderID, *req.Shipped); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "shipping status updated"})
}

type paymentLinkRequest struct {
	OrderID string `json:"orderId"`
}

// createPaymentLink handles POST /payments/link
func (h *Handler) createPaymentLink(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}

	var req paymentLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.New(apperr.InvalidInput, "invalid request body"))
		return
	}

	link, err := h.checkout.CreatePaymentLink(c.Request.Context(), id, req.OrderID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "payment link created", "data": link})
}

// paymentWebhook handles provider callbacks. It is not behind auth; authenticity comes
// from the signature headers and the provider lookup.
func (h *Handler) paymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		h.fail(c, apperr.New(apperr.InvalidNotification, "unreadable body"))
		return
	}

	res, err := h.reconciler.HandleNotification(c.Request.Context(), service.NotificationRequest{
		Body:      body,
		Query:     c.Request.URL.Query(),
		Signature: c.GetHeader("x-signature"),
		RequestID: c.GetHeader("x-request-id"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": outcomeMessage(res)})
}

func outcomeMessage(res *service.NotificationResult) string {
	switch res.Outcome {
	case service.OutcomeIgnored:
		return "notification ignored"
	case service.OutcomeNotApproved:
		return "ignored: status " + res.PaymentStatus
	case service.OutcomeAlreadyApproved:
		return "order was already approved"
	case service.OutcomeOrderClosed:
		return "order is no longer awaiting payment"
	}
	if len(res.FailedLines) > 0 {
		return "order approved; stock not updated for " + strings.Join(res.FailedLines, ", ")
	}
	return "order approved and stock decremented"
}

func (h *Handler) identity(c *gin.Context) (auth.Identity, bool) {
	id, ok := auth.FromContext(c)
	if !ok {
		h.fail(c, apperr.New(apperr.Unauthenticated, "not authenticated"))
	}
	return id, ok
}

// fail renders err as an {erro} envelope. Internal detail stays in the log.
func (h *Handler) fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("kind", kind.String()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"erro": apperr.PublicMessage(err)})
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
