package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"microtx-service/internal/auth"
	"microtx-service/internal/catalog"
	"microtx-service/internal/models"
	"microtx-service/internal/service"
	"microtx-service/internal/store"
	"microtx-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	orchestrator *service.Orchestrator
	registry     *catalog.Registry
	store        *store.Store
}

// NewHandler creates a new HTTP handler
func NewHandler(orchestrator *service.Orchestrator, registry *catalog.Registry, store *store.Store) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		registry:     registry,
		store:        store,
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
	v1.Use(principalMiddleware())
	{
		v1.POST("/transactions", h.initiateTransaction)
		v1.POST("/transactions/:order_id/finalize", h.finalizeTransaction)
		v1.GET("/transactions/:order_id", h.getTransaction)
		v1.GET("/payers/:payer_id/transactions", h.getPayerTransactions)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

type initiateRequest struct {
	PayerExternalID uint64        `json:"payer_external_id,string" binding:"required"`
	Language        string        `json:"language"`
	Currency        string        `json:"currency"`
	Items           []itemRequest `json:"items" binding:"required,min=1,dive"`
}

type itemRequest struct {
	ProductID uint32 `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// initiateTransaction builds a transaction proposal from the request
// and starts the two-phase purchase.
func (h *Handler) initiateTransaction(c *gin.Context) {
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	tx := models.NewTransaction(req.PayerExternalID)
	if req.Language != "" {
		tx.Language = req.Language
	}
	if req.Currency != "" {
		tx.Currency = req.Currency
	}

	for _, item := range req.Items {
		product, ok := h.registry.Lookup(item.ProductID)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Unknown product",
				"details": strconv.FormatUint(uint64(item.ProductID), 10),
			})
			return
		}
		if err := catalog.AddProduct(tx, product, item.Quantity); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid transaction proposal",
				"details": err.Error(),
			})
			return
		}
	}

	if err := h.orchestrator.InitiateTransaction(c.Request.Context(), tx); err != nil {
		status := statusForError(err)
		c.JSON(status, gin.H{
			"error":    "Failed to initiate transaction",
			"details":  err.Error(),
			"order_id": strconv.FormatUint(tx.OrderID, 10),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"order_id": strconv.FormatUint(tx.OrderID, 10),
		"state":    tx.State,
	})
}

type finalizeRequest struct {
	Authorized *bool `json:"authorized" binding:"required"`
}

// finalizeTransaction resolves the payer's decision for an order.
func (h *Handler) finalizeTransaction(c *gin.Context) {
	orderID, err := strconv.ParseUint(c.Param("order_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	var req finalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	tx, err := h.orchestrator.FinalizeTransaction(c.Request.Context(), orderID, *req.Authorized)
	if err != nil {
		c.JSON(statusForError(err), gin.H{
			"error":   "Failed to finalize transaction",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, tx)
}

// getTransaction returns the latest known record for an order. Useful
// for inspecting transactions stranded between authorization and
// delivery.
func (h *Handler) getTransaction(c *gin.Context) {
	orderID, err := strconv.ParseUint(c.Param("order_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	tx, err := h.store.GetTransactionByOrderID(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load transaction",
			"details": err.Error(),
		})
		return
	}
	if tx == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
		return
	}

	c.JSON(http.StatusOK, tx)
}

// getPayerTransactions lists every purchase attempt of a payer.
func (h *Handler) getPayerTransactions(c *gin.Context) {
	payerID, err := strconv.ParseUint(c.Param("payer_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payer ID"})
		return
	}

	txs, err := h.store.GetTransactionsByPayer(c.Request.Context(), payerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load transactions",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": txs,
		"count":        len(txs),
	})
}

func statusForError(err error) int {
	var authorityErr *models.AuthorityError
	switch {
	case errors.Is(err, models.ErrInvalidProposal):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrFinalizationInProgress):
		return http.StatusConflict
	case errors.As(err, &authorityErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// principalMiddleware attaches the authenticated principal id to the
// request context. Session validation itself lives at the gateway; the
// orchestrator only records who initiated the purchase.
func principalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if principal := c.GetHeader("X-Principal-Id"); principal != "" {
			ctx := auth.WithPrincipal(c.Request.Context(), principal)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
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
