package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"commerce-sync/internal/models"
	"commerce-sync/internal/scheduler"
	"commerce-sync/internal/service"
	"commerce-sync/internal/shopify"
	"commerce-sync/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SyncService is the part of the sync engine exposed over HTTP
type SyncService interface {
	ActiveTenant(ctx context.Context, id string) (*models.Tenant, error)
	SyncEntity(ctx context.Context, tenant *models.Tenant, entityType string) (*service.SyncResults, error)
	Status(ctx context.Context, tenantID string) (*service.SyncStatus, error)
	Logs(ctx context.Context, tenantID string, page, limit int, entityType string) (*service.SyncLogPage, error)
	TestConnection(ctx context.Context, tenant *models.Tenant) (*shopify.Shop, error)
}

// TenantSyncer runs on-demand quick syncs and reports scheduler state
type TenantSyncer interface {
	SyncTenantByID(ctx context.Context, tenantID string) scheduler.Outcome
	Status(ctx context.Context) (*scheduler.ScheduleStatus, error)
}

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	sync   SyncService
	syncer TenantSyncer
	checks map[string]ReadinessCheck
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(sync SyncService, syncer TenantSyncer, checks map[string]ReadinessCheck) *Handler {
	return &Handler{
		sync:   sync,
		syncer: syncer,
		checks: checks,
		logger: util.GetLogger(),
	}
}

// SyncRequest selects what an on-demand sync covers
type SyncRequest struct {
	EntityType string `json:"entityType"`
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ingestion := router.Group("/api/v1/ingestion")
	{
		ingestion.POST("/sync/:tenantId", h.syncTenant)
		ingestion.POST("/sync/:tenantId/quick", h.quickSyncTenant)
		ingestion.POST("/test/:tenantId", h.testConnection)
		ingestion.GET("/status", h.schedulerStatus)
		ingestion.GET("/status/:tenantId", h.syncStatus)
		ingestion.GET("/logs/:tenantId", h.syncLogs)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports not ready while any dependency check fails
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	failures := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "not ready",
			"failures": failures,
			"time":     time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// syncTenant runs an on-demand sync of one entity type or all of them
func (h *Handler) syncTenant(c *gin.Context) {
	var req SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.EntityType != "" && req.EntityType != "all" && !service.ValidEntity(req.EntityType) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid entity type",
			"details": "entityType must be one of customers, orders, products, all",
		})
		return
	}

	tenant, ok := h.activeTenant(c)
	if !ok {
		return
	}

	results, err := h.sync.SyncEntity(c.Request.Context(), tenant, req.EntityType)
	if err != nil {
		h.logger.Error("On-demand sync failed",
			zap.String("tenant_id", tenant.ID),
			zap.String("entity_type", req.EntityType),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Sync failed",
			"message": err.Error(),
			"results": results,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Sync completed successfully",
		"results":   results,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// quickSyncTenant runs the same quick sync the scheduler runs
func (h *Handler) quickSyncTenant(c *gin.Context) {
	if _, ok := h.activeTenant(c); !ok {
		return
	}

	outcome := h.syncer.SyncTenantByID(c.Request.Context(), c.Param("tenantId"))
	c.JSON(outcomeStatus(outcome), outcome)
}

func outcomeStatus(outcome scheduler.Outcome) int {
	if outcome.Success {
		return http.StatusOK
	}
	switch outcome.Reason {
	case scheduler.ReasonInProgress:
		return http.StatusConflict
	case scheduler.ReasonNotFound, scheduler.ReasonInactive:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// testConnection checks the tenant's storefront credentials by reading the store profile
func (h *Handler) testConnection(c *gin.Context) {
	tenant, ok := h.activeTenant(c)
	if !ok {
		return
	}

	shop, err := h.sync.TestConnection(c.Request.Context(), tenant)
	if err != nil {
		detail := err.Error()
		var apiErr *shopify.APIError
		if errors.As(err, &apiErr) {
			detail = apiErr.Detail
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Shopify connection failed",
			"error":   detail,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Shopify connection successful",
		"shop":    shop,
	})
}

// schedulerStatus lists every active tenant with its latest sync
func (h *Handler) schedulerStatus(c *gin.Context) {
	status, err := h.syncer.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to get scheduler status",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, status)
}

// syncStatus handles tenant sync status requests
func (h *Handler) syncStatus(c *gin.Context) {
	tenantID := c.Param("tenantId")
	if !h.tenantExists(c) {
		return
	}

	status, err := h.sync.Status(c.Request.Context(), tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to get sync status",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, status)
}

// syncLogs handles paged sync log requests
func (h *Handler) syncLogs(c *gin.Context) {
	tenantID := c.Param("tenantId")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	if !h.tenantExists(c) {
		return
	}

	result, err := h.sync.Logs(c.Request.Context(), tenantID, page, limit, c.Query("entityType"))
	if errors.Is(err, service.ErrUnknownEntity) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid entity type",
			"details": err.Error(),
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to get sync logs",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// activeTenant resolves the path tenant, answering 404 when it cannot be synced
func (h *Handler) activeTenant(c *gin.Context) (*models.Tenant, bool) {
	tenant, err := h.sync.ActiveTenant(c.Request.Context(), c.Param("tenantId"))
	switch {
	case errors.Is(err, service.ErrTenantNotFound), errors.Is(err, service.ErrTenantInactive):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Tenant not found or inactive",
		})
		return nil, false
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load tenant",
			"details": err.Error(),
		})
		return nil, false
	}
	return tenant, true
}

// tenantExists answers 404 for unknown tenants. Inactive tenants keep their history readable.
func (h *Handler) tenantExists(c *gin.Context) bool {
	_, err := h.sync.ActiveTenant(c.Request.Context(), c.Param("tenantId"))
	switch {
	case err == nil, errors.Is(err, service.ErrTenantInactive):
		return true
	case errors.Is(err, service.ErrTenantNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Tenant not found",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load tenant",
			"details": err.Error(),
		})
	}
	return false
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
