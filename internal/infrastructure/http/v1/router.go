// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"khmerpos/internal/infrastructure/http/v1/handlers"
	"khmerpos/internal/infrastructure/http/v1/middleware"
	"khmerpos/internal/infrastructure/storage/postgres"
	"khmerpos/internal/sync"
	"khmerpos/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Pool is the database connection pool (for health checks).
	Pool *postgres.Pool

	// Logger for request logging.
	Logger *logger.Logger

	// TokenValidator for terminal JWT validation.
	TokenValidator middleware.TokenValidator

	// Pipeline applies sync operation batches.
	Pipeline *sync.Pipeline

	// AuditHistory serves the per-resource audit trail.
	AuditHistory handlers.AuditHistoryReader
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth)
	healthHandler := handlers.NewHealthHandler(cfg.Pool.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	// API v1
	v1 := router.Group("/v1")
	{
		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.TokenValidator))

		baseHandler := handlers.NewBaseHandler()
		syncHandler := handlers.NewSyncHandler(baseHandler, cfg.Pipeline)
		protected.POST("/sync/operations", syncHandler.ApplyBatch)

		auditHandler := handlers.NewAuditHandler(baseHandler, cfg.AuditHistory)
		protected.GET("/audit/:resourceType/:resourceId", auditHandler.History)
	}

	return router
}
