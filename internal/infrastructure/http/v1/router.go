// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"backoffice/internal/core/sequence"
	"backoffice/internal/domain/employee"
	"backoffice/internal/domain/labels"
	"backoffice/internal/domain/payslip"
	"backoffice/internal/infrastructure/http/v1/handlers"
	"backoffice/internal/infrastructure/http/v1/middleware"
	"backoffice/internal/infrastructure/objectstore"
	"backoffice/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// DB backs the readiness probe
	DB handlers.Pinger

	Labels    *labels.Service
	Employees *employee.Service
	Payslips  *payslip.Service
	Sequences sequence.Admin

	// Artifacts serves stored label sheets; nil disables the artifact routes
	Artifacts objectstore.Store

	// Idempotency, when set, guards mutating endpoints with X-Idempotency-Key
	Idempotency middleware.IdempotencyStore
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

	healthHandler := handlers.NewHealthHandler(cfg.DB)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	v1 := router.Group("/api/v1")
	if cfg.Idempotency != nil {
		v1.Use(middleware.Idempotency(cfg.Idempotency))
	}

	base := handlers.NewBaseHandler()
	handlers.NewLabelHandler(base, cfg.Labels, cfg.Artifacts).RegisterRoutes(v1.Group("/labels"))
	handlers.NewEmployeeHandler(base, cfg.Employees).RegisterRoutes(v1.Group("/employees"))
	handlers.NewPayslipHandler(base, cfg.Payslips).RegisterRoutes(v1.Group("/payslips"))
	handlers.NewSequenceHandler(base, cfg.Sequences).RegisterRoutes(v1.Group("/sequences"))

	return router
}
