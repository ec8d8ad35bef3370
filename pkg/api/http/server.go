package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aescanero/capo/internal/application/workers"
	"github.com/aescanero/capo/internal/ratelimiter"
	"github.com/aescanero/capo/pkg/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Service is the orchestration surface the API exposes
type Service interface {
	Execute(ctx context.Context, tenantID int, plan *domain.QueryPlan) (*domain.OrchestrationResult, error)
	SubmitPlan(ctx context.Context, tenantID int, plan *domain.QueryPlan) (string, error)
	GetStatus(ctx context.Context, executionID string) (*domain.ExecutionRecord, error)
	ListExecutions(ctx context.Context) ([]*domain.ExecutionRecord, error)
	CancelExecution(ctx context.Context, executionID string) error
}

// CapabilityLister lists registered capabilities
type CapabilityLister interface {
	List() []domain.CapabilityDescriptor
}

// HealthReporter reports worker pool health
type HealthReporter interface {
	GetStatus() *workers.HealthStatus
}

// StreamHandler streams execution events to a client
type StreamHandler interface {
	HandleExecutionStream(c *gin.Context)
}

// Server represents the HTTP API server
type Server struct {
	router       *gin.Engine
	server       *http.Server
	service      Service
	capabilities CapabilityLister
	health       HealthReporter
	limiter      *ratelimiter.TenantLimiter
	logger       *zap.Logger
}

// Config holds HTTP server configuration
type Config struct {
	Port         int
	Service      Service
	Capabilities CapabilityLister
	Health       HealthReporter
	// Limiter may be nil to disable per-tenant rate limiting
	Limiter *ratelimiter.TenantLimiter
	// MetricsHandler serves /metrics; nil uses the default Prometheus registry
	MetricsHandler http.Handler
	Logger         *zap.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware())

	s := &Server{
		router:       router,
		service:      cfg.Service,
		capabilities: cfg.Capabilities,
		health:       cfg.Health,
		limiter:      cfg.Limiter,
		logger:       logger,
	}

	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	s.setupRoutes(metricsHandler)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// setupRoutes configures API routes
func (s *Server) setupRoutes(metricsHandler http.Handler) {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(metricsHandler))

	v1 := s.router.Group("/api/v1")
	v1.Use(tenantMiddleware(), rateLimitMiddleware(s.limiter))
	{
		v1.GET("/capabilities", s.handleListCapabilities)

		v1.POST("/orchestrations/execute", s.handleExecute)
		v1.POST("/orchestrations", s.handleSubmit)
		v1.GET("/orchestrations", s.handleListExecutions)
		v1.GET("/orchestrations/:id", s.handleGetExecution)
		v1.GET("/orchestrations/:id/status", s.handleGetStatus)
		v1.GET("/orchestrations/:id/result", s.handleGetResult)
		v1.POST("/orchestrations/:id/cancel", s.handleCancel)
	}
}

// SetupWebSocket adds the execution event stream route
func (s *Server) SetupWebSocket(handler StreamHandler) {
	s.router.GET("/api/v1/orchestrations/:id/ws", handler.HandleExecutionStream)
}

// Handler returns the router, for embedding and tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}

// requestLogger is a middleware for request logging
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
