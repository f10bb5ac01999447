package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aescanero/pipewright/internal/application/catalog"
	"github.com/aescanero/pipewright/internal/application/orchestrator"
	"github.com/aescanero/pipewright/internal/application/workers"
)

// DefaultHeartbeatInterval is used when Config.HeartbeatInterval is unset
const DefaultHeartbeatInterval = 15 * time.Second

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	server     *http.Server
	catalog    *catalog.Catalog
	executions *orchestrator.Manager
	pool       *workers.Pool
	heartbeat  time.Duration
	logger     *zap.Logger
}

// Config holds HTTP server configuration
type Config struct {
	Port       int
	Catalog    *catalog.Catalog
	Executions *orchestrator.Manager
	// Pool backs /health; nil reports healthy
	Pool *workers.Pool
	// Gatherer backs /metrics; nil uses the default registry
	Gatherer          prometheus.Gatherer
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(cfg.Logger))
	router.Use(corsMiddleware())

	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}

	s := &Server{
		router:     router,
		catalog:    cfg.Catalog,
		executions: cfg.Executions,
		pool:       cfg.Pool,
		heartbeat:  heartbeat,
		logger:     cfg.Logger,
	}

	s.setupRoutes(cfg.Gatherer)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// setupRoutes configures API routes
func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.router.GET("/health", s.handleHealth)

	metrics := promhttp.Handler()
	if gatherer != nil {
		metrics = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	s.router.GET("/metrics", gin.WrapH(metrics))

	v1 := s.router.Group("/api/v1")
	{
		schemas := v1.Group("/schemas")
		schemas.POST("", s.handleCreateSchema)
		schemas.GET("", s.handleListSchemas)
		schemas.POST("/validate", s.handleValidateDocument)
		schemas.GET("/:id", s.handleGetSchema)
		schemas.PUT("/:id", s.handleUpdateSchema)
		schemas.DELETE("/:id", s.handleDeleteSchema)
		schemas.POST("/:id/validate", s.handleValidateSchema)
		schemas.POST("/:id/activate", s.handleActivateSchema)
		schemas.POST("/:id/deprecate", s.handleDeprecateSchema)

		executions := v1.Group("/executions")
		executions.POST("", s.handleCreateExecution)
		executions.GET("", s.handleListExecutions)
		executions.POST("/cleanup", s.handleCleanup)
		executions.GET("/:id", s.handleGetExecution)
		executions.POST("/:id/start", s.handleStartExecution)
		executions.POST("/:id/cancel", s.handleCancelExecution)
		executions.GET("/:id/events", s.handleExecutionEvents)
	}
}

// SetupWebSocket mounts the websocket progress stream next to the SSE one
func (s *Server) SetupWebSocket(handler gin.HandlerFunc) {
	s.router.GET("/api/v1/executions/:id/ws", handler)
}

// Handler returns the router, for tests and embedding
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
