package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aescanero/dagent/internal/application/orchestrator"
	"github.com/aescanero/dagent/internal/application/registry"
	"github.com/aescanero/dagent/internal/application/workers"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP API server
type Server struct {
	router   *gin.Engine
	server   *http.Server
	manager  *orchestrator.Manager
	registry *registry.Registry
	pool     *workers.Pool
	logger   *zap.Logger
}

// Config holds HTTP server configuration
type Config struct {
	Port     int
	Manager  *orchestrator.Manager
	Registry *registry.Registry
	// Pool is optional; when set its health is reported by /health
	Pool   *workers.Pool
	Logger *zap.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(cfg.Logger))
	router.Use(corsMiddleware())

	s := &Server{
		router:   router,
		manager:  cfg.Manager,
		registry: cfg.Registry,
		pool:     cfg.Pool,
		logger:   cfg.Logger,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	return s
}

// setupRoutes configures API routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)

	// Metrics
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// Run endpoints
		v1.POST("/runs", s.handleSubmitRun)
		v1.GET("/runs", s.handleListRuns)
		v1.GET("/runs/:id", s.handleGetRun)
		v1.DELETE("/runs/:id", s.handleDeleteRun)
		v1.POST("/runs/:id/cancel", s.handleCancelRun)

		// Agent endpoints
		v1.GET("/agents", s.handleListAgents)
		v1.GET("/agents/:name", s.handleGetAgent)
	}
}

// StreamHandler streams the events of one run
type StreamHandler interface {
	HandleRunStream(c *gin.Context)
}

// SetupWebSocket adds the run event stream to the server
func (s *Server) SetupWebSocket(handler StreamHandler) {
	s.router.GET("/api/v1/runs/:id/ws", handler.HandleRunStream)
}

// Handler returns the routed handler
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
