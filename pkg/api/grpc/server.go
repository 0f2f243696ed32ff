package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/aescanero/dagent/internal/application/registry"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-checked service name
const ServiceName = "dagent.Orchestrator"

// HealthChecker reports whether a dependency can take work
type HealthChecker interface {
	IsHealthy() bool
}

// Server represents the gRPC API server
type Server struct {
	server   *grpc.Server
	listener net.Listener
	health   *health.Server
	registry *registry.Registry
	workers  HealthChecker
	logger   *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// Config holds gRPC server configuration
type Config struct {
	// Port 0 picks a free port
	Port     int
	Registry *registry.Registry
	// Workers, when set, must be healthy for the service to be SERVING
	Workers HealthChecker
	// HealthInterval re-evaluates the serving status periodically; zero
	// evaluates it once at startup
	HealthInterval time.Duration
	Logger         *zap.Logger
}

// NewServer creates a new gRPC server exposing the standard health service
func NewServer(cfg *Config) (*Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	s := &Server{
		server:   grpcServer,
		listener: listener,
		health:   healthServer,
		registry: cfg.Registry,
		workers:  cfg.Workers,
		logger:   cfg.Logger,
		stop:     make(chan struct{}),
	}
	s.UpdateHealth()
	if cfg.HealthInterval > 0 {
		go s.watchHealth(cfg.HealthInterval)
	}

	return s, nil
}

func (s *Server) watchHealth(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.UpdateHealth()
		}
	}
}

// Addr returns the address the server listens on
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// UpdateHealth reports SERVING while at least one agent is registered and
// the workers are healthy
func (s *Server) UpdateHealth() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.registry != nil && s.registry.Len() > 0 && (s.workers == nil || s.workers.IsHealthy()) {
		status = healthpb.HealthCheckResponse_SERVING
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Start starts the gRPC server
func (s *Server) Start() error {
	s.logger.Info("starting gRPC server", zap.String("addr", s.listener.Addr().String()))

	if err := s.server.Serve(s.listener); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("failed to serve gRPC: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server, falling back to a hard stop
// when ctx expires first
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down gRPC server")

	s.stopOnce.Do(func() { close(s.stop) })
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.server.Stop()
	}

	s.logger.Info("gRPC server shut down complete")
	return nil
}
