package cmd

import (
	"context"
	"fmt"

	"github.com/aescanero/dagent/pkg/adapters/metrics/prometheus"
	"github.com/aescanero/dagent/pkg/api/grpc"
	"github.com/aescanero/dagent/pkg/api/http"
	"github.com/aescanero/dagent/pkg/api/websocket"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC service",
		Long: `Start the run service. Plans are submitted over HTTP at /api/v1/runs,
run events stream over WebSocket at /api/v1/runs/:id/ws and the gRPC port
serves the standard health service.

The server shuts down gracefully on SIGINT or SIGTERM: active runs are
cancelled and their partial reports stored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), global)
		},
	}
}

func serve(ctx context.Context, global *globalOptions) error {
	cfg, logger, err := loadConfig(global)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting dagent",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("backend", cfg.Backend))

	metrics := prometheus.NewCollector(prom.DefaultRegisterer)

	a, err := newApp(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}

	httpServer := http.NewServer(&http.Config{
		Port:     cfg.HTTPPort,
		Manager:  a.manager,
		Registry: a.registry,
		Pool:     a.pool,
		Logger:   logger,
	})
	httpServer.SetupWebSocket(websocket.NewHandler(a.eventBus, logger))

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:           cfg.GRPCPort,
		Registry:       a.registry,
		Workers:        a.pool.Health(),
		HealthInterval: cfg.Workers.HealthCheckInterval,
		Logger:         logger,
	})
	if err != nil {
		_ = a.close(context.WithoutCancel(ctx))
		return fmt.Errorf("failed to create gRPC server: %w", err)
	}

	errCh := make(chan error, 2)
	go func() { errCh <- httpServer.Start() }()
	go func() { errCh <- grpcServer.Start() }()

	logger.Info("dagent started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("worker_pool_size", cfg.Workers.PoolSize),
		zap.Int("agents", a.registry.Len()))

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case serveErr = <-errCh:
		logger.Error("server failed", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}
	if err := a.close(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	logger.Info("dagent shut down complete")
	return serveErr
}
