package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/aescanero/dagent/internal/application/orchestrator"
	"github.com/aescanero/dagent/internal/application/registry"
	"github.com/aescanero/dagent/internal/application/workers"
	"github.com/aescanero/dagent/internal/config"
	"github.com/aescanero/dagent/pkg/adapters/agents"
	eventsmemory "github.com/aescanero/dagent/pkg/adapters/events/memory"
	eventsredis "github.com/aescanero/dagent/pkg/adapters/events/redis"
	"github.com/aescanero/dagent/pkg/adapters/llm/anthropic"
	"github.com/aescanero/dagent/pkg/adapters/llm/openai"
	storagememory "github.com/aescanero/dagent/pkg/adapters/storage/memory"
	storageredis "github.com/aescanero/dagent/pkg/adapters/storage/redis"
	"github.com/aescanero/dagent/pkg/ports"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// llmKind is the agent kind served by the configured LLM provider
const llmKind = "llm"

// app holds the wired components shared by run and serve
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	redis    *goredis.Client
	eventBus ports.EventBus
	storage  ports.ReportStorage
	registry *registry.Registry
	pool     *workers.Pool
	manager  *orchestrator.Manager
}

// loadConfig reads the environment, applies flag overrides and builds the
// logger
func loadConfig(opts *globalOptions) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	if opts.agentsFile != "" {
		cfg.AgentsFile = opts.agentsFile
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, nil, fmt.Errorf("invalid config: %w", err)
		}
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// newCatalog returns the agent kinds this binary can construct, including
// "llm", which follows the configured provider.
func newCatalog(cfg *config.Config, logger *zap.Logger) (*agents.Catalog, error) {
	kinds := map[string]ports.AgentFactory{
		anthropic.Kind: anthropic.NewFactory(anthropic.Defaults{
			APIKey:                cfg.LLM.APIKey,
			Model:                 cfg.LLM.DefaultModel,
			Temperature:           cfg.LLM.DefaultTemperature,
			MaxTokens:             cfg.LLM.DefaultMaxTokens,
			RequestTimeout:        cfg.LLM.RequestTimeout,
			MaxConcurrentRequests: cfg.LLM.MaxConcurrentRequests,
		}, logger),
		openai.Kind: openai.NewFactory(openai.Defaults{
			BaseURL:               cfg.LocalLLM.BaseURL,
			APIKey:                cfg.LocalLLM.APIKey,
			Model:                 cfg.LocalLLM.Model,
			Temperature:           cfg.LocalLLM.Temperature,
			MaxTokens:             cfg.LocalLLM.MaxTokens,
			RequestTimeout:        cfg.LocalLLM.RequestTimeout,
			MaxConcurrentRequests: cfg.LLM.MaxConcurrentRequests,
		}, logger),
	}

	provider := anthropic.Kind
	if cfg.LLM.Provider == config.ProviderOpenAI {
		provider = openai.Kind
	}
	kinds[llmKind] = kinds[provider]

	catalog := agents.NewCatalog()
	for kind, factory := range kinds {
		if err := catalog.Register(kind, factory); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

// initRegistry registers every declared agent whose kind catalog knows.
// Agents that fail to initialize are logged and left out; a missing
// declarations file yields an empty registry.
func initRegistry(ctx context.Context, cfg *config.Config, catalog ports.AgentCatalog, metrics ports.MetricsCollector, logger *zap.Logger) (*registry.Registry, error) {
	reg := registry.New(metrics, logger)

	specs, err := config.LoadAgents(cfg.AgentsFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("agents file not found, no agents registered",
			zap.String("path", cfg.AgentsFile))
		return reg, nil
	case err != nil:
		return nil, err
	}

	if err := reg.InitializeFromSpecs(ctx, specs, catalog); err != nil {
		logger.Warn("some agents failed to initialize",
			zap.Int("registered", reg.Len()),
			zap.Int("failed", len(reg.Failures())),
			zap.Error(err))
	}
	return reg, nil
}

// newApp wires storage, events, agents, workers and the run manager
func newApp(ctx context.Context, cfg *config.Config, metrics ports.MetricsCollector, logger *zap.Logger) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.close(context.WithoutCancel(ctx))
			a = nil
		}
	}()

	switch cfg.Backend {
	case config.BackendRedis:
		a.redis = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return a, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

		consumer := cfg.Redis.ConsumerName
		if consumer == "" {
			consumer = fmt.Sprintf("dagent-%d", os.Getpid())
		}
		bus, err := eventsredis.NewStreamsEventBus(a.redis, cfg.Redis.ConsumerGroup, consumer, logger)
		if err != nil {
			return a, fmt.Errorf("failed to create event bus: %w", err)
		}
		a.eventBus = bus
		a.storage = storageredis.NewReportStorage(a.redis, cfg.Storage.ReportTTL, logger)
	default:
		a.eventBus = eventsmemory.NewInMemoryEventBus(logger)
		a.storage = storagememory.NewReportStorage()
	}

	catalog, err := newCatalog(cfg, logger)
	if err != nil {
		return a, err
	}
	a.registry, err = initRegistry(ctx, cfg, catalog, metrics, logger)
	if err != nil {
		return a, err
	}

	a.pool = workers.NewPool(cfg.Workers.PoolSize, metrics, logger, cfg.Workers.HealthCheckInterval)
	if err := a.pool.Start(); err != nil {
		return a, fmt.Errorf("failed to start worker pool: %w", err)
	}

	a.manager = orchestrator.NewManager(
		a.registry,
		a.pool,
		a.eventBus,
		a.storage,
		metrics,
		logger,
		orchestrator.ExecutionConfig{
			MaxConcurrency: cfg.Execution.MaxConcurrency,
			TaskTimeout:    cfg.Execution.TaskTimeout,
			RunTimeout:     cfg.Execution.RunTimeout,
		},
	)

	return a, nil
}

// close shuts components down in dependency order: runs first, so every
// dispatched job completes on a live pool, then workers, agents and
// backends.
func (a *app) close(ctx context.Context) error {
	var errs []error

	if a.manager != nil {
		if err := a.manager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("run manager: %w", err))
		}
	}
	if a.pool != nil {
		if err := a.pool.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("worker pool: %w", err))
		}
	}
	if a.registry != nil {
		if err := a.registry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("agents: %w", err))
		}
	}
	if a.eventBus != nil {
		if err := a.eventBus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event bus: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}

	return errors.Join(errs...)
}
