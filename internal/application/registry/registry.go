package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aescanero/dagent/pkg/adapters/metrics/noop"
	"github.com/aescanero/dagent/pkg/domain"
	"github.com/aescanero/dagent/pkg/ports"
	"go.uber.org/zap"
)

// Registry manages initialized agents by name
type Registry struct {
	mu       sync.RWMutex
	agents   map[string]entry
	order    []string
	failures map[string]error

	metrics ports.MetricsCollector
	logger  *zap.Logger
}

type entry struct {
	agent ports.Agent
	kind  string
}

// New creates an empty registry
func New(metrics ports.MetricsCollector, logger *zap.Logger) *Registry {
	if metrics == nil {
		metrics = noop.Collector{}
	}

	return &Registry{
		agents:   make(map[string]entry),
		failures: make(map[string]error),
		metrics:  metrics,
		logger:   logger.With(zap.String("component", "registry")),
	}
}

// Register constructs an agent with factory, initializes it with cfg and
// makes it available under name. Construction or initialization failures,
// including panics, are returned as *domain.AgentInitError and recorded in
// Failures.
func (r *Registry) Register(ctx context.Context, name string, factory ports.AgentFactory, cfg ports.AgentConfig) error {
	if name == "" {
		return fmt.Errorf("agent name cannot be empty")
	}
	if factory == nil {
		return r.fail(name, fmt.Errorf("factory cannot be nil"))
	}

	r.mu.RLock()
	_, exists := r.agents[name]
	r.mu.RUnlock()
	if exists {
		return fmt.Errorf("agent %s already registered", name)
	}

	cfg.Name = name
	agent, err := construct(ctx, factory, cfg)
	if err != nil {
		return r.fail(name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[name]; exists {
		_ = agent.Shutdown(ctx)
		return fmt.Errorf("agent %s already registered", name)
	}
	r.agents[name] = entry{agent: agent, kind: cfg.Kind}
	r.order = append(r.order, name)
	delete(r.failures, name)

	r.logger.Info("agent registered",
		zap.String("agent", name),
		zap.String("kind", cfg.Kind))

	return nil
}

func construct(ctx context.Context, factory ports.AgentFactory, cfg ports.AgentConfig) (agent ports.Agent, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			agent = nil
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	agent = factory()
	if agent == nil {
		return nil, fmt.Errorf("factory returned nil agent")
	}
	if err := agent.Initialize(ctx, cfg); err != nil {
		return nil, err
	}
	return agent, nil
}

func (r *Registry) fail(name string, err error) error {
	initErr := &domain.AgentInitError{Agent: name, Err: err}

	r.mu.Lock()
	r.failures[name] = initErr
	r.mu.Unlock()

	r.metrics.RecordAgentInitFailure(name)
	r.logger.Error("agent initialization failed",
		zap.String("agent", name),
		zap.Error(err))

	return initErr
}

// InitializeFromSpecs registers one agent per spec, resolving kinds through
// catalog. Every spec is attempted; the returned error joins all failures.
func (r *Registry) InitializeFromSpecs(ctx context.Context, specs []ports.AgentConfig, catalog ports.AgentCatalog) error {
	var errs []error
	for _, spec := range specs {
		factory, ok := catalog.Factory(spec.Kind)
		if !ok {
			errs = append(errs, r.fail(spec.Name, fmt.Errorf("unknown agent kind %q (known: %s)",
				spec.Kind, strings.Join(catalog.Kinds(), ", "))))
			continue
		}
		if err := r.Register(ctx, spec.Name, factory, spec); err != nil {
			errs = append(errs, err)
		}
	}

	r.logger.Info("agents initialized",
		zap.Int("registered", r.Len()),
		zap.Int("failed", len(errs)))

	return errors.Join(errs...)
}

// Get returns the agent registered under name
func (r *Registry) Get(name string) (ports.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.agents[name]
	return e.agent, ok
}

// List returns registered agent names in registration order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Len returns the number of registered agents
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}

// Describe returns the descriptor of the agent registered under name
func (r *Registry) Describe(name string) (domain.AgentDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.agents[name]
	if !ok {
		return domain.AgentDescriptor{}, false
	}
	return describe(name, e), true
}

// Descriptors returns every agent descriptor in registration order
func (r *Registry) Descriptors() []domain.AgentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]domain.AgentDescriptor, 0, len(r.order))
	for _, name := range r.order {
		descriptors = append(descriptors, describe(name, r.agents[name]))
	}
	return descriptors
}

func describe(name string, e entry) domain.AgentDescriptor {
	d := e.agent.Describe()
	d.Name = name
	if d.Kind == "" {
		d.Kind = e.kind
	}
	return d
}

// Failures returns the initialization errors recorded per agent name
func (r *Registry) Failures() map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	failures := make(map[string]error, len(r.failures))
	for name, err := range r.failures {
		failures[name] = err
	}
	return failures
}

// Shutdown shuts every agent down and empties the registry. Calling it again
// is a no-op until agents are registered anew.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	agents, order := r.agents, r.order
	r.agents = make(map[string]entry)
	r.order = nil
	r.failures = make(map[string]error)
	r.mu.Unlock()

	var errs []error
	for _, name := range order {
		if err := agents[name].agent.Shutdown(ctx); err != nil {
			r.logger.Error("failed to shut down agent",
				zap.String("agent", name),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("agent %s: %w", name, err))
		}
	}

	if len(order) > 0 {
		r.logger.Info("agents shut down", zap.Int("count", len(order)))
	}
	return errors.Join(errs...)
}
