package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aescanero/dagent/pkg/adapters/metrics/noop"
	"github.com/aescanero/dagent/pkg/domain"
	"github.com/aescanero/dagent/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrRunNotFound is returned for run ids the manager has never seen
	ErrRunNotFound = errors.New("run not found")

	// ErrRunFinished is returned when cancelling a run that already ended
	ErrRunFinished = errors.New("run already finished")

	// ErrManagerClosed is returned by Execute and Submit after Shutdown
	ErrManagerClosed = errors.New("manager is shut down")

	// ErrRunActive is returned when deleting the report of a run still
	// executing
	ErrRunActive = errors.New("run is still active")
)

// ExecutionConfig holds the limits applied to every run
type ExecutionConfig struct {
	MaxConcurrency int
	TaskTimeout    time.Duration
	RunTimeout     time.Duration
}

// Manager coordinates run execution
type Manager struct {
	executor *Executor
	eventBus ports.EventBus
	storage  ports.ReportStorage
	metrics  ports.MetricsCollector
	logger   *zap.Logger

	// Track active executions
	executions sync.Map // map[string]*execution
	active     atomic.Int64
	wg         sync.WaitGroup

	mu     sync.Mutex
	closed bool

	runTimeout time.Duration
}

// execution holds state for a single run
type execution struct {
	runID      string
	graph      *TaskGraph
	aggregator *Aggregator
	cancel     context.CancelCauseFunc
	done       chan struct{}

	mu       sync.RWMutex
	executed bool
	report   *domain.ExecutionReport
}

// requestCancel cancels the run unless its executor already returned
func (e *execution) requestCancel(cause error) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.executed {
		return false
	}
	e.cancel(cause)
	return true
}

func (e *execution) finished() *domain.ExecutionReport {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.report.Clone()
}

// NewManager creates a new run manager
func NewManager(
	agents ports.AgentLookup,
	dispatcher Dispatcher,
	eventBus ports.EventBus,
	storage ports.ReportStorage,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	cfg ExecutionConfig,
) *Manager {
	if metrics == nil {
		metrics = noop.Collector{}
	}

	return &Manager{
		executor: NewExecutor(agents, dispatcher, eventBus, metrics, logger, ExecutorConfig{
			MaxConcurrency: cfg.MaxConcurrency,
			TaskTimeout:    cfg.TaskTimeout,
		}),
		eventBus:   eventBus,
		storage:    storage,
		metrics:    metrics,
		logger:     logger.With(zap.String("component", "manager")),
		runTimeout: cfg.RunTimeout,
	}
}

// Execute validates plan and runs it to completion.
//
// A plan-level error is returned together with the rejected report. Task
// failures never produce an error; they are reported in the outcomes.
// Cancelling ctx cancels the run, which still returns its partial report.
func (m *Manager) Execute(ctx context.Context, plan *domain.Plan, shared domain.SharedContext) (*domain.ExecutionReport, error) {
	runID := uuid.New().String()

	graph, err := BuildTaskGraph(plan)
	if err != nil {
		return m.reject(ctx, runID, plan, err), err
	}

	exec, runCtx, err := m.start(ctx, runID, graph)
	if err != nil {
		return nil, err
	}
	m.run(runCtx, exec, shared)

	return exec.finished(), nil
}

// Submit validates plan and starts executing it in the background. The
// returned run id can be passed to GetReport, Wait and Cancel. A rejected
// plan still gets a run id whose stored report explains the rejection.
func (m *Manager) Submit(ctx context.Context, plan *domain.Plan, shared domain.SharedContext) (string, error) {
	runID := uuid.New().String()

	graph, err := BuildTaskGraph(plan)
	if err != nil {
		m.reject(ctx, runID, plan, err)
		return runID, fmt.Errorf("plan rejected: %w", err)
	}

	// Runs outlive the submitting request
	exec, runCtx, err := m.start(context.WithoutCancel(ctx), runID, graph)
	if err != nil {
		return "", err
	}
	go m.run(runCtx, exec, shared)

	return runID, nil
}

// start registers a validated run and derives its context
func (m *Manager) start(ctx context.Context, runID string, graph *TaskGraph) (*execution, context.Context, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, nil, ErrManagerClosed
	}
	m.wg.Add(1)
	m.mu.Unlock()

	runCtx, cancel := context.WithCancelCause(ctx)
	if m.runTimeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeoutCause(runCtx, m.runTimeout,
			fmt.Errorf("%w: run exceeded %s", domain.ErrCancelled, m.runTimeout))
		parentCancel := cancel
		cancel = func(cause error) {
			parentCancel(cause)
			cancelTimeout()
		}
	}

	exec := &execution{
		runID:      runID,
		graph:      graph,
		aggregator: NewAggregator(runID),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	m.executions.Store(runID, exec)
	m.metrics.SetActiveRuns(int(m.active.Add(1)))
	m.metrics.RecordRunSubmitted("accepted")

	m.publish(ctx, runID, domain.EventTypeRunSubmitted, map[string]interface{}{
		"task_type": graph.TaskType(),
		"tasks":     graph.IDs(),
	})
	m.logger.Info("run submitted",
		zap.String("run_id", runID),
		zap.String("task_type", graph.TaskType()),
		zap.Int("tasks", graph.Len()))

	return exec, runCtx, nil
}

// run executes a registered run and stores its final report
func (m *Manager) run(ctx context.Context, exec *execution, shared domain.SharedContext) {
	defer m.wg.Done()
	defer close(exec.done)
	defer exec.cancel(nil)

	err := m.executor.Execute(ctx, exec.runID, exec.graph, shared, exec.aggregator)

	exec.mu.Lock()
	exec.executed = true
	exec.mu.Unlock()

	report := exec.aggregator.Finalize(exec.graph)
	switch {
	case err != nil:
		m.logger.Error("run aborted",
			zap.String("run_id", exec.runID),
			zap.Error(err))
		report.Status = domain.PlanStatusPartiallyCompleted
		report.Error = err.Error()
	case ctx.Err() != nil && hasCancelledOutcome(report):
		report.Error = context.Cause(ctx).Error()
	}

	exec.mu.Lock()
	exec.report = report
	exec.mu.Unlock()

	bg := context.WithoutCancel(ctx)
	if err := m.storage.SaveReport(bg, report); err != nil {
		m.logger.Error("failed to save report",
			zap.String("run_id", exec.runID),
			zap.Error(err))
	} else {
		m.executions.Delete(exec.runID)
	}

	duration := report.CompletedAt.Sub(report.StartedAt)
	m.metrics.RecordRunCompleted(string(report.Status), duration)
	m.metrics.SetActiveRuns(int(m.active.Add(-1)))

	m.publish(bg, exec.runID, domain.EventTypeRunCompleted, map[string]interface{}{
		"status": string(report.Status),
		"counts": report.Counts,
	})
	m.logger.Info("run completed",
		zap.String("run_id", exec.runID),
		zap.String("status", string(report.Status)),
		zap.Int("completed", report.Counts[domain.TaskStateCompleted]),
		zap.Int("failed", report.Counts[domain.TaskStateFailed]),
		zap.Int("blocked", report.Counts[domain.TaskStateBlocked]),
		zap.Duration("duration", duration))
}

// hasCancelledOutcome reports whether cancellation affected any task
func hasCancelledOutcome(report *domain.ExecutionReport) bool {
	for _, o := range report.Outcomes {
		if o.ErrorKind == domain.ErrorKindCancelled {
			return true
		}
	}
	return false
}

// reject stores and announces a plan that failed validation
func (m *Manager) reject(ctx context.Context, runID string, plan *domain.Plan, err error) *domain.ExecutionReport {
	report := Rejected(runID, plan, err)

	m.logger.Warn("plan rejected",
		zap.String("run_id", runID),
		zap.String("status", string(report.Status)),
		zap.Error(err))
	m.metrics.RecordRunSubmitted(string(report.Status))

	if saveErr := m.storage.SaveReport(context.WithoutCancel(ctx), report); saveErr != nil {
		m.logger.Error("failed to save rejected report",
			zap.String("run_id", runID),
			zap.Error(saveErr))
	}
	m.publish(ctx, runID, domain.EventTypeRunRejected, map[string]interface{}{
		"status": string(report.Status),
		"error":  report.Error,
	})

	return report.Clone()
}

// GetReport returns a live snapshot for an active run, or the stored final
// report otherwise.
func (m *Manager) GetReport(ctx context.Context, runID string) (*domain.ExecutionReport, error) {
	if val, ok := m.executions.Load(runID); ok {
		exec := val.(*execution)
		if report := exec.finished(); report != nil {
			return report, nil
		}
		return exec.aggregator.Snapshot(exec.graph), nil
	}

	report, err := m.storage.GetReport(ctx, runID)
	if err != nil {
		if errors.Is(err, domain.ErrReportNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

// Wait blocks until runID finishes or ctx is done and returns its report
func (m *Manager) Wait(ctx context.Context, runID string) (*domain.ExecutionReport, error) {
	if val, ok := m.executions.Load(runID); ok {
		exec := val.(*execution)
		select {
		case <-exec.done:
			return exec.finished(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.GetReport(ctx, runID)
}

// Cancel cancels an active run. Tasks not yet dispatched are blocked and
// running tasks see their context cancelled.
func (m *Manager) Cancel(ctx context.Context, runID string) error {
	val, ok := m.executions.Load(runID)
	if !ok {
		if _, err := m.storage.GetReport(ctx, runID); err == nil {
			return fmt.Errorf("%w: %s", ErrRunFinished, runID)
		}
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	exec := val.(*execution)
	if !exec.requestCancel(fmt.Errorf("%w: cancelled by request", domain.ErrCancelled)) {
		return fmt.Errorf("%w: %s", ErrRunFinished, runID)
	}

	m.publish(ctx, runID, domain.EventTypeRunCancelled, nil)
	m.logger.Info("run cancelled", zap.String("run_id", runID))
	return nil
}

// DeleteReport removes the stored report of a finished run
func (m *Manager) DeleteReport(ctx context.Context, runID string) error {
	if val, ok := m.executions.Load(runID); ok {
		exec := val.(*execution)
		select {
		case <-exec.done:
			// finished but its report was never stored
			m.executions.Delete(runID)
			return nil
		default:
			return fmt.Errorf("%w: %s", ErrRunActive, runID)
		}
	}

	if _, err := m.GetReport(ctx, runID); err != nil {
		return err
	}
	if err := m.storage.DeleteReport(ctx, runID); err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}

	m.logger.Info("run report deleted", zap.String("run_id", runID))
	return nil
}

// ListRuns returns the ids of active and stored runs, sorted
func (m *Manager) ListRuns(ctx context.Context) ([]string, error) {
	stored, err := m.storage.ListRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	seen := make(map[string]bool, len(stored))
	ids := make([]string, 0, len(stored))
	for _, id := range stored {
		seen[id] = true
		ids = append(ids, id)
	}
	m.executions.Range(func(key, _ interface{}) bool {
		if id := key.(string); !seen[id] {
			ids = append(ids, id)
		}
		return true
	})

	sort.Strings(ids)
	return ids, nil
}

// ActiveRuns returns the number of runs currently executing
func (m *Manager) ActiveRuns() int {
	return int(m.active.Load())
}

func (m *Manager) publish(ctx context.Context, runID string, eventType domain.EventType, data map[string]interface{}) {
	if m.eventBus == nil {
		return
	}

	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		RunID:     runID,
		Timestamp: time.Now(),
		Data:      data,
	}
	if err := m.eventBus.Publish(context.WithoutCancel(ctx), domain.TopicRunEvents, event); err != nil {
		m.logger.Error("failed to publish run event",
			zap.String("run_id", runID),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}

// Shutdown cancels every active run and waits for them to store their
// reports, or for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down run manager")

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	// Cancel all active executions
	m.executions.Range(func(_, value interface{}) bool {
		value.(*execution).cancel(fmt.Errorf("%w: manager shutting down", domain.ErrCancelled))
		return true
	})

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("run manager shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for active runs: %w", ctx.Err())
	}
}
