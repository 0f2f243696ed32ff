package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aescanero/dagent/pkg/adapters/metrics/noop"
	"github.com/aescanero/dagent/pkg/domain"
	"github.com/aescanero/dagent/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Dispatcher runs jobs on behalf of the executor. Submit blocks until the
// job has been accepted or ctx is done.
type Dispatcher interface {
	Submit(ctx context.Context, job func()) error
}

// OutcomeSink receives each task outcome exactly once
type OutcomeSink interface {
	Record(outcome domain.ExecutionOutcome)
}

// ExecutorConfig holds per-run execution limits
type ExecutorConfig struct {
	// MaxConcurrency bounds the number of dispatched tasks that have not
	// reported back. Zero means unbounded.
	MaxConcurrency int

	// TaskTimeout fails a task not finished this long after dispatch. Zero
	// disables it.
	TaskTimeout time.Duration
}

// Executor drives a TaskGraph to completion against registered agents
type Executor struct {
	agents     ports.AgentLookup
	dispatcher Dispatcher
	eventBus   ports.EventBus
	metrics    ports.MetricsCollector
	logger     *zap.Logger
	cfg        ExecutorConfig
}

// NewExecutor creates an executor. dispatcher, eventBus and metrics may be
// nil: tasks then run on their own goroutines, events are not published and
// metrics are discarded.
func NewExecutor(
	agents ports.AgentLookup,
	dispatcher Dispatcher,
	eventBus ports.EventBus,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	cfg ExecutorConfig,
) *Executor {
	if metrics == nil {
		metrics = noop.Collector{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Executor{
		agents:     agents,
		dispatcher: dispatcher,
		eventBus:   eventBus,
		metrics:    metrics,
		logger:     logger.With(zap.String("component", "executor")),
		cfg:        cfg,
	}
}

// taskResult is delivered from a dispatched task back to the coordinator.
// started is false when the task was never handed to its agent.
type taskResult struct {
	id         string
	started    bool
	payload    interface{}
	err        error
	startedAt  time.Time
	finishedAt time.Time
}

// startRequest asks the coordinator whether a picked-up task may run
type startRequest struct {
	id    string
	reply chan bool
}

// run is the coordinator state of a single Execute call
type run struct {
	id        string
	graph     *TaskGraph
	state     *RunState
	queue     *readyQueue
	sink      OutcomeSink
	shared    domain.SharedContext
	results   chan taskResult
	starts    chan startRequest
	closed    chan struct{}
	inFlight  int
	cancelled bool
	logger    *zap.Logger
}

// begin blocks until the coordinator allows task id to start
func (r *run) begin(id string) bool {
	reply := make(chan bool, 1)
	select {
	case r.starts <- startRequest{id: id, reply: reply}:
		return <-reply
	case <-r.closed:
		return false
	}
}

// Execute runs every task of graph and reports each outcome to sink.
//
// It returns once every task is terminal and every dispatched job has
// reported back. Task failures never surface as an error; they are recorded
// as outcomes and block only the failed task's descendants. Cancelling ctx
// blocks all tasks no worker has started yet and cancels the context of
// running ones. A non-nil error means run state became inconsistent.
func (e *Executor) Execute(ctx context.Context, runID string, graph *TaskGraph, shared domain.SharedContext, sink OutcomeSink) error {
	if graph == nil {
		return fmt.Errorf("graph cannot be nil")
	}

	r := &run{
		id:      runID,
		graph:   graph,
		state:   graph.NewRunState(),
		queue:   newReadyQueue(graph),
		sink:    sink,
		shared:  shared,
		results: make(chan taskResult, graph.Len()),
		starts:  make(chan startRequest),
		closed:  make(chan struct{}),
		logger:  e.logger.With(zap.String("run_id", runID)),
	}
	defer close(r.closed)

	r.logger.Info("starting run execution",
		zap.Int("tasks", graph.Len()),
		zap.Int("max_concurrency", e.cfg.MaxConcurrency))

	for _, id := range graph.InitialReadySet() {
		if err := r.state.Transition(id, domain.TaskStatePending, domain.TaskStateReady); err != nil {
			return err
		}
		r.queue.push(id)
	}

	done := ctx.Done()
	for {
		if ctx.Err() != nil {
			e.cancel(ctx, r)
		}

		if r.cancelled {
			done = nil
		} else if err := e.dispatchReady(ctx, r); err != nil {
			return err
		}

		if r.inFlight == 0 {
			if r.state.Done() {
				break
			}
			return fmt.Errorf("run %s stalled with %d unfinished tasks", runID, r.state.Unfinished())
		}

		select {
		case req := <-r.starts:
			req.reply <- e.start(ctx, r, req.id)
		case res := <-r.results:
			r.inFlight--
			if res.started {
				e.metrics.AddRunningTasks(-1)
			}
			if err := e.complete(ctx, r, res); err != nil {
				return err
			}
		case <-done:
			e.cancel(ctx, r)
		}
	}

	r.logger.Info("run execution finished", zap.Bool("cancelled", r.cancelled))
	return nil
}

// hasSlot reports whether another task may be dispatched
func (e *Executor) hasSlot(r *run) bool {
	return e.cfg.MaxConcurrency <= 0 || r.inFlight < e.cfg.MaxConcurrency
}

// dispatchReady hands ready tasks to workers while concurrency slots are
// free. A dispatched task stays Ready until a worker starts it.
func (e *Executor) dispatchReady(ctx context.Context, r *run) error {
	for r.queue.Len() > 0 && e.hasSlot(r) {
		id := r.queue.pop()
		task, _ := r.graph.Task(id)

		agent, ok := e.agents.Get(task.AgentName)
		if !ok {
			if err := r.state.Transition(id, domain.TaskStateReady, domain.TaskStateFailed); err != nil {
				return err
			}
			err := &domain.TaskError{
				TaskID:    id,
				AgentName: task.AgentName,
				Kind:      domain.ErrAgentNotFound,
				Err:       fmt.Errorf("no agent registered as %q", task.AgentName),
			}
			r.logger.Warn("agent not found for task",
				zap.String("task_id", id),
				zap.String("agent", task.AgentName))
			now := time.Now()
			e.record(ctx, r, failedOutcome(task, err, nil, now))
			if err := e.propagate(ctx, r, id, domain.TaskStateFailed); err != nil {
				return err
			}
			continue
		}

		r.inFlight++
		r.logger.Debug("dispatching task",
			zap.String("task_id", id),
			zap.String("agent", task.AgentName),
			zap.Int("priority", task.Priority))

		e.dispatch(ctx, r, task, agent)
	}
	return nil
}

// dispatch hands a task to the dispatcher without blocking the coordinator.
// The task timeout runs from here, so time spent waiting for a worker
// counts against it.
func (e *Executor) dispatch(ctx context.Context, r *run, task domain.Task, agent ports.Agent) {
	var (
		taskCtx context.Context
		cancel  context.CancelFunc
	)
	if e.cfg.TaskTimeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, e.cfg.TaskTimeout)
	} else {
		taskCtx, cancel = context.WithCancel(ctx)
	}

	job := func() {
		defer cancel()
		if ctx.Err() != nil || !r.begin(task.ID) {
			r.results <- taskResult{id: task.ID}
			return
		}
		r.results <- e.invoke(ctx, taskCtx, task, agent, r.shared)
	}

	if e.dispatcher == nil {
		go job()
		return
	}

	go func() {
		if err := e.dispatcher.Submit(taskCtx, job); err != nil {
			res := taskResult{
				id:         task.ID,
				err:        e.classify(ctx, taskCtx, task, fmt.Errorf("dispatch: %w", err)),
				finishedAt: time.Now(),
			}
			cancel()
			r.results <- res
		}
	}()
}

// start moves a picked-up task to Running. It refuses tasks the run
// cancelled while they waited for a worker.
func (e *Executor) start(ctx context.Context, r *run, id string) bool {
	if ctx.Err() != nil {
		e.cancel(ctx, r)
	}
	if r.cancelled || r.state.State(id) != domain.TaskStateReady {
		return false
	}
	if err := r.state.Transition(id, domain.TaskStateReady, domain.TaskStateRunning); err != nil {
		r.logger.Error("cannot start task", zap.String("task_id", id), zap.Error(err))
		return false
	}
	e.metrics.AddRunningTasks(1)

	task, _ := r.graph.Task(id)
	e.publish(ctx, domain.TopicTaskEvents, r.id, id, domain.EventTypeTaskStarted, map[string]interface{}{
		"agent": task.AgentName,
	})
	return true
}

// invoke calls the agent, converting panics, errors and timeouts into a
// failed result. A late reply from an agent that ignored cancellation is
// dropped into a buffered channel nobody reads.
func (e *Executor) invoke(ctx, taskCtx context.Context, task domain.Task, agent ports.Agent, shared domain.SharedContext) taskResult {
	res := taskResult{id: task.ID, started: true, startedAt: time.Now()}

	// the deadline may have passed while the task was queued
	if err := taskCtx.Err(); err != nil {
		res.err = e.classify(ctx, taskCtx, task, err)
		res.finishedAt = res.startedAt
		return res
	}

	type reply struct {
		payload interface{}
		err     error
	}
	replyCh := make(chan reply, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				replyCh <- reply{err: fmt.Errorf("agent panicked: %v", rec)}
			}
		}()
		payload, err := agent.Process(taskCtx, task.Description, shared)
		replyCh <- reply{payload: payload, err: err}
	}()

	select {
	case rep := <-replyCh:
		if rep.err != nil {
			res.err = e.classify(ctx, taskCtx, task, rep.err)
		} else {
			res.payload = rep.payload
		}
	case <-taskCtx.Done():
		res.err = e.classify(ctx, taskCtx, task, taskCtx.Err())
	}

	res.finishedAt = time.Now()
	return res
}

// classify wraps an agent error with the matching task error kind
func (e *Executor) classify(runCtx, taskCtx context.Context, task domain.Task, err error) error {
	kind := domain.ErrTaskExecution
	switch {
	case runCtx.Err() != nil:
		kind = domain.ErrCancelled
	case taskCtx != nil && errors.Is(taskCtx.Err(), context.DeadlineExceeded):
		kind = domain.ErrTaskTimeout
		err = fmt.Errorf("exceeded %s: %w", e.cfg.TaskTimeout, err)
	}
	return &domain.TaskError{TaskID: task.ID, AgentName: task.AgentName, Kind: kind, Err: err}
}

// complete records a finished task and propagates its state
func (e *Executor) complete(ctx context.Context, r *run, res taskResult) error {
	task, _ := r.graph.Task(res.id)
	started := res.startedAt

	from := domain.TaskStateRunning
	var startedAt *time.Time
	if res.started {
		startedAt = &started
	} else {
		// never reached its agent: a cancelled run has already recorded it
		// as Blocked
		if ctx.Err() != nil {
			e.cancel(ctx, r)
		}
		if r.state.State(task.ID) == domain.TaskStateBlocked {
			return nil
		}
		from = domain.TaskStateReady
	}

	status := domain.TaskStateCompleted
	var outcome domain.ExecutionOutcome
	if res.err != nil {
		status = domain.TaskStateFailed
		outcome = failedOutcome(task, res.err, startedAt, res.finishedAt)
		r.logger.Warn("task failed",
			zap.String("task_id", task.ID),
			zap.String("agent", task.AgentName),
			zap.Duration("duration", outcome.Duration),
			zap.Error(res.err))
	} else {
		outcome = domain.ExecutionOutcome{
			TaskID:     task.ID,
			AgentName:  task.AgentName,
			Status:     domain.TaskStateCompleted,
			Payload:    res.payload,
			StartedAt:  &started,
			FinishedAt: res.finishedAt,
			Duration:   res.finishedAt.Sub(started),
		}
		r.logger.Info("task completed",
			zap.String("task_id", task.ID),
			zap.String("agent", task.AgentName),
			zap.Duration("duration", outcome.Duration))
	}

	if err := r.state.Transition(task.ID, from, status); err != nil {
		return err
	}
	e.record(ctx, r, outcome)
	return e.propagate(ctx, r, task.ID, status)
}

// propagate applies OnTaskTerminal: newly ready tasks are queued (or blocked
// when the run is cancelled) and newly blocked tasks are recorded.
func (e *Executor) propagate(ctx context.Context, r *run, id string, status domain.TaskState) error {
	ready, blocked, err := r.state.OnTaskTerminal(id, status)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, b := range blocked {
		task, _ := r.graph.Task(b)
		e.record(ctx, r, blockedOutcome(task, &domain.TaskError{
			TaskID:    b,
			AgentName: task.AgentName,
			Kind:      domain.ErrDependencyFailed,
			Err:       fmt.Errorf("upstream task %q did not complete", id),
		}, now))
	}
	if len(blocked) > 0 {
		r.logger.Info("blocked dependents of unsuccessful task",
			zap.String("task_id", id),
			zap.Strings("blocked", blocked))
	}

	if r.cancelled {
		for _, rd := range ready {
			if err := r.state.Transition(rd, domain.TaskStateReady, domain.TaskStateBlocked); err != nil {
				return err
			}
			e.recordCancelled(ctx, r, rd, now)
		}
		return nil
	}
	r.queue.push(ready...)
	return nil
}

// cancel blocks every task no worker has started, including dispatched
// ones still waiting for a worker. Running tasks see their context
// cancelled through ctx and report back on their own.
func (e *Executor) cancel(ctx context.Context, r *run) {
	if r.cancelled {
		return
	}
	r.cancelled = true
	r.queue.clear()

	now := time.Now()
	blocked := r.state.BlockRemaining()
	for _, id := range blocked {
		e.recordCancelled(ctx, r, id, now)
	}

	r.logger.Warn("run cancelled",
		zap.Int("blocked", len(blocked)),
		zap.Int("in_flight", r.inFlight),
		zap.Error(ctx.Err()))
}

func (e *Executor) recordCancelled(ctx context.Context, r *run, id string, at time.Time) {
	task, _ := r.graph.Task(id)
	e.record(ctx, r, blockedOutcome(task, &domain.TaskError{
		TaskID:    id,
		AgentName: task.AgentName,
		Kind:      domain.ErrCancelled,
		Err:       context.Cause(ctx),
	}, at))
}

// record forwards an outcome to the sink, metrics and event bus
func (e *Executor) record(ctx context.Context, r *run, outcome domain.ExecutionOutcome) {
	if r.sink != nil {
		r.sink.Record(outcome)
	}
	e.metrics.RecordTaskExecuted(outcome.AgentName, string(outcome.Status), outcome.Duration)

	eventType := domain.EventTypeTaskCompleted
	data := map[string]interface{}{"agent": outcome.AgentName}
	switch outcome.Status {
	case domain.TaskStateFailed:
		eventType = domain.EventTypeTaskFailed
		data["error"] = outcome.ErrorDetail
		data["error_kind"] = string(outcome.ErrorKind)
	case domain.TaskStateBlocked:
		eventType = domain.EventTypeTaskBlocked
		data["error"] = outcome.ErrorDetail
		data["error_kind"] = string(outcome.ErrorKind)
	}
	e.publish(ctx, domain.TopicTaskEvents, r.id, outcome.TaskID, eventType, data)
}

// publish sends an event when an event bus is configured. Publishing must
// outlive cancellation so that cancelled outcomes are still announced.
func (e *Executor) publish(ctx context.Context, topic, runID, taskID string, eventType domain.EventType, data map[string]interface{}) {
	if e.eventBus == nil {
		return
	}

	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		RunID:     runID,
		TaskID:    taskID,
		Timestamp: time.Now(),
		Data:      data,
	}
	if err := e.eventBus.Publish(context.WithoutCancel(ctx), topic, event); err != nil {
		e.logger.Error("failed to publish task event",
			zap.String("run_id", runID),
			zap.String("task_id", taskID),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}

func failedOutcome(task domain.Task, err error, startedAt *time.Time, finishedAt time.Time) domain.ExecutionOutcome {
	o := domain.ExecutionOutcome{
		TaskID:      task.ID,
		AgentName:   task.AgentName,
		Status:      domain.TaskStateFailed,
		ErrorKind:   domain.KindOf(err),
		ErrorDetail: err.Error(),
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
		Err:         err,
	}
	if startedAt != nil {
		o.Duration = finishedAt.Sub(*startedAt)
	}
	return o
}

func blockedOutcome(task domain.Task, err error, at time.Time) domain.ExecutionOutcome {
	return domain.ExecutionOutcome{
		TaskID:      task.ID,
		AgentName:   task.AgentName,
		Status:      domain.TaskStateBlocked,
		ErrorKind:   domain.KindOf(err),
		ErrorDetail: err.Error(),
		FinishedAt:  at,
		Err:         err,
	}
}
