package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aescanero/dagent/internal/application/workers"
	"github.com/aescanero/dagent/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startPool(t *testing.T, size int) *workers.Pool {
	t.Helper()
	pool := workers.NewPool(size, nil, zap.NewNop(), 0)
	require.NoError(t, pool.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Shutdown(ctx)
	})
	return pool
}

func TestExecutor_WorkerPoolRunsPlan(t *testing.T) {
	bus := &recordingBus{}
	g := buildGraph(t,
		task("a", "a"),
		task("b", "b", "a"),
		task("c", "c", "a"),
		task("d", "d", "b", "c"),
	)
	agg := NewAggregator("run-1")
	exec := NewExecutor(agents("a", "b", "c", "d"), startPool(t, 2), bus, nil, zap.NewNop(), ExecutorConfig{})

	require.NoError(t, exec.Execute(context.Background(), "run-1", g, nil, agg))
	report := agg.Finalize(g)

	assert.Equal(t, domain.PlanStatusAllCompleted, report.Status)
	assert.Equal(t, 4, bus.count(domain.EventTypeTaskStarted))
}

func TestExecutor_WorkerPoolCancellationBlocksQueuedTasks(t *testing.T) {
	var calls atomic.Int32
	var once sync.Once
	started := make(chan struct{})

	lookup := agentMap{}
	for _, name := range []string{"slow", "q1", "q2", "q3"} {
		lookup[name] = &fakeAgent{name: name, process: func(ctx context.Context, _ string) (interface{}, error) {
			calls.Add(1)
			once.Do(func() { close(started) })
			<-ctx.Done()
			return nil, ctx.Err()
		}}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	bus := &recordingBus{}
	g := buildGraph(t,
		domain.Task{ID: "slow", AgentName: "slow", Priority: 5},
		task("q1", "q1"),
		task("q2", "q2"),
		task("q3", "q3"),
	)
	agg := NewAggregator("run-1")
	exec := NewExecutor(lookup, startPool(t, 1), bus, nil, zap.NewNop(), ExecutorConfig{})

	require.NoError(t, exec.Execute(ctx, "run-1", g, nil, agg))
	report := agg.Finalize(g)

	// only the task that held the single worker ever reached its agent
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, bus.count(domain.EventTypeTaskStarted))
	assert.Equal(t, 1, report.Counts[domain.TaskStateFailed])
	assert.Equal(t, 3, report.Counts[domain.TaskStateBlocked])

	for id, o := range report.Outcomes {
		assert.Equal(t, domain.ErrorKindCancelled, o.ErrorKind, id)
		if o.Status == domain.TaskStateBlocked {
			assert.Nil(t, o.StartedAt, id)
		}
	}
}

func TestExecutor_TaskTimeoutCountsQueueWait(t *testing.T) {
	pool := startPool(t, 1)

	// occupy the only worker longer than the task timeout
	release := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), func() { <-release }))
	timer := time.AfterFunc(150*time.Millisecond, func() { close(release) })
	defer timer.Stop()

	var calls atomic.Int32
	lookup := agentMap{"a": &fakeAgent{name: "a", process: func(context.Context, string) (interface{}, error) {
		calls.Add(1)
		return "ok", nil
	}}}

	g := buildGraph(t, task("a", "a"), task("b", "b", "a"))
	agg := NewAggregator("run-1")
	exec := NewExecutor(lookup, pool, nil, nil, zap.NewNop(), ExecutorConfig{TaskTimeout: 30 * time.Millisecond})

	require.NoError(t, exec.Execute(context.Background(), "run-1", g, nil, agg))
	report := agg.Finalize(g)

	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, domain.TaskStateFailed, report.Outcomes["a"].Status)
	assert.Equal(t, domain.ErrorKindTaskTimeout, report.Outcomes["a"].ErrorKind)
	assert.Equal(t, domain.TaskStateBlocked, report.Outcomes["b"].Status)
}
