package workers

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type poolMetrics struct {
	mu                  sync.Mutex
	idle, busy, stopped int
	calls               int
}

func (m *poolMetrics) RecordRunSubmitted(string) {}
func (m *poolMetrics) RecordRunCompleted(string, time.Duration) {}
func (m *poolMetrics) RecordTaskExecuted(string, string, time.Duration) {}
func (m *poolMetrics) RecordAgentInitFailure(string) {}
func (m *poolMetrics) AddRunningTasks(int) {}
func (m *poolMetrics) SetActiveRuns(int) {}

func (m *poolMetrics) RecordWorkerPoolStatus(idle, busy, stopped int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idle, m.busy, m.stopped = idle, busy, stopped
	m.calls++
}

func startPool(t *testing.T, size int) *Pool {
	t.Helper()
	p := NewPool(size, nil, zap.NewNop(), 0)
	require.NoError(t, p.Start())
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p
}

func TestPool_RunsJobs(t *testing.T) {
	p := startPool(t, 3)

	var wg sync.WaitGroup
	var ran atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), func() {
			defer wg.Done()
			ran.Add(1)
		}))
	}
	wg.Wait()

	assert.Equal(t, int32(20), ran.Load())
}

func TestPool_BoundsConcurrency(t *testing.T) {
	p := startPool(t, 2)

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), func() {
			defer wg.Done()
			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			current.Add(-1)
		}))
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPool_SurvivesPanics(t *testing.T) {
	p := startPool(t, 1)

	require.NoError(t, p.Submit(context.Background(), func() { panic("bad job") }))

	done := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func() { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not recover from panic")
	}
}

func TestPool_SubmitHonorsContext(t *testing.T) {
	p := startPool(t, 1)

	release := make(chan struct{})
	defer close(release)

	// Occupy the worker and fill the queue
	require.NoError(t, p.Submit(context.Background(), func() { <-release }))
	require.Eventually(t, func() bool {
		return p.GetStatus()["worker-0"] == WorkerStatusBusy
	}, time.Second, time.Millisecond)
	require.NoError(t, p.Submit(context.Background(), func() {}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Submit(ctx, func() {}), context.DeadlineExceeded)
}

func TestPool_Lifecycle(t *testing.T) {
	p := NewPool(2, nil, zap.NewNop(), 0)
	assert.ErrorIs(t, p.Submit(context.Background(), func() {}), ErrPoolNotStarted)

	require.NoError(t, p.Start())
	assert.Error(t, p.Start())

	var ran atomic.Bool
	require.NoError(t, p.Submit(context.Background(), func() {
		time.Sleep(10 * time.Millisecond)
		ran.Store(true)
	}))

	require.NoError(t, p.Shutdown(context.Background()))
	assert.True(t, ran.Load(), "accepted jobs run before shutdown completes")
	assert.ErrorIs(t, p.Submit(context.Background(), func() {}), ErrPoolClosed)
	assert.NoError(t, p.Shutdown(context.Background()))

	for _, status := range p.GetStatus() {
		assert.Equal(t, WorkerStatusStopped, status)
	}
	assert.False(t, p.Health().IsHealthy())
}

func TestHealthMonitor_RecordsMetrics(t *testing.T) {
	metrics := &poolMetrics{}
	p := NewPool(2, metrics, zap.NewNop(), 5*time.Millisecond)
	require.NoError(t, p.Start())
	defer func() { _ = p.Shutdown(context.Background()) }()

	assert.True(t, p.Health().IsHealthy())
	status := p.Health().GetStatus()
	assert.Equal(t, 2, status.TotalWorkers)
	assert.Equal(t, 2, status.IdleWorkers)

	require.Eventually(t, func() bool {
		metrics.mu.Lock()
		defer metrics.mu.Unlock()
		return metrics.calls > 0 && metrics.idle == 2
	}, time.Second, 5*time.Millisecond)
}

func TestHealthMonitor_Saturation(t *testing.T) {
	metrics := &poolMetrics{}
	p := NewPool(1, metrics, zap.NewNop(), 0)
	require.NoError(t, p.Start())
	defer func() { _ = p.Shutdown(context.Background()) }()

	assert.Nil(t, p.Health().Last(), "no periodic check has run")

	release := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func() { <-release }))
	require.Eventually(t, func() bool {
		return p.Health().GetStatus().BusyWorkers == 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, p.Submit(context.Background(), func() {}))

	status := p.Health().check()
	assert.True(t, status.Healthy)
	assert.True(t, status.Saturated)
	assert.Equal(t, 1, status.QueuedJobs)
	assert.Same(t, status, p.Health().Last())

	close(release)
	require.Eventually(t, func() bool {
		return !p.Health().check().Saturated
	}, time.Second, 5*time.Millisecond)

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.GreaterOrEqual(t, metrics.calls, 2)
}
