package workers

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// saturationWarnAfter is the number of consecutive saturated checks before
// the monitor warns
const saturationWarnAfter = 3

// HealthStatus is a point-in-time view of the worker pool
type HealthStatus struct {
	TotalWorkers   int `json:"total_workers"`
	IdleWorkers    int `json:"idle_workers"`
	BusyWorkers    int `json:"busy_workers"`
	StoppedWorkers int `json:"stopped_workers"`
	QueuedJobs     int `json:"queued_jobs"`

	// Healthy means every worker is running
	Healthy bool `json:"healthy"`
	// Saturated means every worker is busy and jobs are waiting
	Saturated bool      `json:"saturated"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthMonitor periodically samples the pool, exporting worker gauges and
// warning when the pool stays saturated
type HealthMonitor struct {
	pool     *Pool
	interval time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	last      *HealthStatus
	saturated int
}

// NewHealthMonitor creates a new health monitor. A non-positive interval
// disables periodic checks.
func NewHealthMonitor(pool *Pool, interval time.Duration, logger *zap.Logger) *HealthMonitor {
	return &HealthMonitor{
		pool:     pool,
		interval: interval,
		logger:   logger,
	}
}

// Start starts the periodic checks
func (h *HealthMonitor) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running || h.interval <= 0 {
		return
	}
	h.running = true
	h.stopCh = make(chan struct{})

	go h.run(h.stopCh)
}

// Stop stops the periodic checks
func (h *HealthMonitor) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return
	}
	h.running = false
	close(h.stopCh)
}

func (h *HealthMonitor) run(stopCh <-chan struct{}) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			h.check()
		}
	}
}

// check samples the pool once, records the gauges and remembers the result
func (h *HealthMonitor) check() *HealthStatus {
	status := h.GetStatus()

	h.pool.metrics.RecordWorkerPoolStatus(
		status.IdleWorkers,
		status.BusyWorkers,
		status.StoppedWorkers,
	)

	h.mu.Lock()
	h.last = status
	prev := h.saturated
	if status.Saturated {
		h.saturated++
	} else {
		h.saturated = 0
	}
	streak := h.saturated
	h.mu.Unlock()

	h.logger.Debug("worker pool health check",
		zap.Int("idle", status.IdleWorkers),
		zap.Int("busy", status.BusyWorkers),
		zap.Int("stopped", status.StoppedWorkers),
		zap.Int("queued", status.QueuedJobs))

	switch {
	case !status.Healthy:
		h.logger.Warn("worker pool is unhealthy",
			zap.Int("stopped", status.StoppedWorkers),
			zap.Int("total", status.TotalWorkers))
	case streak == saturationWarnAfter:
		h.logger.Warn("worker pool saturated - consider raising WORKER_POOL_SIZE",
			zap.Int("total", status.TotalWorkers),
			zap.Int("queued", status.QueuedJobs),
			zap.Duration("for", time.Duration(streak)*h.interval))
	case streak == 0 && prev >= saturationWarnAfter:
		h.logger.Info("worker pool no longer saturated")
	}

	return status
}

// GetStatus samples the pool now
func (h *HealthMonitor) GetStatus() *HealthStatus {
	status := &HealthStatus{
		QueuedJobs: h.pool.Queued(),
		Timestamp:  time.Now(),
	}

	for _, ws := range h.pool.GetStatus() {
		status.TotalWorkers++
		switch ws {
		case WorkerStatusIdle:
			status.IdleWorkers++
		case WorkerStatusBusy:
			status.BusyWorkers++
		case WorkerStatusStopped:
			status.StoppedWorkers++
		}
	}

	status.Healthy = status.TotalWorkers > 0 && status.StoppedWorkers == 0
	status.Saturated = status.Healthy && status.BusyWorkers == status.TotalWorkers && status.QueuedJobs > 0

	return status
}

// Last returns the status recorded by the latest periodic check, or nil
// before the first one
func (h *HealthMonitor) Last() *HealthStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// IsHealthy returns true if every worker is running
func (h *HealthMonitor) IsHealthy() bool {
	return h.GetStatus().Healthy
}
