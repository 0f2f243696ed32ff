package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	runsSubmitted     *prometheus.CounterVec
	runsCompleted     *prometheus.CounterVec
	tasksExecuted     *prometheus.CounterVec
	agentInitFailures *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	taskDuration      *prometheus.HistogramVec
	runningTasks      prometheus.Gauge
	activeRuns        prometheus.Gauge
	workerPoolIdle    prometheus.Gauge
	workerPoolBusy    prometheus.Gauge
	workerPoolStopped prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector registered with reg.
// Pass prometheus.DefaultRegisterer to expose the metrics on promhttp.Handler.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		runsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dagent_runs_submitted_total",
				Help: "Total number of runs submitted",
			},
			[]string{"status"},
		),
		runsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dagent_runs_completed_total",
				Help: "Total number of runs completed by plan status",
			},
			[]string{"status"},
		),
		tasksExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dagent_tasks_executed_total",
				Help: "Total number of tasks reaching a terminal state",
			},
			[]string{"agent", "status"},
		),
		agentInitFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dagent_agent_init_failures_total",
				Help: "Total number of agents that failed to initialize",
			},
			[]string{"agent"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dagent_run_duration_seconds",
				Help:    "Run execution duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),
		taskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dagent_task_duration_seconds",
				Help:    "Task execution duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"agent"},
		),
		runningTasks: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dagent_running_tasks",
				Help: "Number of tasks currently dispatched to agents",
			},
		),
		activeRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dagent_active_runs",
				Help: "Number of currently active runs",
			},
		),
		workerPoolIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dagent_worker_pool_idle",
				Help: "Number of idle workers",
			},
		),
		workerPoolBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dagent_worker_pool_busy",
				Help: "Number of busy workers",
			},
		),
		workerPoolStopped: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dagent_worker_pool_stopped",
				Help: "Number of stopped workers",
			},
		),
	}
}

// RecordRunSubmitted records a run submission
func (c *Collector) RecordRunSubmitted(status string) {
	c.runsSubmitted.WithLabelValues(status).Inc()
}

// RecordRunCompleted records a finished run
func (c *Collector) RecordRunCompleted(status string, duration time.Duration) {
	c.runsCompleted.WithLabelValues(status).Inc()
	c.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordTaskExecuted records a task reaching a terminal state. Blocked tasks
// never ran, so their duration is not observed.
func (c *Collector) RecordTaskExecuted(agent, status string, duration time.Duration) {
	c.tasksExecuted.WithLabelValues(agent, status).Inc()
	if duration > 0 {
		c.taskDuration.WithLabelValues(agent).Observe(duration.Seconds())
	}
}

// RecordAgentInitFailure records an agent that failed to initialize
func (c *Collector) RecordAgentInitFailure(agent string) {
	c.agentInitFailures.WithLabelValues(agent).Inc()
}

// AddRunningTasks adjusts the number of in-flight tasks
func (c *Collector) AddRunningTasks(delta int) {
	c.runningTasks.Add(float64(delta))
}

// SetActiveRuns sets the number of currently active runs
func (c *Collector) SetActiveRuns(count int) {
	c.activeRuns.Set(float64(count))
}

// RecordWorkerPoolStatus records worker pool status
func (c *Collector) RecordWorkerPoolStatus(idle, busy, stopped int) {
	c.workerPoolIdle.Set(float64(idle))
	c.workerPoolBusy.Set(float64(busy))
	c.workerPoolStopped.Set(float64(stopped))
}
