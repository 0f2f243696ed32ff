package ports

import "time"

// MetricsCollector records execution metrics
type MetricsCollector interface {
	RecordRunSubmitted(status string)
	RecordRunCompleted(status string, duration time.Duration)
	RecordTaskExecuted(agent, status string, duration time.Duration)
	RecordAgentInitFailure(agent string)
	AddRunningTasks(delta int)
	SetActiveRuns(count int)
	RecordWorkerPoolStatus(idle, busy, stopped int)
}
