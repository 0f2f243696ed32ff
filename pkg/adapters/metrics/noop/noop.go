// Package noop provides a MetricsCollector that discards everything.
package noop

import "time"

// Collector discards all metrics
type Collector struct{}

func (Collector) RecordRunSubmitted(string) {}
func (Collector) RecordRunCompleted(string, time.Duration) {}
func (Collector) RecordTaskExecuted(string, string, time.Duration) {}
func (Collector) RecordAgentInitFailure(string) {}
func (Collector) AddRunningTasks(int) {}
func (Collector) SetActiveRuns(int) {}
func (Collector) RecordWorkerPoolStatus(int, int, int) {}
