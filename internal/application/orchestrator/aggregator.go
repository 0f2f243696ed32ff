package orchestrator

import (
	"errors"
	"sync"
	"time"

	"github.com/aescanero/dagent/pkg/domain"
)

// Aggregator folds task outcomes of one run into an ExecutionReport.
// It is safe for concurrent use so snapshots can be taken while the run
// is still recording.
type Aggregator struct {
	runID     string
	startedAt time.Time

	mu       sync.RWMutex
	outcomes map[string]domain.ExecutionOutcome
}

// NewAggregator creates an aggregator for runID
func NewAggregator(runID string) *Aggregator {
	return &Aggregator{
		runID:     runID,
		startedAt: time.Now(),
		outcomes:  make(map[string]domain.ExecutionOutcome),
	}
}

// Record stores outcome under its task id, replacing any earlier outcome
// for the same task.
func (a *Aggregator) Record(outcome domain.ExecutionOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outcomes[outcome.TaskID] = outcome
}

// Len returns the number of recorded outcomes
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.outcomes)
}

// Snapshot returns the report of a run still in progress
func (a *Aggregator) Snapshot(graph *TaskGraph) *domain.ExecutionReport {
	return a.build(graph, domain.PlanStatusRunning, nil)
}

// Finalize returns the final report. The run is AllCompleted only when every
// task of graph has a Completed outcome.
func (a *Aggregator) Finalize(graph *TaskGraph) *domain.ExecutionReport {
	now := time.Now()
	report := a.build(graph, domain.PlanStatusAllCompleted, &now)
	if report.Counts[domain.TaskStateCompleted] != graph.Len() {
		report.Status = domain.PlanStatusPartiallyCompleted
	}
	return report
}

func (a *Aggregator) build(graph *TaskGraph, status domain.PlanStatus, completedAt *time.Time) *domain.ExecutionReport {
	a.mu.RLock()
	defer a.mu.RUnlock()

	report := &domain.ExecutionReport{
		RunID:           a.runID,
		Status:          status,
		TaskType:        graph.TaskType(),
		ExpectedOutcome: graph.ExpectedOutcome(),
		Outcomes:        make(map[string]domain.ExecutionOutcome, len(a.outcomes)),
		Order:           graph.IDs(),
		Counts:          make(map[domain.TaskState]int),
		StartedAt:       a.startedAt,
		CompletedAt:     completedAt,
	}

	for _, id := range report.Order {
		o, ok := a.outcomes[id]
		if !ok {
			continue
		}
		report.Outcomes[id] = o
		report.Counts[o.Status]++
	}
	return report
}

// Rejected builds the report of a plan that failed validation
func Rejected(runID string, plan *domain.Plan, err error) *domain.ExecutionReport {
	now := time.Now()
	report := &domain.ExecutionReport{
		RunID:       runID,
		Status:      domain.PlanStatusRejectedInvalid,
		Outcomes:    map[string]domain.ExecutionOutcome{},
		Order:       []string{},
		Counts:      map[domain.TaskState]int{},
		Error:       err.Error(),
		StartedAt:   now,
		CompletedAt: &now,
	}
	if errors.Is(err, domain.ErrCycleDetected) {
		report.Status = domain.PlanStatusRejectedCyclic
	}
	if plan != nil {
		report.TaskType = plan.TaskType
		report.ExpectedOutcome = plan.ExpectedOutcome
	}
	return report
}
