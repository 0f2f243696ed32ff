package domain

import (
	"time"
)

// ExecutionOutcome is the terminal result of one task.
type ExecutionOutcome struct {
	TaskID      string        `json:"task_id"`
	AgentName   string        `json:"agent_name"`
	Status      TaskState     `json:"status"`
	Payload     interface{}   `json:"payload,omitempty"`
	ErrorKind   ErrorKind     `json:"error_kind,omitempty"`
	ErrorDetail string        `json:"error_detail,omitempty"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	FinishedAt  time.Time     `json:"finished_at"`
	Duration    time.Duration `json:"duration,omitempty"`

	// Err is the original error for in-process callers; it does not survive
	// serialization.
	Err error `json:"-"`
}

// ExecutionReport is the per-run result handed back to callers.
type ExecutionReport struct {
	RunID           string                      `json:"run_id"`
	Status          PlanStatus                  `json:"status"`
	TaskType        string                      `json:"task_type,omitempty"`
	ExpectedOutcome string                      `json:"expected_outcome,omitempty"`
	Outcomes        map[string]ExecutionOutcome `json:"outcomes"`
	Order           []string                    `json:"order"`
	Counts          map[TaskState]int           `json:"counts"`
	Error           string                      `json:"error,omitempty"`
	StartedAt       time.Time                   `json:"started_at"`
	CompletedAt     *time.Time                  `json:"completed_at,omitempty"`
}

// Outcome returns the outcome recorded for taskID.
func (r *ExecutionReport) Outcome(taskID string) (ExecutionOutcome, bool) {
	o, ok := r.Outcomes[taskID]
	return o, ok
}

// Clone returns a deep copy of the report maps and slices. Payloads are
// shared since agents return them as immutable values.
func (r *ExecutionReport) Clone() *ExecutionReport {
	if r == nil {
		return nil
	}

	cp := *r
	cp.Outcomes = make(map[string]ExecutionOutcome, len(r.Outcomes))
	for id, o := range r.Outcomes {
		cp.Outcomes[id] = o
	}
	cp.Order = append([]string(nil), r.Order...)
	cp.Counts = make(map[TaskState]int, len(r.Counts))
	for s, n := range r.Counts {
		cp.Counts[s] = n
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
