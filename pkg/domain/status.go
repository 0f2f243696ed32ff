package domain

// TaskState is the lifecycle state of a task within one run
type TaskState string

const (
	TaskStatePending   TaskState = "pending"
	TaskStateReady     TaskState = "ready"
	TaskStateRunning   TaskState = "running"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
	TaskStateBlocked   TaskState = "blocked"
)

// IsTerminal reports whether no further transition can follow s.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateBlocked:
		return true
	default:
		return false
	}
}

// PlanStatus is the plan-level status of an execution report
type PlanStatus string

const (
	PlanStatusAllCompleted       PlanStatus = "all_completed"
	PlanStatusPartiallyCompleted PlanStatus = "partially_completed"
	PlanStatusRejectedCyclic     PlanStatus = "rejected_cyclic"
	PlanStatusRejectedInvalid    PlanStatus = "rejected_invalid"

	// PlanStatusRunning only appears on snapshots of runs still in progress.
	PlanStatusRunning PlanStatus = "running"
)

// IsRejected reports whether the plan never started executing.
func (s PlanStatus) IsRejected() bool {
	return s == PlanStatusRejectedCyclic || s == PlanStatusRejectedInvalid
}

// ErrorKind classifies the error carried by a failed or blocked outcome
type ErrorKind string

const (
	ErrorKindAgentNotFound    ErrorKind = "agent_not_found"
	ErrorKindTaskExecution    ErrorKind = "task_execution"
	ErrorKindTaskTimeout      ErrorKind = "task_timeout"
	ErrorKindCancelled        ErrorKind = "cancelled"
	ErrorKindDependencyFailed ErrorKind = "dependency_failed"
)
