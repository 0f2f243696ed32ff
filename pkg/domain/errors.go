package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Plan-level errors. They abort a run before any task is dispatched.
var (
	ErrInvalidPlan       = errors.New("invalid plan")
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrCycleDetected     = errors.New("cycle detected")
)

// Task-level errors. They are only ever recorded in outcomes.
var (
	ErrAgentNotFound    = errors.New("agent not found")
	ErrTaskExecution    = errors.New("task execution failed")
	ErrTaskTimeout      = errors.New("task timed out")
	ErrCancelled        = errors.New("run cancelled")
	ErrDependencyFailed = errors.New("dependency failed")
)

// Registry and storage errors.
var (
	ErrAgentInitialization = errors.New("agent initialization failed")
	ErrReportNotFound      = errors.New("report not found")
)

// PlanError describes why a plan was rejected.
type PlanError struct {
	Kind   error
	TaskID string
	Cycle  []string
	Msg    string
}

func (e *PlanError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if len(e.Cycle) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Cycle, " -> "))
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	return b.String()
}

func (e *PlanError) Unwrap() error { return e.Kind }

// InvalidPlanf builds an ErrInvalidPlan error.
func InvalidPlanf(format string, args ...interface{}) error {
	return &PlanError{Kind: ErrInvalidPlan, Msg: fmt.Sprintf(format, args...)}
}

// TaskError is the error recorded on a failed or blocked task.
type TaskError struct {
	TaskID    string
	AgentName string
	Kind      error
	Err       error
}

func (e *TaskError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("task %s: %v", e.TaskID, e.Kind)
	}
	return fmt.Sprintf("task %s: %v: %v", e.TaskID, e.Kind, e.Err)
}

func (e *TaskError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// AgentInitError records an agent that could not be constructed.
type AgentInitError struct {
	Agent string
	Err   error
}

func (e *AgentInitError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrAgentInitialization, e.Agent, e.Err)
}

func (e *AgentInitError) Unwrap() []error {
	return []error{ErrAgentInitialization, e.Err}
}

// KindOf maps a task error to its outcome classification. Unknown errors
// count as execution failures.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrAgentNotFound):
		return ErrorKindAgentNotFound
	case errors.Is(err, ErrCancelled):
		return ErrorKindCancelled
	case errors.Is(err, ErrTaskTimeout):
		return ErrorKindTaskTimeout
	case errors.Is(err, ErrDependencyFailed):
		return ErrorKindDependencyFailed
	default:
		return ErrorKindTaskExecution
	}
}
