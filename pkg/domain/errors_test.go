package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanError_Message(t *testing.T) {
	err := &PlanError{Kind: ErrCycleDetected, Cycle: []string{"a", "b", "a"}}
	assert.Equal(t, "cycle detected: a -> b -> a", err.Error())
	assert.True(t, errors.Is(err, ErrCycleDetected))
	assert.False(t, errors.Is(err, ErrUnknownDependency))

	err = &PlanError{Kind: ErrUnknownDependency, TaskID: "b", Msg: `task "b" depends on "x"`}
	assert.Equal(t, `unknown dependency: task "b" depends on "x"`, err.Error())
}

func TestTaskError_UnwrapsKindAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := &TaskError{TaskID: "t1", AgentName: "a", Kind: ErrTaskExecution, Err: cause}

	assert.True(t, errors.Is(err, ErrTaskExecution))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "task t1: task execution failed: boom", err.Error())

	var te *TaskError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &te))
	assert.Equal(t, "t1", te.TaskID)
}

func TestAgentInitError(t *testing.T) {
	err := &AgentInitError{Agent: "dynamo", Err: errors.New("missing model")}
	assert.True(t, errors.Is(err, ErrAgentInitialization))
	assert.Contains(t, err.Error(), "dynamo")
	assert.Contains(t, err.Error(), "missing model")
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{&TaskError{Kind: ErrAgentNotFound}, ErrorKindAgentNotFound},
		{&TaskError{Kind: ErrTaskTimeout}, ErrorKindTaskTimeout},
		{&TaskError{Kind: ErrCancelled}, ErrorKindCancelled},
		{&TaskError{Kind: ErrDependencyFailed}, ErrorKindDependencyFailed},
		{&TaskError{Kind: ErrTaskExecution}, ErrorKindTaskExecution},
		{errors.New("anything else"), ErrorKindTaskExecution},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), tt.err.Error())
	}
}

func TestExecutionReport_CloneIsIndependent(t *testing.T) {
	r := &ExecutionReport{
		RunID:    "r1",
		Outcomes: map[string]ExecutionOutcome{"a": {TaskID: "a", Status: TaskStateCompleted}},
		Order:    []string{"a"},
		Counts:   map[TaskState]int{TaskStateCompleted: 1},
	}

	cp := r.Clone()
	cp.Outcomes["b"] = ExecutionOutcome{TaskID: "b"}
	cp.Order[0] = "z"
	cp.Counts[TaskStateFailed] = 3

	assert.Len(t, r.Outcomes, 1)
	assert.Equal(t, "a", r.Order[0])
	assert.NotContains(t, r.Counts, TaskStateFailed)
}

func TestTaskState_IsTerminal(t *testing.T) {
	assert.False(t, TaskStatePending.IsTerminal())
	assert.False(t, TaskStateReady.IsTerminal())
	assert.False(t, TaskStateRunning.IsTerminal())
	assert.True(t, TaskStateCompleted.IsTerminal())
	assert.True(t, TaskStateFailed.IsTerminal())
	assert.True(t, TaskStateBlocked.IsTerminal())
}
