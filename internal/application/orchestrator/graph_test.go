package orchestrator

import (
	"errors"
	"testing"

	"github.com/aescanero/dagent/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func task(id, agent string, deps ...string) domain.Task {
	return domain.Task{ID: id, AgentName: agent, Description: "do " + id, Dependencies: deps}
}

func TestBuildTaskGraph_Diamond(t *testing.T) {
	plan := &domain.Plan{
		TaskType:        "research",
		ExpectedOutcome: "a summary",
		Tasks: []domain.Task{
			task("a", "agent-a"),
			task("b", "agent-b", "a"),
			task("c", "agent-c", "a"),
			task("d", "agent-d", "b", "c"),
		},
	}

	g, err := BuildTaskGraph(plan)
	require.NoError(t, err)

	assert.Equal(t, 4, g.Len())
	assert.Equal(t, []string{"a", "b", "c", "d"}, g.IDs())
	assert.Equal(t, []string{"a"}, g.InitialReadySet())
	assert.Equal(t, []string{"b", "c"}, g.Dependents("a"))
	assert.Equal(t, []string{"b", "c"}, g.Dependencies("d"))
	assert.Equal(t, "research", g.TaskType())
	assert.Equal(t, "a summary", g.ExpectedOutcome())
}

func TestBuildTaskGraph_Normalization(t *testing.T) {
	plan := &domain.Plan{
		Tasks: []domain.Task{
			{AgentName: "search", Description: "find"},
			{AgentName: "writer", Description: "write", Dependencies: []string{"search", "search"}},
		},
	}

	g, err := BuildTaskGraph(plan)
	require.NoError(t, err)

	search, ok := g.Task("search")
	require.True(t, ok)
	assert.Equal(t, "search", search.ID)
	assert.Equal(t, domain.DefaultPriority, search.Priority)

	assert.Equal(t, []string{"search"}, g.Dependencies("writer"))
	assert.Equal(t, []string{"search", "search"}, plan.Tasks[1].Dependencies, "plan must not be mutated")
}

func TestBuildTaskGraph_Errors(t *testing.T) {
	tests := []struct {
		name    string
		plan    *domain.Plan
		wantErr error
	}{
		{
			name:    "nil plan",
			plan:    nil,
			wantErr: domain.ErrInvalidPlan,
		},
		{
			name:    "empty agent name",
			plan:    &domain.Plan{Tasks: []domain.Task{{ID: "a"}}},
			wantErr: domain.ErrInvalidPlan,
		},
		{
			name: "missing id for repeated agent",
			plan: &domain.Plan{Tasks: []domain.Task{
				{AgentName: "x"},
				{AgentName: "x"},
			}},
			wantErr: domain.ErrInvalidPlan,
		},
		{
			name: "duplicate id",
			plan: &domain.Plan{Tasks: []domain.Task{
				task("a", "x"),
				task("a", "y"),
			}},
			wantErr: domain.ErrInvalidPlan,
		},
		{
			name: "priority out of range",
			plan: &domain.Plan{Tasks: []domain.Task{
				{ID: "a", AgentName: "x", Priority: 6},
			}},
			wantErr: domain.ErrInvalidPlan,
		},
		{
			name: "negative priority",
			plan: &domain.Plan{Tasks: []domain.Task{
				{ID: "a", AgentName: "x", Priority: -1},
			}},
			wantErr: domain.ErrInvalidPlan,
		},
		{
			name: "unknown dependency",
			plan: &domain.Plan{Tasks: []domain.Task{
				task("a", "x", "ghost"),
			}},
			wantErr: domain.ErrUnknownDependency,
		},
		{
			name: "two task cycle",
			plan: &domain.Plan{Tasks: []domain.Task{
				task("a", "x", "b"),
				task("b", "y", "a"),
			}},
			wantErr: domain.ErrCycleDetected,
		},
		{
			name: "self dependency",
			plan: &domain.Plan{Tasks: []domain.Task{
				task("a", "x", "a"),
			}},
			wantErr: domain.ErrCycleDetected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := BuildTaskGraph(tt.plan)
			require.Error(t, err)
			assert.Nil(t, g)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBuildTaskGraph_CyclePath(t *testing.T) {
	plan := &domain.Plan{Tasks: []domain.Task{
		task("root", "r"),
		task("a", "x", "root", "c"),
		task("b", "y", "a"),
		task("c", "z", "b"),
		task("tail", "t", "c"),
	}}

	_, err := BuildTaskGraph(plan)
	require.Error(t, err)

	var planErr *domain.PlanError
	require.True(t, errors.As(err, &planErr))
	require.GreaterOrEqual(t, len(planErr.Cycle), 2)

	cycle := planErr.Cycle
	assert.Equal(t, cycle[0], cycle[len(cycle)-1], "cycle path must be closed")
	assert.ElementsMatch(t, []string{"a", "b", "c"}, cycle[:len(cycle)-1])
	assert.NotContains(t, cycle, "root")
	assert.NotContains(t, cycle, "tail")
}

func TestBuildTaskGraph_EmptyPlan(t *testing.T) {
	g, err := BuildTaskGraph(&domain.Plan{})
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())
	assert.Empty(t, g.InitialReadySet())
}

func TestReadyQueue_PriorityThenPlanOrder(t *testing.T) {
	plan := &domain.Plan{Tasks: []domain.Task{
		{ID: "low-1", AgentName: "a", Priority: 1},
		{ID: "high", AgentName: "b", Priority: 5},
		{ID: "low-2", AgentName: "c", Priority: 1},
		{ID: "mid", AgentName: "d", Priority: 3},
	}}
	g, err := BuildTaskGraph(plan)
	require.NoError(t, err)

	q := newReadyQueue(g)
	q.push("low-2", "low-1", "mid", "high")

	var popped []string
	for q.Len() > 0 {
		popped = append(popped, q.pop())
	}
	assert.Equal(t, []string{"high", "mid", "low-1", "low-2"}, popped)
}
