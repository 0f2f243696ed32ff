package orchestrator

import (
	"fmt"
	"strings"

	"github.com/aescanero/dagent/pkg/domain"
)

// TaskGraph is the validated, immutable view of a plan.
type TaskGraph struct {
	taskType        string
	expectedOutcome string

	tasks        map[string]domain.Task
	order        []string
	position     map[string]int
	dependencies map[string][]string
	dependents   map[string][]string
	inDegree     map[string]int
}

// BuildTaskGraph validates plan and indexes it by task id.
//
// Task ids default to the agent name when that agent appears only once in
// the plan. Priorities of 0 default to domain.DefaultPriority. Duplicate
// dependency ids are collapsed.
//
// Errors wrap domain.ErrInvalidPlan, domain.ErrUnknownDependency or
// domain.ErrCycleDetected; no graph is returned with an error.
func BuildTaskGraph(plan *domain.Plan) (*TaskGraph, error) {
	if plan == nil {
		return nil, domain.InvalidPlanf("plan is nil")
	}

	perAgent := make(map[string]int)
	for _, t := range plan.Tasks {
		perAgent[t.AgentName]++
	}

	g := &TaskGraph{
		taskType:        plan.TaskType,
		expectedOutcome: plan.ExpectedOutcome,
		tasks:           make(map[string]domain.Task, len(plan.Tasks)),
		order:           make([]string, 0, len(plan.Tasks)),
		position:        make(map[string]int, len(plan.Tasks)),
		dependencies:    make(map[string][]string, len(plan.Tasks)),
		dependents:      make(map[string][]string, len(plan.Tasks)),
		inDegree:        make(map[string]int, len(plan.Tasks)),
	}

	for i, t := range plan.Tasks {
		task, err := normalizeTask(i, t, perAgent[t.AgentName])
		if err != nil {
			return nil, err
		}
		if _, exists := g.tasks[task.ID]; exists {
			return nil, &domain.PlanError{
				Kind:   domain.ErrInvalidPlan,
				TaskID: task.ID,
				Msg:    fmt.Sprintf("duplicate task id %q", task.ID),
			}
		}

		g.position[task.ID] = len(g.order)
		g.order = append(g.order, task.ID)
		g.tasks[task.ID] = task
	}

	for _, id := range g.order {
		deps := g.tasks[id].Dependencies
		for _, dep := range deps {
			if _, ok := g.tasks[dep]; !ok {
				return nil, &domain.PlanError{
					Kind:   domain.ErrUnknownDependency,
					TaskID: id,
					Msg:    fmt.Sprintf("task %q depends on %q which is not in the plan", id, dep),
				}
			}
			g.dependents[dep] = append(g.dependents[dep], id)
		}
		g.dependencies[id] = deps
		g.inDegree[id] = len(deps)
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &domain.PlanError{Kind: domain.ErrCycleDetected, TaskID: cycle[0], Cycle: cycle}
	}

	return g, nil
}

// normalizeTask fills defaults and validates a single task
func normalizeTask(index int, t domain.Task, agentTasks int) (domain.Task, error) {
	if strings.TrimSpace(t.AgentName) == "" {
		return t, domain.InvalidPlanf("task %d: agent name is required", index)
	}

	if t.ID == "" {
		if agentTasks > 1 {
			return t, domain.InvalidPlanf("task %d: id is required because agent %q performs %d tasks",
				index, t.AgentName, agentTasks)
		}
		t.ID = t.AgentName
	}

	if t.Priority == 0 {
		t.Priority = domain.DefaultPriority
	}
	if t.Priority < domain.MinPriority || t.Priority > domain.MaxPriority {
		return t, &domain.PlanError{
			Kind:   domain.ErrInvalidPlan,
			TaskID: t.ID,
			Msg:    fmt.Sprintf("priority %d out of range [%d, %d]", t.Priority, domain.MinPriority, domain.MaxPriority),
		}
	}

	seen := make(map[string]bool, len(t.Dependencies))
	deps := make([]string, 0, len(t.Dependencies))
	for _, dep := range t.Dependencies {
		if seen[dep] {
			continue
		}
		seen[dep] = true
		deps = append(deps, dep)
	}
	t.Dependencies = deps

	return t, nil
}

// findCycle runs Kahn's algorithm and, if some tasks can never reach zero
// in-degree, returns one concrete cycle among them in dependency order.
func (g *TaskGraph) findCycle() []string {
	remaining := make(map[string]int, len(g.inDegree))
	for id, n := range g.inDegree {
		remaining[id] = n
	}

	queue := make([]string, 0, len(g.order))
	for _, id := range g.order {
		if remaining[id] == 0 {
			queue = append(queue, id)
		}
	}

	removed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		removed++
		for _, dep := range g.dependents[id] {
			remaining[dep]--
			if remaining[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if removed == len(g.order) {
		return nil
	}

	// Every leftover task has at least one leftover dependency, so walking
	// dependencies from any of them must revisit a task.
	var start string
	for _, id := range g.order {
		if remaining[id] > 0 {
			start = id
			break
		}
	}

	path := []string{}
	index := make(map[string]int)
	cur := start
	for {
		if i, seen := index[cur]; seen {
			return append(path[i:], cur)
		}
		index[cur] = len(path)
		path = append(path, cur)
		for _, dep := range g.dependencies[cur] {
			if remaining[dep] > 0 {
				cur = dep
				break
			}
		}
	}
}

// Len returns the number of tasks
func (g *TaskGraph) Len() int { return len(g.order) }

// IDs returns task ids in plan order
func (g *TaskGraph) IDs() []string {
	return append([]string(nil), g.order...)
}

// Task returns the normalized task with the given id
func (g *TaskGraph) Task(id string) (domain.Task, bool) {
	t, ok := g.tasks[id]
	return t, ok
}

// Dependencies returns the ids id depends on
func (g *TaskGraph) Dependencies(id string) []string {
	return append([]string(nil), g.dependencies[id]...)
}

// Dependents returns the ids that depend on id, in plan order
func (g *TaskGraph) Dependents(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}

// InitialReadySet returns the tasks without dependencies, in plan order
func (g *TaskGraph) InitialReadySet() []string {
	ready := make([]string, 0)
	for _, id := range g.order {
		if g.inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	return ready
}

// TaskType returns the plan's task type
func (g *TaskGraph) TaskType() string { return g.taskType }

// ExpectedOutcome returns the plan's expected outcome
func (g *TaskGraph) ExpectedOutcome() string { return g.expectedOutcome }
