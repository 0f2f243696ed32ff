package orchestrator

import (
	"fmt"

	"github.com/aescanero/dagent/pkg/domain"
)

// RunState holds the mutable per-task state of one run over a TaskGraph.
// It is not safe for concurrent use; the executor's coordinator goroutine is
// its only writer.
type RunState struct {
	graph    *TaskGraph
	states   map[string]domain.TaskState
	unmet    map[string]int
	terminal int
}

// NewRunState returns a state with every task Pending
func (g *TaskGraph) NewRunState() *RunState {
	s := &RunState{
		graph:  g,
		states: make(map[string]domain.TaskState, len(g.order)),
		unmet:  make(map[string]int, len(g.order)),
	}
	for _, id := range g.order {
		s.states[id] = domain.TaskStatePending
		s.unmet[id] = g.inDegree[id]
	}
	return s
}

// State returns the current state of a task
func (s *RunState) State(id string) domain.TaskState {
	return s.states[id]
}

// Done reports whether every task reached a terminal state
func (s *RunState) Done() bool {
	return s.terminal == len(s.graph.order)
}

// Unfinished returns the number of tasks not yet terminal
func (s *RunState) Unfinished() int {
	return len(s.graph.order) - s.terminal
}

// Transition moves id from one state to another. The expected prior state
// makes ordering bugs observable instead of silently overwriting.
func (s *RunState) Transition(id string, from, to domain.TaskState) error {
	cur, ok := s.states[id]
	if !ok {
		return fmt.Errorf("unknown task %q", id)
	}
	if cur != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", id, from, cur)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", id, from, to)
	}

	s.states[id] = to
	if to.IsTerminal() {
		s.terminal++
	}
	return nil
}

func isAllowedTransition(from, to domain.TaskState) bool {
	switch from {
	case domain.TaskStatePending:
		return to == domain.TaskStateReady || to == domain.TaskStateBlocked
	case domain.TaskStateReady:
		// Failed covers a missing agent or a task that never reached a worker;
		// Blocked covers cancellation.
		return to == domain.TaskStateRunning || to == domain.TaskStateFailed || to == domain.TaskStateBlocked
	case domain.TaskStateRunning:
		return to == domain.TaskStateCompleted || to == domain.TaskStateFailed
	default:
		return false
	}
}

// OnTaskTerminal propagates the terminal state of id to its dependents.
//
// A Completed task satisfies one dependency of each dependent; a dependent
// whose dependencies have all completed becomes Ready. A Failed or Blocked
// task marks every Pending descendant Blocked. Tasks that are not
// descendants of id are never touched.
func (s *RunState) OnTaskTerminal(id string, status domain.TaskState) (ready, blocked []string, err error) {
	if cur := s.states[id]; cur != status {
		return nil, nil, fmt.Errorf("task %q is %s, not %s", id, cur, status)
	}

	switch status {
	case domain.TaskStateCompleted:
		for _, dep := range s.graph.dependents[id] {
			s.unmet[dep]--
			if s.unmet[dep] == 0 && s.states[dep] == domain.TaskStatePending {
				s.states[dep] = domain.TaskStateReady
				ready = append(ready, dep)
			}
		}
		return ready, nil, nil

	case domain.TaskStateFailed, domain.TaskStateBlocked:
		queue := []string{id}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, dep := range s.graph.dependents[cur] {
				if s.states[dep] != domain.TaskStatePending {
					continue
				}
				s.states[dep] = domain.TaskStateBlocked
				s.terminal++
				blocked = append(blocked, dep)
				queue = append(queue, dep)
			}
		}
		return nil, blocked, nil

	default:
		return nil, nil, fmt.Errorf("task %q: %s is not terminal", id, status)
	}
}

// BlockRemaining marks every Pending or Ready task Blocked and returns them
// in plan order. Running tasks are left alone.
func (s *RunState) BlockRemaining() []string {
	var blocked []string
	for _, id := range s.graph.order {
		switch s.states[id] {
		case domain.TaskStatePending, domain.TaskStateReady:
			s.states[id] = domain.TaskStateBlocked
			s.terminal++
			blocked = append(blocked, id)
		}
	}
	return blocked
}
