package orchestrator

import "container/heap"

// readyQueue orders ready tasks by priority descending, then plan order
type readyQueue struct {
	graph *TaskGraph
	items []string
}

func newReadyQueue(g *TaskGraph) *readyQueue {
	q := &readyQueue{graph: g}
	heap.Init(q)
	return q
}

func (q *readyQueue) Len() int { return len(q.items) }

func (q *readyQueue) Less(i, j int) bool {
	a, b := q.graph.tasks[q.items[i]], q.graph.tasks[q.items[j]]
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return q.graph.position[a.ID] < q.graph.position[b.ID]
}

func (q *readyQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *readyQueue) Push(x any) { q.items = append(q.items, x.(string)) }

func (q *readyQueue) Pop() any {
	n := len(q.items)
	id := q.items[n-1]
	q.items = q.items[:n-1]
	return id
}

func (q *readyQueue) push(ids ...string) {
	for _, id := range ids {
		heap.Push(q, id)
	}
}

func (q *readyQueue) pop() string {
	return heap.Pop(q).(string)
}

func (q *readyQueue) clear() {
	q.items = q.items[:0]
}
