package domain

import "time"

// EventType identifies a run or task event
type EventType string

const (
	EventTypeRunSubmitted  EventType = "run.submitted"
	EventTypeRunRejected   EventType = "run.rejected"
	EventTypeRunCompleted  EventType = "run.completed"
	EventTypeRunCancelled  EventType = "run.cancelled"
	EventTypeTaskStarted   EventType = "task.started"
	EventTypeTaskCompleted EventType = "task.completed"
	EventTypeTaskFailed    EventType = "task.failed"
	EventTypeTaskBlocked   EventType = "task.blocked"
)

// Event bus topics
const (
	TopicRunEvents  = "run.events"
	TopicTaskEvents = "task.events"
)

// Event is published on the event bus as a run progresses.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	RunID     string                 `json:"run_id"`
	TaskID    string                 `json:"task_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}
