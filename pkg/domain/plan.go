package domain

// Priority bounds for a task. Priority only breaks ties between tasks that
// become ready at the same time.
const (
	MinPriority     = 1
	MaxPriority     = 5
	DefaultPriority = 1
)

// Task is a single unit of work bound to one agent.
//
// ID may be left empty when AgentName performs only this task in the plan;
// the agent name is then used as the task id.
type Task struct {
	ID           string   `json:"id,omitempty" yaml:"id,omitempty"`
	AgentName    string   `json:"agent_name" yaml:"agent_name"`
	Description  string   `json:"description" yaml:"description"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Priority     int      `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// Plan is an externally produced decomposition of a request into tasks.
type Plan struct {
	TaskType         string                 `json:"task_type,omitempty" yaml:"task_type,omitempty"`
	Tasks            []Task                 `json:"tasks" yaml:"tasks"`
	CoordinationPlan string                 `json:"coordination_plan,omitempty" yaml:"coordination_plan,omitempty"`
	ExpectedOutcome  string                 `json:"expected_outcome,omitempty" yaml:"expected_outcome,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// SharedContext is handed to every agent call of a run. Agents must treat it
// as read-only.
type SharedContext map[string]interface{}

// AgentDescriptor summarizes a registered agent.
type AgentDescriptor struct {
	Name        string `json:"name"`
	Kind        string `json:"kind,omitempty"`
	OutputShape string `json:"output_shape"`
	Description string `json:"description"`
}
