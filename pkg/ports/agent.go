package ports

import (
	"context"

	"github.com/aescanero/dagent/pkg/domain"
)

// AgentConfig is the declaration an agent is initialized with.
type AgentConfig struct {
	Name        string                 `yaml:"name" json:"name"`
	Kind        string                 `yaml:"kind" json:"kind"`
	Description string                 `yaml:"description,omitempty" json:"description,omitempty"`
	OutputShape string                 `yaml:"output_shape,omitempty" json:"output_shape,omitempty"`
	Settings    map[string]interface{} `yaml:"settings,omitempty" json:"settings,omitempty"`
}

// Agent is the capability every worker implements.
//
// Process must be safe to call concurrently, including with itself when one
// agent receives several tasks in a run. Shutdown is called once by the
// registry and never while a task is in flight.
type Agent interface {
	Initialize(ctx context.Context, cfg AgentConfig) error
	Process(ctx context.Context, description string, shared domain.SharedContext) (interface{}, error)
	Describe() domain.AgentDescriptor
	Shutdown(ctx context.Context) error
}

// AgentFactory returns an uninitialized agent.
type AgentFactory func() Agent

// AgentCatalog resolves agent kinds to factories.
type AgentCatalog interface {
	Factory(kind string) (AgentFactory, bool)
	Kinds() []string
}

// AgentLookup is the read side of the agent registry used during execution.
type AgentLookup interface {
	Get(name string) (Agent, bool)
}

// PlanProducer supplies plans to execute.
type PlanProducer interface {
	Plan(ctx context.Context) (*domain.Plan, error)
}
