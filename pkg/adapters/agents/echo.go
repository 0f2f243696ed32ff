package agents

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aescanero/dagent/pkg/domain"
	"github.com/aescanero/dagent/pkg/ports"
)

// EchoKind is the kind name of the echo agent
const EchoKind = "echo"

// EchoResult is the payload returned by the echo agent
type EchoResult struct {
	Agent       string   `json:"agent"`
	Description string   `json:"description"`
	ContextKeys []string `json:"context_keys"`
}

// Echo is a deterministic agent that returns its input. It is useful for
// dry runs of a plan and for tests.
//
// Settings:
//   - delay: duration to wait before replying, honoring cancellation
//   - fail: error message to fail every task with
type Echo struct {
	name        string
	description string
	outputShape string
	delay       time.Duration
	fail        string
}

// NewEcho returns an uninitialized echo agent
func NewEcho() ports.Agent {
	return &Echo{}
}

// Initialize reads the echo settings
func (e *Echo) Initialize(ctx context.Context, cfg ports.AgentConfig) error {
	e.name = cfg.Name
	e.description = cfg.Description
	e.outputShape = cfg.OutputShape
	if e.outputShape == "" {
		e.outputShape = "echo"
	}

	if v, ok := cfg.Settings["delay"]; ok {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("delay must be a duration string, got %T", v)
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid delay: %w", err)
		}
		e.delay = d
	}

	if v, ok := cfg.Settings["fail"].(string); ok {
		e.fail = v
	}
	return nil
}

// Process returns the description and the sorted shared context keys
func (e *Echo) Process(ctx context.Context, description string, shared domain.SharedContext) (interface{}, error) {
	if e.delay > 0 {
		timer := time.NewTimer(e.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if e.fail != "" {
		return nil, fmt.Errorf("%s", e.fail)
	}

	keys := make([]string, 0, len(shared))
	for k := range shared {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return EchoResult{Agent: e.name, Description: description, ContextKeys: keys}, nil
}

// Describe returns the agent descriptor
func (e *Echo) Describe() domain.AgentDescriptor {
	return domain.AgentDescriptor{
		Name:        e.name,
		Kind:        EchoKind,
		OutputShape: e.outputShape,
		Description: e.description,
	}
}

// Shutdown is a no-op
func (e *Echo) Shutdown(ctx context.Context) error {
	return nil
}
