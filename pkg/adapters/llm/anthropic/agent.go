// Package anthropic provides an agent that answers tasks with the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aescanero/dagent/pkg/adapters/llm"
	"github.com/aescanero/dagent/pkg/domain"
	"github.com/aescanero/dagent/pkg/ports"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

// Kind is the agent kind name used in agent declarations
const Kind = "anthropic"

// Defaults are applied to every agent whose settings leave a value unset
type Defaults struct {
	APIKey         string
	Model          string
	Temperature    float64
	MaxTokens      int
	RequestTimeout time.Duration

	// MaxConcurrentRequests bounds in-flight API calls across all agents
	// created by one factory. Zero means unbounded.
	MaxConcurrentRequests int
}

// messageClient is the subset of the SDK used by the agent
type messageClient interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Response is the payload of a completed task
type Response struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	StopReason   string `json:"stop_reason"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// Agent implements ports.Agent on top of the Messages API
type Agent struct {
	defaults  Defaults
	logger    *zap.Logger
	newClient func(apiKey string, timeout time.Duration) messageClient
	slots     chan struct{}
	closed    atomic.Bool

	client       messageClient
	name         string
	description  string
	outputShape  string
	model        anthropic.Model
	systemPrompt string
	maxTokens    int64
	temperature  float64
}

// NewFactory returns a factory for Anthropic agents sharing defaults and a
// request limit
func NewFactory(defaults Defaults, logger *zap.Logger) ports.AgentFactory {
	var slots chan struct{}
	if defaults.MaxConcurrentRequests > 0 {
		slots = make(chan struct{}, defaults.MaxConcurrentRequests)
	}

	return func() ports.Agent {
		return &Agent{
			defaults:  defaults,
			logger:    logger,
			newClient: newSDKClient,
			slots:     slots,
		}
	}
}

func newSDKClient(apiKey string, timeout time.Duration) messageClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	client := anthropic.NewClient(opts...)
	return &client.Messages
}

// Initialize reads the agent settings and creates the API client.
//
// Recognized settings: api_key, model, system_prompt, max_tokens and
// temperature.
func (a *Agent) Initialize(ctx context.Context, cfg ports.AgentConfig) error {
	s := llm.Settings(cfg.Settings)

	apiKey := s.String("api_key", a.defaults.APIKey)
	if apiKey == "" {
		return fmt.Errorf("api key is required")
	}

	model := s.String("model", a.defaults.Model)
	if model == "" {
		return fmt.Errorf("model is required")
	}

	maxTokens, err := s.Int("max_tokens", a.defaults.MaxTokens)
	if err != nil {
		return err
	}
	if maxTokens < 1 {
		return fmt.Errorf("max_tokens must be positive, got %d", maxTokens)
	}

	temperature, err := s.Float("temperature", a.defaults.Temperature)
	if err != nil {
		return err
	}
	if temperature < 0 || temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %g", temperature)
	}

	a.name = cfg.Name
	a.description = cfg.Description
	a.outputShape = cfg.OutputShape
	if a.outputShape == "" {
		a.outputShape = "text"
	}
	a.model = anthropic.Model(model)
	a.systemPrompt = s.String("system_prompt", "")
	a.maxTokens = int64(maxTokens)
	a.temperature = temperature

	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	a.logger = a.logger.With(zap.String("agent", a.name))
	a.client = a.newClient(apiKey, a.defaults.RequestTimeout)

	a.logger.Debug("anthropic agent initialized",
		zap.String("model", model),
		zap.Int64("max_tokens", a.maxTokens))

	return nil
}

// Process sends the task description and shared context as a single user
// message and returns the concatenated text of the reply.
func (a *Agent) Process(ctx context.Context, description string, shared domain.SharedContext) (interface{}, error) {
	if a.client == nil {
		return nil, fmt.Errorf("agent %s is not initialized", a.name)
	}
	if a.closed.Load() {
		return nil, fmt.Errorf("agent %s is shut down", a.name)
	}

	prompt, err := llm.BuildPrompt(description, shared)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Temperature: anthropic.Float(a.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if a.systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: a.systemPrompt}}
	}

	if a.slots != nil {
		select {
		case a.slots <- struct{}{}:
			defer func() { <-a.slots }()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	start := time.Now()
	msg, err := a.client.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var content strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	if content.Len() == 0 {
		return nil, fmt.Errorf("anthropic returned no text content (stop reason %q)", msg.StopReason)
	}

	a.logger.Debug("anthropic request completed",
		zap.String("model", string(msg.Model)),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
		zap.Duration("duration", time.Since(start)))

	return Response{
		Content:      content.String(),
		Model:        string(msg.Model),
		StopReason:   string(msg.StopReason),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}, nil
}

// Describe returns the agent descriptor
func (a *Agent) Describe() domain.AgentDescriptor {
	return domain.AgentDescriptor{
		Name:        a.name,
		Kind:        Kind,
		OutputShape: a.outputShape,
		Description: a.description,
	}
}

// Shutdown rejects further requests. A request already in flight keeps
// its client and finishes normally.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.closed.Store(true)
	return nil
}
