// Package openai provides an agent for OpenAI-compatible chat completions
// endpoints. Pointed at a local server (LM Studio, Ollama, vLLM) it runs the
// specialist agents without a hosted provider.
package openai

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aescanero/dagent/pkg/adapters/llm"
	"github.com/aescanero/dagent/pkg/domain"
	"github.com/aescanero/dagent/pkg/ports"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// Kind is the agent kind name used in agent declarations
const Kind = "openai"

// Defaults are applied to every agent whose settings leave a value unset
type Defaults struct {
	// BaseURL is the API root, e.g. http://localhost:1234/v1
	BaseURL        string
	APIKey         string
	Model          string
	Temperature    float64
	MaxTokens      int
	RequestTimeout time.Duration

	// MaxConcurrentRequests bounds in-flight requests across all agents
	// created by one factory. Zero means unbounded.
	MaxConcurrentRequests int
}

// completionClient is the subset of the SDK used by the agent
type completionClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Response is the payload of a completed task
type Response struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
}

// Agent implements ports.Agent on top of the chat completions API
type Agent struct {
	defaults  Defaults
	logger    *zap.Logger
	newClient func(baseURL, apiKey string, timeout time.Duration) completionClient
	slots     chan struct{}
	closed    atomic.Bool

	client       completionClient
	name         string
	description  string
	outputShape  string
	baseURL      string
	model        string
	systemPrompt string
	maxTokens    int64
	temperature  float64
}

// NewFactory returns a factory for chat completions agents sharing defaults
// and a request limit
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

func newSDKClient(baseURL, apiKey string, timeout time.Duration) completionClient {
	opts := []option.RequestOption{option.WithBaseURL(baseURL)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	client := openai.NewClient(opts...)
	return &client.Chat.Completions
}

// Initialize reads the agent settings and creates the API client.
//
// Recognized settings: base_url, api_key, model, system_prompt, max_tokens
// and temperature. Local servers usually need no api key.
func (a *Agent) Initialize(ctx context.Context, cfg ports.AgentConfig) error {
	s := llm.Settings(cfg.Settings)

	baseURL := s.String("base_url", a.defaults.BaseURL)
	if baseURL == "" {
		return fmt.Errorf("base url is required")
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
	if temperature < 0 || temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %g", temperature)
	}

	a.name = cfg.Name
	a.description = cfg.Description
	a.outputShape = cfg.OutputShape
	if a.outputShape == "" {
		a.outputShape = "text"
	}
	a.baseURL = baseURL
	a.model = model
	a.systemPrompt = s.String("system_prompt", "")
	a.maxTokens = int64(maxTokens)
	a.temperature = temperature

	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	a.logger = a.logger.With(zap.String("agent", a.name))
	a.client = a.newClient(baseURL, s.String("api_key", a.defaults.APIKey), a.defaults.RequestTimeout)

	a.logger.Debug("openai agent initialized",
		zap.String("base_url", baseURL),
		zap.String("model", model),
		zap.Int64("max_tokens", a.maxTokens))

	return nil
}

// Process sends the task description and shared context as a single user
// message and returns the content of the first choice.
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

	var messages []openai.ChatCompletionMessageParamUnion
	if a.systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(a.systemPrompt))
	}
	messages = append(messages, openai.UserMessage(prompt))

	// max_tokens rather than max_completion_tokens: local servers only
	// understand the former
	params := openai.ChatCompletionNewParams{
		Model:       a.model,
		Messages:    messages,
		MaxTokens:   openai.Int(a.maxTokens),
		Temperature: openai.Float(a.temperature),
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
	resp, err := a.client.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	choice := resp.Choices[0]
	if choice.Message.Content == "" {
		return nil, fmt.Errorf("openai returned no content (finish reason %q)", choice.FinishReason)
	}

	a.logger.Debug("openai request completed",
		zap.String("model", resp.Model),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("duration", time.Since(start)))

	return Response{
		Content:          choice.Message.Content,
		Model:            resp.Model,
		FinishReason:     choice.FinishReason,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
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

// Shutdown rejects further requests; one already in flight finishes
func (a *Agent) Shutdown(ctx context.Context) error {
	a.closed.Store(true)
	return nil
}
