package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Backends for report storage and the event bus
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// LLM providers. The provider picks the agent kind behind "llm".
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Config holds all configuration for the dagent service
type Config struct {
	// Server configuration
	HTTPPort int    `env:"DAGENT_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"DAGENT_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Backend selects report storage and event bus: memory or redis
	Backend string `env:"DAGENT_BACKEND" envDefault:"memory"`

	// AgentsFile is the YAML file declaring the agents to register
	AgentsFile string `env:"DAGENT_AGENTS_FILE" envDefault:"agents.yaml"`

	// Redis configuration
	Redis RedisConfig

	// LLM configuration
	LLM LLMConfig

	// OpenAI-compatible local endpoint
	LocalLLM LocalLLMConfig

	// Worker configuration
	Workers WorkerConfig

	// Execution limits
	Execution ExecutionConfig

	// Report storage
	Storage StorageConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`

	// Event stream consumer settings
	ConsumerGroup string `env:"REDIS_CONSUMER_GROUP" envDefault:"dagent"`
	ConsumerName  string `env:"REDIS_CONSUMER_NAME"`
}

// LLMConfig holds defaults for LLM-backed agents
type LLMConfig struct {
	Provider string `env:"LLM_PROVIDER" envDefault:"anthropic"`
	APIKey   string `env:"LLM_API_KEY"`

	// Rate limiting
	MaxConcurrentRequests int           `env:"LLM_MAX_CONCURRENT_REQUESTS" envDefault:"10"`
	RequestTimeout        time.Duration `env:"LLM_REQUEST_TIMEOUT" envDefault:"120s"`

	// Default model settings
	DefaultModel       string  `env:"LLM_DEFAULT_MODEL" envDefault:"claude-sonnet-4-5"`
	DefaultTemperature float64 `env:"LLM_DEFAULT_TEMPERATURE" envDefault:"0.7"`
	DefaultMaxTokens   int     `env:"LLM_DEFAULT_MAX_TOKENS" envDefault:"4096"`
}

// LocalLLMConfig holds defaults for agents on an OpenAI-compatible chat
// completions endpoint, typically a local model server
type LocalLLMConfig struct {
	BaseURL        string        `env:"LOCAL_LLM_BASE_URL" envDefault:"http://localhost:1234/v1"`
	APIKey         string        `env:"LOCAL_LLM_API_KEY"`
	Model          string        `env:"LOCAL_LLM_MODEL" envDefault:"local-model"`
	Temperature    float64       `env:"LOCAL_LLM_TEMPERATURE" envDefault:"0.7"`
	MaxTokens      int           `env:"LOCAL_LLM_MAX_TOKENS" envDefault:"2048"`
	RequestTimeout time.Duration `env:"LOCAL_LLM_REQUEST_TIMEOUT" envDefault:"120s"`
}

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	PoolSize            int           `env:"WORKER_POOL_SIZE" envDefault:"5"`
	HealthCheckInterval time.Duration `env:"WORKER_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// ExecutionConfig holds the limits applied to every run
type ExecutionConfig struct {
	// MaxConcurrency bounds running tasks per run; 0 means unbounded
	MaxConcurrency int           `env:"EXEC_MAX_CONCURRENCY" envDefault:"4"`
	TaskTimeout    time.Duration `env:"EXEC_TASK_TIMEOUT" envDefault:"300s"`
	RunTimeout     time.Duration `env:"EXEC_RUN_TIMEOUT" envDefault:"3600s"`
}

// StorageConfig holds report storage configuration
type StorageConfig struct {
	ReportTTL time.Duration `env:"STORAGE_REPORT_TTL" envDefault:"24h"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	ShutdownTimeout time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	// Validate backend
	switch c.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is required for the redis backend")
		}
	default:
		return fmt.Errorf("unsupported backend: %s (must be memory or redis)", c.Backend)
	}

	// Validate LLM config. The API key is checked per agent, since plans
	// may only use agents that need none.
	switch c.LLM.Provider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("unsupported LLM provider: %s (must be anthropic or openai)", c.LLM.Provider)
	}
	if c.LLM.DefaultTemperature < 0 || c.LLM.DefaultTemperature > 1 {
		return fmt.Errorf("LLM default temperature must be between 0 and 1")
	}
	if c.LocalLLM.Temperature < 0 || c.LocalLLM.Temperature > 2 {
		return fmt.Errorf("local LLM temperature must be between 0 and 2")
	}

	// Validate worker config
	if c.Workers.PoolSize < 1 {
		return fmt.Errorf("worker pool size must be at least 1")
	}

	// Validate execution limits
	if c.Execution.MaxConcurrency < 0 {
		return fmt.Errorf("max concurrency cannot be negative")
	}
	if c.Execution.TaskTimeout < 0 || c.Execution.RunTimeout < 0 {
		return fmt.Errorf("execution timeouts cannot be negative")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
