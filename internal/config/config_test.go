package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.GetHTTPAddr())
	assert.Equal(t, ":9090", cfg.GetGRPCAddr())
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, 5, cfg.Workers.PoolSize)
	assert.Equal(t, 4, cfg.Execution.MaxConcurrency)
	assert.Equal(t, 300*time.Second, cfg.Execution.TaskTimeout)
	assert.Equal(t, time.Hour, cfg.Execution.RunTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Storage.ReportTTL)
	assert.Equal(t, ProviderAnthropic, cfg.LLM.Provider)
	assert.Equal(t, "http://localhost:1234/v1", cfg.LocalLLM.BaseURL)
	assert.Equal(t, 2048, cfg.LocalLLM.MaxTokens)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("DAGENT_HTTP_PORT", "8181")
	t.Setenv("DAGENT_BACKEND", "redis")
	t.Setenv("EXEC_MAX_CONCURRENCY", "0")
	t.Setenv("EXEC_TASK_TIMEOUT", "45s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("LOCAL_LLM_BASE_URL", "http://127.0.0.1:11434/v1")
	t.Setenv("LOCAL_LLM_MODEL", "qwen2.5-coder")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.HTTPPort)
	assert.Equal(t, BackendRedis, cfg.Backend)
	assert.Equal(t, 0, cfg.Execution.MaxConcurrency)
	assert.Equal(t, 45*time.Second, cfg.Execution.TaskTimeout)
	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "http://127.0.0.1:11434/v1", cfg.LocalLLM.BaseURL)
	assert.Equal(t, "qwen2.5-coder", cfg.LocalLLM.Model)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad http port", func(c *Config) { c.HTTPPort = 0 }},
		{"bad grpc port", func(c *Config) { c.GRPCPort = 70000 }},
		{"unknown backend", func(c *Config) { c.Backend = "etcd" }},
		{"redis without address", func(c *Config) { c.Backend = BackendRedis; c.Redis.Addr = "" }},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "cohere" }},
		{"local temperature out of range", func(c *Config) { c.LocalLLM.Temperature = 2.5 }},
		{"empty pool", func(c *Config) { c.Workers.PoolSize = 0 }},
		{"negative concurrency", func(c *Config) { c.Execution.MaxConcurrency = -1 }},
		{"negative timeout", func(c *Config) { c.Execution.TaskTimeout = -time.Second }},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadAgents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`agents:
  - name: api_expert
    kind: anthropic
    description: answers API questions
    output_shape: APIResponse
    settings:
      system_prompt: You are an API expert.
      max_tokens: 2048
  - name: scribe
    kind: echo
`), 0o600))

	specs, err := LoadAgents(path)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "api_expert", specs[0].Name)
	assert.Equal(t, "anthropic", specs[0].Kind)
	assert.Equal(t, "APIResponse", specs[0].OutputShape)
	assert.Equal(t, 2048, specs[0].Settings["max_tokens"])
	assert.Equal(t, "echo", specs[1].Kind)
}

func TestLoadAgents_Errors(t *testing.T) {
	_, err := LoadAgents(filepath.Join(t.TempDir(), "none.yaml"))
	assert.ErrorIs(t, err, fs.ErrNotExist)

	write := func(content string) string {
		path := filepath.Join(t.TempDir(), "agents.yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		return path
	}

	_, err = LoadAgents(write("agents:\n  - kind: echo\n"))
	assert.ErrorContains(t, err, "name is required")

	_, err = LoadAgents(write("agents:\n  - name: a\n"))
	assert.ErrorContains(t, err, "kind is required")

	_, err = LoadAgents(write("agents:\n  - {name: a, kind: echo}\n  - {name: a, kind: echo}\n"))
	assert.ErrorContains(t, err, "twice")

	specs, err := LoadAgents(write(""))
	require.NoError(t, err)
	assert.Empty(t, specs)
}
