package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aescanero/dagent/internal/application/orchestrator"
	"github.com/aescanero/dagent/internal/application/registry"
	"github.com/aescanero/dagent/internal/application/workers"
	"github.com/aescanero/dagent/pkg/adapters/agents"
	eventsmemory "github.com/aescanero/dagent/pkg/adapters/events/memory"
	"github.com/aescanero/dagent/pkg/adapters/storage/memory"
	"github.com/aescanero/dagent/pkg/domain"
	"github.com/aescanero/dagent/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, specs ...ports.AgentConfig) (*Server, *orchestrator.Manager) {
	t.Helper()
	logger := zap.NewNop()
	ctx := context.Background()

	reg := registry.New(nil, logger)
	_ = reg.InitializeFromSpecs(ctx, specs, agents.NewCatalog())

	bus := eventsmemory.NewInMemoryEventBus(logger)
	manager := orchestrator.NewManager(reg, nil, bus, memory.NewReportStorage(), nil, logger, orchestrator.ExecutionConfig{})
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = manager.Shutdown(shutdownCtx)
		_ = reg.Shutdown(shutdownCtx)
		_ = bus.Close()
	})

	return NewServer(&Config{Manager: manager, Registry: reg, Logger: logger}), manager
}

func echo(name string, settings map[string]interface{}) ports.AgentConfig {
	return ports.AgentConfig{Name: name, Kind: agents.EchoKind, Settings: settings}
}

func do(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func diamond() *domain.Plan {
	return &domain.Plan{
		TaskType: "research",
		Tasks: []domain.Task{
			{ID: "search", AgentName: "researcher", Description: "find sources"},
			{ID: "left", AgentName: "writer", Description: "draft", Dependencies: []string{"search"}},
			{ID: "right", AgentName: "researcher", Description: "check", Dependencies: []string{"search"}},
			{ID: "join", AgentName: "writer", Description: "merge", Dependencies: []string{"left", "right"}},
		},
	}
}

func TestServer_Health(t *testing.T) {
	s, _ := newTestServer(t, echo("researcher", nil))
	rec := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	empty, _ := newTestServer(t)
	rec = do(t, empty, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_HealthReportsWorkers(t *testing.T) {
	s, _ := newTestServer(t, echo("researcher", nil))

	pool := workers.NewPool(2, nil, zap.NewNop(), 10*time.Millisecond)
	require.NoError(t, pool.Start())
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })
	s.pool = pool

	require.Eventually(t, func() bool { return pool.Health().Last() != nil }, 2*time.Second, 5*time.Millisecond)

	rec := do(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Checks struct {
			Workers workers.HealthStatus `json:"workers"`
		} `json:"checks"`
	}
	decode(t, rec, &body)
	assert.Equal(t, 2, body.Checks.Workers.TotalWorkers)
	assert.True(t, body.Checks.Workers.Healthy)
	assert.False(t, body.Checks.Workers.Timestamp.IsZero())
}

func TestServer_DeleteRun(t *testing.T) {
	s, manager := newTestServer(t, echo("researcher", nil), echo("writer", nil),
		echo("slow", map[string]interface{}{"delay": "1m"}))

	rec := do(t, s, http.MethodPost, "/api/v1/runs", RunSubmitRequest{Plan: diamond(), Wait: true})
	require.Equal(t, http.StatusOK, rec.Code)
	var report domain.ExecutionReport
	decode(t, rec, &report)

	rec = do(t, s, http.MethodDelete, "/api/v1/runs/"+report.RunID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, s, http.MethodGet, "/api/v1/runs/"+report.RunID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, s, http.MethodDelete, "/api/v1/runs/"+report.RunID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/runs", RunSubmitRequest{Plan: &domain.Plan{
		Tasks: []domain.Task{{ID: "wait", AgentName: "slow"}},
	}})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp RunSubmitResponse
	decode(t, rec, &resp)

	rec = do(t, s, http.MethodDelete, "/api/v1/runs/"+resp.RunID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NoError(t, manager.Cancel(context.Background(), resp.RunID))
}

func TestServer_SubmitAndWait(t *testing.T) {
	s, _ := newTestServer(t, echo("researcher", nil), echo("writer", nil))

	rec := do(t, s, http.MethodPost, "/api/v1/runs", RunSubmitRequest{
		Plan:    diamond(),
		Context: domain.SharedContext{"topic": "go"},
		Wait:    true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report domain.ExecutionReport
	decode(t, rec, &report)
	assert.Equal(t, domain.PlanStatusAllCompleted, report.Status)
	assert.Equal(t, []string{"search", "left", "right", "join"}, report.Order)
	assert.Equal(t, 4, report.Counts[domain.TaskStateCompleted])

	rec = do(t, s, http.MethodGet, "/api/v1/runs/"+report.RunID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/runs/"+report.RunID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_SubmitAsync(t *testing.T) {
	s, manager := newTestServer(t, echo("researcher", nil), echo("writer", nil))

	rec := do(t, s, http.MethodPost, "/api/v1/runs", RunSubmitRequest{Plan: diamond()})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp RunSubmitResponse
	decode(t, rec, &resp)
	require.NotEmpty(t, resp.RunID)

	report, err := manager.Wait(context.Background(), resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanStatusAllCompleted, report.Status)

	rec = do(t, s, http.MethodGet, "/api/v1/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Runs  []string `json:"runs"`
		Total int      `json:"total"`
	}
	decode(t, rec, &list)
	assert.Equal(t, []string{resp.RunID}, list.Runs)
}

func TestServer_CancelRunning(t *testing.T) {
	s, manager := newTestServer(t, echo("slow", map[string]interface{}{"delay": "1m"}))

	rec := do(t, s, http.MethodPost, "/api/v1/runs", RunSubmitRequest{Plan: &domain.Plan{
		Tasks: []domain.Task{
			{ID: "first", AgentName: "slow"},
			{ID: "second", AgentName: "slow", Dependencies: []string{"first"}},
		},
	}})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp RunSubmitResponse
	decode(t, rec, &resp)

	rec = do(t, s, http.MethodPost, "/api/v1/runs/"+resp.RunID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	report, err := manager.Wait(ctx, resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanStatusPartiallyCompleted, report.Status)
	assert.Equal(t, domain.TaskStateBlocked, report.Outcomes["second"].Status)
}

func TestServer_PlanRejections(t *testing.T) {
	s, _ := newTestServer(t, echo("a", nil))

	tests := []struct {
		name string
		plan *domain.Plan
		code string
	}{
		{
			name: "cycle",
			plan: &domain.Plan{Tasks: []domain.Task{
				{ID: "x", AgentName: "a", Dependencies: []string{"y"}},
				{ID: "y", AgentName: "a", Dependencies: []string{"x"}},
			}},
			code: "CYCLE_DETECTED",
		},
		{
			name: "unknown dependency",
			plan: &domain.Plan{Tasks: []domain.Task{
				{ID: "x", AgentName: "a", Dependencies: []string{"ghost"}},
			}},
			code: "UNKNOWN_DEPENDENCY",
		},
		{
			name: "missing agent",
			plan: &domain.Plan{Tasks: []domain.Task{{ID: "x"}}},
			code: "INVALID_PLAN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, wait := range []bool{true, false} {
				rec := do(t, s, http.MethodPost, "/api/v1/runs", RunSubmitRequest{Plan: tt.plan, Wait: wait})
				require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

				var resp ErrorResponse
				decode(t, rec, &resp)
				assert.Equal(t, tt.code, resp.Error.Code)
			}
		})
	}
}

func TestServer_BadRequests(t *testing.T) {
	s, _ := newTestServer(t, echo("a", nil))

	rec := do(t, s, http.MethodPost, "/api/v1/runs", map[string]interface{}{"context": map[string]interface{}{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/runs/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Agents(t *testing.T) {
	s, _ := newTestServer(t,
		ports.AgentConfig{Name: "researcher", Kind: agents.EchoKind, Description: "finds things", OutputShape: "Findings"},
		ports.AgentConfig{Name: "broken", Kind: "nonexistent"},
	)

	rec := do(t, s, http.MethodGet, "/api/v1/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Agents   []domain.AgentDescriptor `json:"agents"`
		Failures map[string]string        `json:"failures"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Agents, 1)
	assert.Equal(t, "researcher", list.Agents[0].Name)
	assert.Equal(t, "Findings", list.Agents[0].OutputShape)
	assert.Contains(t, list.Failures, "broken")

	rec = do(t, s, http.MethodGet, "/api/v1/agents/researcher", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var desc domain.AgentDescriptor
	decode(t, rec, &desc)
	assert.Equal(t, agents.EchoKind, desc.Kind)

	rec = do(t, s, http.MethodGet, "/api/v1/agents/broken", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
