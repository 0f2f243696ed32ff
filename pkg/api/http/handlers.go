package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/aescanero/dagent/internal/application/orchestrator"
	"github.com/aescanero/dagent/pkg/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RunSubmitRequest represents a plan submission request
type RunSubmitRequest struct {
	Plan    *domain.Plan         `json:"plan" binding:"required"`
	Context domain.SharedContext `json:"context"`
	// Wait runs the plan to completion and returns the report
	Wait bool `json:"wait"`
}

// RunSubmitResponse represents a plan submission response
type RunSubmitResponse struct {
	RunID       string    `json:"run_id"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func errorJSON(c *gin.Context, status int, code, message string, details interface{}) {
	c.JSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// planErrorCode maps a plan rejection to its API error code
func planErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrCycleDetected):
		return "CYCLE_DETECTED"
	case errors.Is(err, domain.ErrUnknownDependency):
		return "UNKNOWN_DEPENDENCY"
	default:
		return "INVALID_PLAN"
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	agents := s.registry.Len()
	checks := gin.H{
		"agents":      agents,
		"active_runs": s.manager.ActiveRuns(),
	}

	healthy := agents > 0
	if s.pool != nil {
		// the latest periodic sample, so saturation streaks show up
		pool := s.pool.Health().Last()
		if pool == nil {
			pool = s.pool.Health().GetStatus()
		}
		checks["workers"] = pool
		healthy = healthy && pool.Healthy
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}

// handleSubmitRun handles plan submission
func (s *Server) handleSubmitRun(c *gin.Context) {
	var req RunSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Error("invalid request", zap.Error(err))
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	if req.Wait {
		report, err := s.manager.Execute(c.Request.Context(), req.Plan, req.Context)
		if err != nil {
			s.submitError(c, err, report)
			return
		}
		c.JSON(http.StatusOK, report)
		return
	}

	runID, err := s.manager.Submit(c.Request.Context(), req.Plan, req.Context)
	if err != nil {
		s.submitError(c, err, gin.H{"run_id": runID})
		return
	}

	c.JSON(http.StatusAccepted, RunSubmitResponse{
		RunID:       runID,
		Status:      "submitted",
		SubmittedAt: time.Now().UTC(),
	})
}

func (s *Server) submitError(c *gin.Context, err error, details interface{}) {
	if errors.Is(err, orchestrator.ErrManagerClosed) {
		errorJSON(c, http.StatusServiceUnavailable, "SHUTTING_DOWN", err.Error(), nil)
		return
	}
	if errors.Is(err, domain.ErrInvalidPlan) || errors.Is(err, domain.ErrUnknownDependency) || errors.Is(err, domain.ErrCycleDetected) {
		errorJSON(c, http.StatusUnprocessableEntity, planErrorCode(err), err.Error(), details)
		return
	}

	s.logger.Error("failed to submit plan", zap.Error(err))
	errorJSON(c, http.StatusInternalServerError, "SUBMISSION_FAILED", err.Error(), nil)
}

// handleListRuns handles listing runs
func (s *Server) handleListRuns(c *gin.Context) {
	runs, err := s.manager.ListRuns(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list runs", zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to list runs", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":   runs,
		"total":  len(runs),
		"active": s.manager.ActiveRuns(),
	})
}

// handleGetRun returns the live or final report of a run
func (s *Server) handleGetRun(c *gin.Context) {
	runID := c.Param("id")

	report, err := s.manager.GetReport(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, orchestrator.ErrRunNotFound) {
			errorJSON(c, http.StatusNotFound, "NOT_FOUND", "Run not found", nil)
			return
		}
		s.logger.Error("failed to get report", zap.String("run_id", runID), zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to get report", err.Error())
		return
	}

	c.JSON(http.StatusOK, report)
}

// handleCancelRun handles run cancellation
func (s *Server) handleCancelRun(c *gin.Context) {
	runID := c.Param("id")

	if err := s.manager.Cancel(c.Request.Context(), runID); err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrRunNotFound):
			errorJSON(c, http.StatusNotFound, "NOT_FOUND", "Run not found", nil)
		case errors.Is(err, orchestrator.ErrRunFinished):
			errorJSON(c, http.StatusConflict, "RUN_FINISHED", err.Error(), nil)
		default:
			errorJSON(c, http.StatusInternalServerError, "CANCELLATION_FAILED", err.Error(), nil)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":       runID,
		"status":       "cancelled",
		"cancelled_at": time.Now().UTC(),
	})
}

// handleDeleteRun removes the stored report of a finished run
func (s *Server) handleDeleteRun(c *gin.Context) {
	runID := c.Param("id")

	if err := s.manager.DeleteReport(c.Request.Context(), runID); err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrRunNotFound):
			errorJSON(c, http.StatusNotFound, "NOT_FOUND", "Run not found", nil)
		case errors.Is(err, orchestrator.ErrRunActive):
			errorJSON(c, http.StatusConflict, "RUN_ACTIVE", err.Error(), nil)
		default:
			errorJSON(c, http.StatusInternalServerError, "DELETE_FAILED", err.Error(), nil)
		}
		return
	}

	c.Status(http.StatusNoContent)
}

// handleListAgents lists registered agents and those that failed to start
func (s *Server) handleListAgents(c *gin.Context) {
	failures := make(map[string]string)
	for name, err := range s.registry.Failures() {
		failures[name] = err.Error()
	}

	c.JSON(http.StatusOK, gin.H{
		"agents":   s.registry.Descriptors(),
		"failures": failures,
	})
}

// handleGetAgent describes one registered agent
func (s *Server) handleGetAgent(c *gin.Context) {
	name := c.Param("name")

	desc, ok := s.registry.Describe(name)
	if !ok {
		errorJSON(c, http.StatusNotFound, "AGENT_NOT_FOUND", "Agent not found", nil)
		return
	}

	c.JSON(http.StatusOK, desc)
}
