package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/aescanero/capo/pkg/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SubmitResponse represents an asynchronous submission response
type SubmitResponse struct {
	ExecutionID string    `json:"execution_id"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// StatusResponse summarises an execution without its plan or result
type StatusResponse struct {
	ExecutionID string                 `json:"execution_id"`
	TenantID    int                    `json:"tenant_id"`
	Status      domain.ExecutionStatus `json:"status"`
	Error       string                 `json:"error,omitempty"`
	SubmittedAt time.Time              `json:"submitted_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// ResultResponse carries the result of a terminal execution
type ResultResponse struct {
	ExecutionID string                      `json:"execution_id"`
	Status      domain.ExecutionStatus      `json:"status"`
	Result      *domain.OrchestrationResult `json:"result"`
	Error       string                      `json:"error,omitempty"`
	CompletedAt *time.Time                  `json:"completed_at,omitempty"`
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

func abortWithError(c *gin.Context, status int, code, message string, details interface{}) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// respondServiceError maps a service error to a status and code
func (s *Server) respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidPlan):
		abortWithError(c, http.StatusBadRequest, "INVALID_PLAN", err.Error(), nil)
	case errors.Is(err, domain.ErrExecutionNotFound):
		abortWithError(c, http.StatusNotFound, "NOT_FOUND", "Execution not found", nil)
	case errors.Is(err, domain.ErrTerminalState):
		abortWithError(c, http.StatusConflict, "ALREADY_TERMINAL", err.Error(), nil)
	case errors.Is(err, domain.ErrPoolFull):
		abortWithError(c, http.StatusServiceUnavailable, "QUEUE_FULL", "Execution queue is full", nil)
	case errors.Is(err, domain.ErrPoolStopped):
		abortWithError(c, http.StatusServiceUnavailable, "SHUTTING_DOWN", "Service is shutting down", nil)
	default:
		s.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
	}
}

func (s *Server) bindPlan(c *gin.Context) (*domain.QueryPlan, bool) {
	var plan domain.QueryPlan
	if err := c.ShouldBindJSON(&plan); err != nil {
		s.logger.Debug("invalid request", zap.Error(err))
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return nil, false
	}
	return &plan, true
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	checks := gin.H{}
	healthy := true

	if s.health != nil {
		status := s.health.GetStatus()
		checks["workers"] = status
		healthy = status.Healthy
	}

	code := http.StatusOK
	label := "healthy"
	if !healthy {
		code = http.StatusServiceUnavailable
		label = "unhealthy"
	}

	c.JSON(code, gin.H{
		"status":    label,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}

// handleListCapabilities lists registered capabilities
func (s *Server) handleListCapabilities(c *gin.Context) {
	capabilities := []domain.CapabilityDescriptor{}
	if s.capabilities != nil {
		capabilities = append(capabilities, s.capabilities.List()...)
	}

	c.JSON(http.StatusOK, gin.H{
		"capabilities": capabilities,
		"total":        len(capabilities),
	})
}

// handleExecute runs a plan synchronously. Partial failure is still a 200:
// the outcome is in the body.
func (s *Server) handleExecute(c *gin.Context) {
	plan, ok := s.bindPlan(c)
	if !ok {
		return
	}

	result, err := s.service.Execute(c.Request.Context(), tenantFrom(c), plan)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleSubmit queues a plan for asynchronous execution
func (s *Server) handleSubmit(c *gin.Context) {
	plan, ok := s.bindPlan(c)
	if !ok {
		return
	}

	executionID, err := s.service.SubmitPlan(c.Request.Context(), tenantFrom(c), plan)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, SubmitResponse{
		ExecutionID: executionID,
		Status:      string(domain.ExecutionStatusSubmitted),
		SubmittedAt: time.Now().UTC(),
	})
}

// handleListExecutions lists executions, optionally filtered by ?status=
func (s *Server) handleListExecutions(c *gin.Context) {
	records, err := s.service.ListExecutions(c.Request.Context())
	if err != nil {
		s.respondServiceError(c, err)
		return
	}

	filter := domain.ExecutionStatus(c.Query("status"))
	executions := make([]StatusResponse, 0, len(records))
	for _, record := range records {
		if filter != "" && record.Status != filter {
			continue
		}
		executions = append(executions, toStatusResponse(record))
	}

	c.JSON(http.StatusOK, gin.H{
		"executions": executions,
		"total":      len(executions),
	})
}

// handleGetExecution returns the full execution record
func (s *Server) handleGetExecution(c *gin.Context) {
	record, err := s.service.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// handleGetStatus returns the lifecycle state of an execution
func (s *Server) handleGetStatus(c *gin.Context) {
	record, err := s.service.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, toStatusResponse(record))
}

// handleGetResult returns the result once the execution is terminal
func (s *Server) handleGetResult(c *gin.Context) {
	record, err := s.service.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondServiceError(c, err)
		return
	}

	if !record.Status.IsTerminal() {
		abortWithError(c, http.StatusConflict, "NOT_COMPLETED", "Execution not yet completed", gin.H{
			"status": record.Status,
		})
		return
	}

	c.JSON(http.StatusOK, ResultResponse{
		ExecutionID: record.ExecutionID,
		Status:      record.Status,
		Result:      record.Result,
		Error:       record.Error,
		CompletedAt: record.CompletedAt,
	})
}

// handleCancel requests cancellation of a queued or running execution
func (s *Server) handleCancel(c *gin.Context) {
	executionID := c.Param("id")

	if err := s.service.CancelExecution(c.Request.Context(), executionID); err != nil {
		s.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"execution_id": executionID,
		"status":       "cancelling",
	})
}

func toStatusResponse(record *domain.ExecutionRecord) StatusResponse {
	return StatusResponse{
		ExecutionID: record.ExecutionID,
		TenantID:    record.TenantID,
		Status:      record.Status,
		Error:       record.Error,
		SubmittedAt: record.SubmittedAt,
		StartedAt:   record.StartedAt,
		CompletedAt: record.CompletedAt,
	}
}
