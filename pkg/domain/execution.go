package domain

import "time"

// ExecutionStatus is the lifecycle status of a submitted plan.
type ExecutionStatus string

const (
	ExecutionStatusSubmitted ExecutionStatus = "submitted"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	}
	return false
}

// ExecutionRecord tracks an asynchronously executed plan.
type ExecutionRecord struct {
	ExecutionID string               `json:"execution_id"`
	TenantID    int                  `json:"tenant_id"`
	Plan        *QueryPlan           `json:"plan"`
	Status      ExecutionStatus      `json:"status"`
	Result      *OrchestrationResult `json:"result,omitempty"`
	Error       string               `json:"error,omitempty"`
	SubmittedAt time.Time            `json:"submitted_at"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
}
