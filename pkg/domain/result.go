package domain

import "encoding/json"

// Error codes synthesized by the orchestrator.
const (
	ErrorCodeCapabilityNotFound = "CAPABILITY_NOT_FOUND"
	ErrorCodeExecutionError     = "CAPABILITY_EXECUTION_ERROR"
)

// CapabilityResult is the outcome of a single call attempt.
type CapabilityResult struct {
	CapabilityName    string          `json:"capability_name"`
	CapabilityVersion string          `json:"capability_version"`
	CallID            string          `json:"call_id,omitempty"`
	IsSuccess         bool            `json:"is_success"`
	Data              json.RawMessage `json:"data,omitempty"`
	ExecutionTimeMs   int64           `json:"execution_time_ms"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	ErrorCode         string          `json:"error_code,omitempty"`
	RecordCount       *int            `json:"record_count,omitempty"`
}

// SuccessResult builds a successful result carrying data.
func SuccessResult(data json.RawMessage, recordCount *int) *CapabilityResult {
	return &CapabilityResult{
		IsSuccess:   true,
		Data:        data,
		RecordCount: recordCount,
	}
}

// FailureResult builds a failed result.
func FailureResult(code, message string) *CapabilityResult {
	return &CapabilityResult{
		IsSuccess:    false,
		ErrorCode:    code,
		ErrorMessage: message,
	}
}

// OrchestrationResult is the terminal aggregate of one orchestration run.
type OrchestrationResult struct {
	Success              bool               `json:"success"`
	Results              []CapabilityResult `json:"results"`
	TotalExecutionTimeMs int64              `json:"total_execution_time_ms"`
	Error                string             `json:"error,omitempty"`
}

// AllSucceeded reports whether every result succeeded.
func (r *OrchestrationResult) AllSucceeded() bool {
	for i := range r.Results {
		if !r.Results[i].IsSuccess {
			return false
		}
	}
	return true
}

// TotalRecords sums the record counts reported by capabilities.
func (r *OrchestrationResult) TotalRecords() int {
	total := 0
	for i := range r.Results {
		if r.Results[i].RecordCount != nil {
			total += *r.Results[i].RecordCount
		}
	}
	return total
}

// MarshalJSON includes the derived fields so API clients see them.
func (r OrchestrationResult) MarshalJSON() ([]byte, error) {
	type alias OrchestrationResult
	results := r.Results
	if results == nil {
		results = []CapabilityResult{}
	}
	return json.Marshal(struct {
		alias
		Results      []CapabilityResult `json:"results"`
		AllSucceeded bool               `json:"all_succeeded"`
		TotalRecords int                `json:"total_records"`
	}{
		alias:        alias(r),
		Results:      results,
		AllSucceeded: r.AllSucceeded(),
		TotalRecords: r.TotalRecords(),
	})
}

// CapabilityDescriptor describes a registered capability version.
type CapabilityDescriptor struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Active      bool   `json:"active"`
	Description string `json:"description,omitempty"`
}
