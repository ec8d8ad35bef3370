package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aescanero/capo/pkg/domain"
)

// Capability is a named, versioned unit of work.
//
// Expected domain failures should be returned as a result with IsSuccess
// false. A returned error (or a panic) is treated as an execution fault.
type Capability interface {
	Execute(ctx context.Context, tenantID int, parameters json.RawMessage) (*domain.CapabilityResult, error)
}

// CapabilityFunc adapts a function to Capability.
type CapabilityFunc func(ctx context.Context, tenantID int, parameters json.RawMessage) (*domain.CapabilityResult, error)

// Execute calls f.
func (f CapabilityFunc) Execute(ctx context.Context, tenantID int, parameters json.RawMessage) (*domain.CapabilityResult, error) {
	return f(ctx, tenantID, parameters)
}

// CapabilityResolver resolves a capability by name and version. An empty
// version resolves the latest one. The returned string is the version that
// was resolved. Implementations must be safe for concurrent reads.
type CapabilityResolver interface {
	Resolve(name, version string) (Capability, string, bool)
}

// EventHandler handles a published event.
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus publishes lifecycle events to subscribers.
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	// Subscribe registers handler until ctx is done or the bus is closed.
	// Each call is an independent subscription.
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}

// ExecutionStorage persists execution records.
type ExecutionStorage interface {
	SaveExecution(ctx context.Context, record *domain.ExecutionRecord) error
	// GetExecution returns domain.ErrExecutionNotFound for unknown ids.
	GetExecution(ctx context.Context, executionID string) (*domain.ExecutionRecord, error)
	DeleteExecution(ctx context.Context, executionID string) error
	ListExecutions(ctx context.Context) ([]*domain.ExecutionRecord, error)
}

// MetricsCollector records engine metrics.
type MetricsCollector interface {
	RecordOrchestration(status string, duration time.Duration)
	RecordCapabilityCall(capability, status, errorCode string, duration time.Duration)
	RecordGroups(count int)
	RecordDependencyAnomaly()
	RecordExecutionSubmitted(status string)
	SetActiveExecutions(count int)
	SetQueueDepth(depth int)
	RecordWorkerPoolStatus(idle, busy, stopped int)
}
