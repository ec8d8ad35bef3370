package domain

import "time"

// EventsTopic carries every orchestration lifecycle event.
const EventsTopic = "orchestration.events"

// EventType identifies a lifecycle event.
type EventType string

const (
	EventTypeOrchestrationSubmitted EventType = "orchestration.submitted"
	EventTypeOrchestrationStarted   EventType = "orchestration.started"
	EventTypeGroupCompleted         EventType = "group.completed"
	EventTypeOrchestrationCompleted EventType = "orchestration.completed"
	EventTypeOrchestrationFailed    EventType = "orchestration.failed"
	EventTypeOrchestrationCancelled EventType = "orchestration.cancelled"
)

// IsTerminal reports whether the event closes an execution.
func (t EventType) IsTerminal() bool {
	switch t {
	case EventTypeOrchestrationCompleted, EventTypeOrchestrationFailed, EventTypeOrchestrationCancelled:
		return true
	}
	return false
}

// Event is published on the event bus.
type Event struct {
	ID          string                 `json:"id"`
	Type        EventType              `json:"type"`
	ExecutionID string                 `json:"execution_id"`
	Timestamp   time.Time              `json:"timestamp"`
	Data        map[string]interface{} `json:"data,omitempty"`
}
