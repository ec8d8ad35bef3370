// Package noop provides a MetricsCollector that discards everything.
package noop

import "time"

// Collector discards all metrics.
type Collector struct{}

// NewCollector creates a no-op collector
func NewCollector() *Collector {
	return &Collector{}
}

func (Collector) RecordOrchestration(status string, duration time.Duration)                        {}
func (Collector) RecordCapabilityCall(capability, status, errorCode string, duration time.Duration) {}
func (Collector) RecordGroups(count int)                                                           {}
func (Collector) RecordDependencyAnomaly()                                                         {}
func (Collector) RecordExecutionSubmitted(status string)                                           {}
func (Collector) SetActiveExecutions(count int)                                                    {}
func (Collector) SetQueueDepth(depth int)                                                          {}
func (Collector) RecordWorkerPoolStatus(idle, busy, stopped int)                                   {}
