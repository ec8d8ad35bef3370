package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	orchestrations       *prometheus.CounterVec
	orchestrationTime    *prometheus.HistogramVec
	capabilityCalls      *prometheus.CounterVec
	capabilityTime       *prometheus.HistogramVec
	groups               prometheus.Histogram
	dependencyAnomalies  prometheus.Counter
	executionsSubmitted  *prometheus.CounterVec
	activeExecutions     prometheus.Gauge
	queueDepth           prometheus.Gauge
	workerPoolIdle       prometheus.Gauge
	workerPoolBusy       prometheus.Gauge
	workerPoolStopped    prometheus.Gauge
}

// NewCollector creates a Prometheus metrics collector registered on reg.
// A nil reg registers on the default registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		orchestrations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capo_orchestrations_total",
				Help: "Total number of orchestrations by outcome",
			},
			[]string{"status"},
		),
		orchestrationTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "capo_orchestration_duration_seconds",
				Help:    "Orchestration duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"status"},
		),
		capabilityCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capo_capability_calls_total",
				Help: "Total number of capability calls",
			},
			[]string{"capability", "status", "error_code"},
		),
		capabilityTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "capo_capability_duration_seconds",
				Help:    "Capability call duration in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"capability"},
		),
		groups: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "capo_execution_groups",
				Help:    "Number of execution groups per orchestration",
				Buckets: []float64{1, 2, 3, 4, 5, 8, 13, 21},
			},
		),
		dependencyAnomalies: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "capo_dependency_anomalies_total",
				Help: "Total number of plans with unsatisfiable dependencies",
			},
		),
		executionsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capo_executions_submitted_total",
				Help: "Total number of asynchronous executions submitted",
			},
			[]string{"status"},
		),
		activeExecutions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "capo_active_executions",
				Help: "Number of currently active executions",
			},
		),
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "capo_queue_depth",
				Help: "Current depth of the execution queue",
			},
		),
		workerPoolIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "capo_worker_pool_idle",
				Help: "Number of idle workers",
			},
		),
		workerPoolBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "capo_worker_pool_busy",
				Help: "Number of busy workers",
			},
		),
		workerPoolStopped: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "capo_worker_pool_stopped",
				Help: "Number of stopped workers",
			},
		),
	}
}

// RecordOrchestration records a finished orchestration
func (c *Collector) RecordOrchestration(status string, duration time.Duration) {
	c.orchestrations.WithLabelValues(status).Inc()
	c.orchestrationTime.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordCapabilityCall records a single capability invocation
func (c *Collector) RecordCapabilityCall(capability, status, errorCode string, duration time.Duration) {
	c.capabilityCalls.WithLabelValues(capability, status, errorCode).Inc()
	c.capabilityTime.WithLabelValues(capability).Observe(duration.Seconds())
}

// RecordGroups records how many execution groups a plan produced
func (c *Collector) RecordGroups(count int) {
	c.groups.Observe(float64(count))
}

// RecordDependencyAnomaly counts a plan whose dependencies could not all be met
func (c *Collector) RecordDependencyAnomaly() {
	c.dependencyAnomalies.Inc()
}

// RecordExecutionSubmitted records an asynchronous submission
func (c *Collector) RecordExecutionSubmitted(status string) {
	c.executionsSubmitted.WithLabelValues(status).Inc()
}

// SetActiveExecutions sets the number of currently active executions
func (c *Collector) SetActiveExecutions(count int) {
	c.activeExecutions.Set(float64(count))
}

// SetQueueDepth sets the current depth of the execution queue
func (c *Collector) SetQueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}

// RecordWorkerPoolStatus records worker pool status
func (c *Collector) RecordWorkerPoolStatus(idle, busy, stopped int) {
	c.workerPoolIdle.Set(float64(idle))
	c.workerPoolBusy.Set(float64(busy))
	c.workerPoolStopped.Set(float64(stopped))
}
