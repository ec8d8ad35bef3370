package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aescanero/capo/pkg/adapters/metrics/noop"
	"github.com/aescanero/capo/pkg/domain"
	"github.com/aescanero/capo/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobSubmitter queues work for asynchronous execution.
type JobSubmitter interface {
	Submit(ctx context.Context, jobID string, fn func(ctx context.Context)) error
}

// Manager coordinates asynchronous plan execution
type Manager struct {
	orchestrator *Orchestrator
	jobs         JobSubmitter
	eventBus     ports.EventBus
	storage      ports.ExecutionStorage
	metrics      ports.MetricsCollector
	validator    *Validator
	logger       *zap.Logger

	// Track active executions
	executions sync.Map // map[string]*executionContext
	active     atomic.Int64

	// Zero means no timeout
	executionTimeout time.Duration
}

// executionContext holds state for a single tracked execution
type executionContext struct {
	executionID string
	cancelFunc  context.CancelFunc

	mu     sync.Mutex
	record *domain.ExecutionRecord
}

// NewManager creates a new orchestrator manager
func NewManager(
	orchestrator *Orchestrator,
	jobs JobSubmitter,
	eventBus ports.EventBus,
	storage ports.ExecutionStorage,
	metrics ports.MetricsCollector,
	validator *Validator,
	logger *zap.Logger,
	executionTimeout time.Duration,
) *Manager {
	if metrics == nil {
		metrics = noop.NewCollector()
	}
	if validator == nil {
		validator = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		orchestrator:     orchestrator,
		jobs:             jobs,
		eventBus:         eventBus,
		storage:          storage,
		metrics:          metrics,
		validator:        validator,
		logger:           logger,
		executionTimeout: executionTimeout,
	}
}

// Execute validates plan and runs it synchronously. Validation is the only
// error; everything else is reported in the result.
func (m *Manager) Execute(ctx context.Context, tenantID int, plan *domain.QueryPlan) (*domain.OrchestrationResult, error) {
	if err := m.validator.Validate(plan); err != nil {
		return nil, err
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	return m.orchestrator.Execute(ctx, plan, tenantID), nil
}

// SubmitPlan validates and queues a plan for asynchronous execution
func (m *Manager) SubmitPlan(ctx context.Context, tenantID int, plan *domain.QueryPlan) (string, error) {
	if err := m.validator.Validate(plan); err != nil {
		m.logger.Warn("plan validation failed", zap.Error(err))
		m.metrics.RecordExecutionSubmitted(string(domain.ExecutionStatusFailed))
		return "", err
	}

	executionID := uuid.New().String()

	record := &domain.ExecutionRecord{
		ExecutionID: executionID,
		TenantID:    tenantID,
		Plan:        plan,
		Status:      domain.ExecutionStatusSubmitted,
		SubmittedAt: time.Now(),
	}

	if err := m.storage.SaveExecution(ctx, record); err != nil {
		m.logger.Error("failed to save initial record",
			zap.String("execution_id", executionID),
			zap.Error(err))
		return "", fmt.Errorf("failed to save execution: %w", err)
	}

	m.publish(ctx, executionID, domain.EventTypeOrchestrationSubmitted, map[string]interface{}{
		"tenant_id": tenantID,
		"calls":     len(plan.Calls),
	})

	execCtx, cancel := m.withTimeout(context.Background())
	tracked := &executionContext{
		executionID: executionID,
		cancelFunc:  cancel,
		record:      record,
	}
	m.executions.Store(executionID, tracked)
	m.metrics.SetActiveExecutions(int(m.active.Add(1)))

	err := m.jobs.Submit(execCtx, executionID, func(ctx context.Context) {
		m.run(ctx, tracked)
	})
	if err != nil {
		m.logger.Error("failed to enqueue execution",
			zap.String("execution_id", executionID),
			zap.Error(err))

		m.untrack(tracked)
		m.complete(tracked, nil, domain.ExecutionStatusFailed, err.Error())
		m.metrics.RecordExecutionSubmitted(string(domain.ExecutionStatusFailed))
		return "", fmt.Errorf("failed to enqueue execution: %w", err)
	}

	m.metrics.RecordExecutionSubmitted(string(domain.ExecutionStatusSubmitted))
	m.logger.Info("plan submitted",
		zap.String("execution_id", executionID),
		zap.Int("tenant_id", tenantID),
		zap.Int("calls", len(plan.Calls)))

	return executionID, nil
}

// GetStatus retrieves the current record of an execution
func (m *Manager) GetStatus(ctx context.Context, executionID string) (*domain.ExecutionRecord, error) {
	record, err := m.storage.GetExecution(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return record, nil
}

// ListExecutions lists every stored execution record
func (m *Manager) ListExecutions(ctx context.Context) ([]*domain.ExecutionRecord, error) {
	records, err := m.storage.ListExecutions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	return records, nil
}

// CancelExecution cancels a queued or running execution. The run records
// the cancelled status once the orchestrator observes the cancellation.
func (m *Manager) CancelExecution(ctx context.Context, executionID string) error {
	val, ok := m.executions.Load(executionID)
	if !ok {
		record, err := m.storage.GetExecution(ctx, executionID)
		if err != nil {
			if errors.Is(err, domain.ErrExecutionNotFound) {
				return fmt.Errorf("%w: %s", domain.ErrExecutionNotFound, executionID)
			}
			return fmt.Errorf("failed to get execution: %w", err)
		}
		if record.Status.IsTerminal() {
			return fmt.Errorf("%w: %s", domain.ErrTerminalState, record.Status)
		}
		// Record exists but is owned by another process.
		return fmt.Errorf("%w: %s is not tracked by this instance", domain.ErrExecutionNotFound, executionID)
	}

	tracked := val.(*executionContext)
	tracked.mu.Lock()
	status := tracked.record.Status
	tracked.mu.Unlock()

	if status.IsTerminal() {
		return fmt.Errorf("%w: %s", domain.ErrTerminalState, status)
	}

	tracked.cancelFunc()

	m.logger.Info("execution cancellation requested",
		zap.String("execution_id", executionID))

	return nil
}

// run executes a tracked plan on a worker
func (m *Manager) run(ctx context.Context, tracked *executionContext) {
	defer m.untrack(tracked)

	executionID := tracked.executionID

	tracked.mu.Lock()
	now := time.Now()
	tracked.record.Status = domain.ExecutionStatusRunning
	tracked.record.StartedAt = &now
	plan := tracked.record.Plan
	tenantID := tracked.record.TenantID
	snapshot := *tracked.record
	tracked.mu.Unlock()

	if err := m.storage.SaveExecution(context.WithoutCancel(ctx), &snapshot); err != nil {
		m.logger.Error("failed to save running state",
			zap.String("execution_id", executionID),
			zap.Error(err))
	}
	m.publish(ctx, executionID, domain.EventTypeOrchestrationStarted, nil)

	result := m.orchestrator.Execute(ctx, plan, tenantID, WithGroupObserver(func(index int, results []domain.CapabilityResult) {
		m.publish(ctx, executionID, domain.EventTypeGroupCompleted, map[string]interface{}{
			"group":   index,
			"results": results,
		})
	}))

	status := domain.ExecutionStatusCompleted
	switch {
	case result.Success:
	case errors.Is(ctx.Err(), context.Canceled):
		status = domain.ExecutionStatusCancelled
	default:
		status = domain.ExecutionStatusFailed
	}

	m.complete(tracked, result, status, result.Error)
}

// complete stores the terminal state of an execution and publishes it
func (m *Manager) complete(tracked *executionContext, result *domain.OrchestrationResult, status domain.ExecutionStatus, errMsg string) {
	executionID := tracked.executionID

	tracked.mu.Lock()
	now := time.Now()
	tracked.record.Status = status
	tracked.record.Result = result
	tracked.record.Error = errMsg
	tracked.record.CompletedAt = &now
	snapshot := *tracked.record
	tracked.mu.Unlock()

	ctx := context.Background()
	if err := m.storage.SaveExecution(ctx, &snapshot); err != nil {
		m.logger.Error("failed to save final state",
			zap.String("execution_id", executionID),
			zap.Error(err))
	}

	eventType := domain.EventTypeOrchestrationCompleted
	switch status {
	case domain.ExecutionStatusFailed:
		eventType = domain.EventTypeOrchestrationFailed
	case domain.ExecutionStatusCancelled:
		eventType = domain.EventTypeOrchestrationCancelled
	}

	data := map[string]interface{}{
		"status": string(status),
	}
	if result != nil {
		data["result"] = result
	}
	if errMsg != "" {
		data["error"] = errMsg
	}
	m.publish(ctx, executionID, eventType, data)

	m.logger.Info("execution finished",
		zap.String("execution_id", executionID),
		zap.String("status", string(status)))
}

// untrack stops tracking an execution and releases its context
func (m *Manager) untrack(tracked *executionContext) {
	if _, loaded := m.executions.LoadAndDelete(tracked.executionID); !loaded {
		return
	}
	tracked.cancelFunc()
	m.metrics.SetActiveExecutions(int(m.active.Add(-1)))
}

// publish publishes a lifecycle event, logging failures
func (m *Manager) publish(ctx context.Context, executionID string, eventType domain.EventType, data map[string]interface{}) {
	event := domain.Event{
		ID:          uuid.New().String(),
		Type:        eventType,
		ExecutionID: executionID,
		Timestamp:   time.Now(),
		Data:        data,
	}

	if err := m.eventBus.Publish(context.WithoutCancel(ctx), domain.EventsTopic, event); err != nil {
		m.logger.Error("failed to publish event",
			zap.String("execution_id", executionID),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.executionTimeout > 0 {
		return context.WithTimeout(ctx, m.executionTimeout)
	}
	return context.WithCancel(ctx)
}

// ActiveExecutions returns the number of tracked executions
func (m *Manager) ActiveExecutions() int {
	return int(m.active.Load())
}

// Shutdown cancels every active execution
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down orchestrator manager")

	m.executions.Range(func(key, value interface{}) bool {
		tracked := value.(*executionContext)
		tracked.cancelFunc()
		return true
	})

	m.logger.Info("orchestrator manager shut down complete")
	return nil
}
