package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/capo/pkg/adapters/metrics/noop"
	"github.com/aescanero/capo/pkg/domain"
	"github.com/aescanero/capo/pkg/ports"
	"go.uber.org/zap"
)

const (
	cancelledMessage = "Orchestration was cancelled"
	timedOutMessage  = "Orchestration timed out"
)

// Orchestration outcome labels used for metrics and logs.
const (
	outcomeSuccess   = "success"
	outcomeFailed    = "failed"
	outcomeCancelled = "cancelled"
	outcomeFaulted   = "faulted"
)

// GroupObserver is called after each group barrier with the group's index
// and results, before the short-circuit decision.
type GroupObserver func(index int, results []domain.CapabilityResult)

// ExecuteOption customizes a single Execute call.
type ExecuteOption func(*executeOptions)

type executeOptions struct {
	observer GroupObserver
}

// WithGroupObserver registers an observer for completed groups.
func WithGroupObserver(observer GroupObserver) ExecuteOption {
	return func(o *executeOptions) {
		o.observer = observer
	}
}

// Orchestrator executes query plans group by group against a capability
// resolver. It holds no per-run state and may be shared across runs.
type Orchestrator struct {
	resolver ports.CapabilityResolver
	metrics  ports.MetricsCollector
	logger   *zap.Logger
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(resolver ports.CapabilityResolver, metrics ports.MetricsCollector, logger *zap.Logger) *Orchestrator {
	if metrics == nil {
		metrics = noop.NewCollector()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		resolver: resolver,
		metrics:  metrics,
		logger:   logger,
	}
}

// Execute runs plan for tenantID and never panics or returns an error: every
// failure mode is captured into the returned result.
//
// Calls within a group run concurrently; the next group starts only after
// every call of the current one has finished. Once a group contains a failed
// result, later groups are abandoned. Cancellation of ctx is terminal.
func (o *Orchestrator) Execute(ctx context.Context, plan *domain.QueryPlan, tenantID int, opts ...ExecuteOption) (result *domain.OrchestrationResult) {
	startTime := time.Now()

	var options executeOptions
	for _, opt := range opts {
		opt(&options)
	}

	result = &domain.OrchestrationResult{
		Results: make([]domain.CapabilityResult, 0),
	}
	outcome := outcomeFaulted

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("orchestration fault",
				zap.Any("panic", r),
				zap.Int("tenant_id", tenantID))
			result.Success = false
			result.Error = fmt.Sprint(r)
			outcome = outcomeFaulted
		}
		duration := time.Since(startTime)
		result.TotalExecutionTimeMs = duration.Milliseconds()
		o.metrics.RecordOrchestration(outcome, duration)

		o.logger.Info("orchestration finished",
			zap.String("outcome", outcome),
			zap.Bool("success", result.Success),
			zap.Int("results", len(result.Results)),
			zap.Duration("duration", duration))
	}()

	if plan == nil {
		result.Error = "plan is nil"
		return result
	}

	if err := ctx.Err(); err != nil {
		outcome = outcomeCancelled
		result.Error = cancellationMessage(err)
		return result
	}

	groups, anomalies := BuildExecutionGroups(plan.Calls)
	if len(anomalies) > 0 {
		o.metrics.RecordDependencyAnomaly()
		for _, anomaly := range anomalies {
			o.logger.Warn("unsatisfiable dependency, running call in best-effort group",
				zap.String("capability", anomaly.Call),
				zap.Strings("unmet", anomaly.Unmet))
		}
	}
	o.metrics.RecordGroups(len(groups))

	o.logger.Debug("starting orchestration",
		zap.Int("tenant_id", tenantID),
		zap.Int("calls", len(plan.Calls)),
		zap.Int("groups", len(groups)))

	for index, group := range groups {
		if err := ctx.Err(); err != nil {
			outcome = outcomeCancelled
			result.Error = cancellationMessage(err)
			return result
		}

		o.logger.Debug("executing group",
			zap.Int("group", index),
			zap.Int("group_size", len(group)))

		groupResults := o.executeGroup(ctx, group, tenantID)

		if err := ctx.Err(); err != nil {
			outcome = outcomeCancelled
			result.Error = cancellationMessage(err)
			return result
		}

		result.Results = append(result.Results, groupResults...)

		if options.observer != nil {
			options.observer(index, groupResults)
		}

		if failed := countFailures(groupResults); failed > 0 {
			o.logger.Info("group failed, skipping remaining groups",
				zap.Int("group", index),
				zap.Int("failed", failed),
				zap.Int("skipped_groups", len(groups)-index-1))
			break
		}
	}

	result.Success = result.AllSucceeded()
	if result.Success {
		outcome = outcomeSuccess
	} else {
		outcome = outcomeFailed
	}
	return result
}

// executeGroup runs every call of group concurrently and waits for all of
// them. Each goroutine writes only its own slot.
func (o *Orchestrator) executeGroup(ctx context.Context, group []domain.CapabilityCall, tenantID int) []domain.CapabilityResult {
	results := make([]domain.CapabilityResult, len(group))

	var wg sync.WaitGroup
	for i, call := range group {
		wg.Add(1)
		go func(i int, call domain.CapabilityCall) {
			defer wg.Done()
			results[i] = o.executeCall(ctx, call, tenantID)
		}(i, call)
	}
	wg.Wait()

	return results
}

// executeCall resolves and invokes a single call. Faults and panics are
// converted to failed results.
func (o *Orchestrator) executeCall(ctx context.Context, call domain.CapabilityCall, tenantID int) (result domain.CapabilityResult) {
	startTime := time.Now()
	version := call.Version

	defer func() {
		if r := recover(); r != nil {
			result = *domain.FailureResult(domain.ErrorCodeExecutionError, fmt.Sprintf("capability panicked: %v", r))
		}

		duration := time.Since(startTime)
		result.CapabilityName = call.Name
		result.CapabilityVersion = version
		result.CallID = call.CallID
		result.ExecutionTimeMs = duration.Milliseconds()
		if result.IsSuccess {
			result.ErrorCode = ""
			result.ErrorMessage = ""
		} else {
			result.Data = nil
		}

		status := outcomeSuccess
		if !result.IsSuccess {
			status = outcomeFailed
		}
		o.metrics.RecordCapabilityCall(call.Name, status, result.ErrorCode, duration)

		o.logger.Debug("capability call finished",
			zap.String("capability", call.Name),
			zap.String("version", version),
			zap.String("call_id", call.CallID),
			zap.Bool("success", result.IsSuccess),
			zap.String("error_code", result.ErrorCode),
			zap.Duration("duration", duration))
	}()

	capability, resolvedVersion, ok := o.resolver.Resolve(call.Name, call.Version)
	if !ok {
		return *domain.FailureResult(domain.ErrorCodeCapabilityNotFound,
			fmt.Sprintf("capability %q version %q not found", call.Name, call.Version))
	}
	if version == "" {
		version = resolvedVersion
	}

	out, err := capability.Execute(ctx, tenantID, call.Parameters)
	if err != nil {
		return *domain.FailureResult(domain.ErrorCodeExecutionError, err.Error())
	}
	if out == nil {
		return *domain.FailureResult(domain.ErrorCodeExecutionError, "capability returned no result")
	}
	return *out
}

func countFailures(results []domain.CapabilityResult) int {
	failed := 0
	for i := range results {
		if !results[i].IsSuccess {
			failed++
		}
	}
	return failed
}

func cancellationMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return timedOutMessage
	}
	return cancelledMessage
}
