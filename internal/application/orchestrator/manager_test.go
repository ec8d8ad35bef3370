package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/capo/internal/application/registry"
	"github.com/aescanero/capo/internal/application/workers"
	eventsmemory "github.com/aescanero/capo/pkg/adapters/events/memory"
	storagememory "github.com/aescanero/capo/pkg/adapters/storage/memory"
	"github.com/aescanero/capo/pkg/domain"
	"github.com/aescanero/capo/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockUntilCancelled waits for the call context to end
func blockUntilCancelled(started chan<- struct{}) ports.CapabilityFunc {
	var once sync.Once
	return func(ctx context.Context, tenantID int, params json.RawMessage) (*domain.CapabilityResult, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

// eventLog records every event published on the lifecycle topic
type eventLog struct {
	mu     sync.Mutex
	events []domain.Event
}

func (l *eventLog) handle(ctx context.Context, event domain.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *eventLog) types(executionID string) []domain.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	var types []domain.EventType
	for _, e := range l.events {
		if e.ExecutionID == executionID {
			types = append(types, e.Type)
		}
	}
	return types
}

type rejectingSubmitter struct{}

func (rejectingSubmitter) Submit(ctx context.Context, jobID string, fn func(ctx context.Context)) error {
	return domain.ErrPoolFull
}

type managerFixture struct {
	manager *Manager
	storage *storagememory.InMemoryExecutionStorage
	events  *eventLog
}

func newTestManager(t *testing.T, caps map[string]ports.Capability, jobs JobSubmitter, timeout time.Duration) *managerFixture {
	t.Helper()

	reg := registry.New()
	for name, c := range caps {
		require.NoError(t, reg.Register(name, "v1", c))
	}

	if jobs == nil {
		pool := workers.NewPool(2, 10, nil, nil, time.Hour)
		require.NoError(t, pool.Start())
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = pool.Shutdown(ctx)
		})
		jobs = pool
	}

	bus := eventsmemory.NewInMemoryEventBus()
	t.Cleanup(func() { _ = bus.Close() })
	log := &eventLog{}
	require.NoError(t, bus.Subscribe(context.Background(), domain.EventsTopic, log.handle))

	storage := storagememory.NewInMemoryExecutionStorage()
	manager := NewManager(NewOrchestrator(reg, nil, nil), jobs, bus, storage, nil, nil, nil, timeout)

	return &managerFixture{manager: manager, storage: storage, events: log}
}

func (f *managerFixture) waitForStatus(t *testing.T, executionID string, want domain.ExecutionStatus) *domain.ExecutionRecord {
	t.Helper()
	var record *domain.ExecutionRecord
	require.Eventually(t, func() bool {
		r, err := f.manager.GetStatus(context.Background(), executionID)
		if err != nil {
			return false
		}
		record = r
		return r.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return record
}

func twoStepPlan() *domain.QueryPlan {
	return &domain.QueryPlan{Calls: []domain.CapabilityCall{
		{Name: "users", Version: "v1", Order: 1},
		{Name: "orders", Version: "v1", Order: 2, DependsOn: []string{"users"}},
	}}
}

func TestManager_SubmitPlanRunsToCompletion(t *testing.T) {
	f := newTestManager(t, map[string]ports.Capability{
		"users":  succeed(`[1,2]`, intPtr(2)),
		"orders": succeed(`[3]`, intPtr(1)),
	}, nil, 0)

	id, err := f.manager.SubmitPlan(context.Background(), 7, twoStepPlan())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	record := f.waitForStatus(t, id, domain.ExecutionStatusCompleted)
	assert.Equal(t, 7, record.TenantID)
	require.NotNil(t, record.Result)
	assert.True(t, record.Result.Success)
	assert.Len(t, record.Result.Results, 2)
	assert.Equal(t, 3, record.Result.TotalRecords())
	assert.NotNil(t, record.StartedAt)
	assert.NotNil(t, record.CompletedAt)

	require.Eventually(t, func() bool {
		types := f.events.types(id)
		return len(types) > 0 && types[len(types)-1].IsTerminal()
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []domain.EventType{
		domain.EventTypeOrchestrationSubmitted,
		domain.EventTypeOrchestrationStarted,
		domain.EventTypeGroupCompleted,
		domain.EventTypeGroupCompleted,
		domain.EventTypeOrchestrationCompleted,
	}, f.events.types(id))

	require.Eventually(t, func() bool { return f.manager.ActiveExecutions() == 0 }, time.Second, 5*time.Millisecond)
}

func TestManager_FailedPlanIsRecordedAsFailed(t *testing.T) {
	f := newTestManager(t, map[string]ports.Capability{
		"users":  fail("NO_USERS"),
		"orders": succeed(`[]`, nil),
	}, nil, 0)

	id, err := f.manager.SubmitPlan(context.Background(), 1, twoStepPlan())
	require.NoError(t, err)

	record := f.waitForStatus(t, id, domain.ExecutionStatusFailed)
	require.NotNil(t, record.Result)
	assert.False(t, record.Result.Success)
	require.Len(t, record.Result.Results, 1)
	assert.Equal(t, "NO_USERS", record.Result.Results[0].ErrorCode)
}

func TestManager_SubmitRejectsInvalidPlan(t *testing.T) {
	f := newTestManager(t, nil, nil, 0)

	_, err := f.manager.SubmitPlan(context.Background(), 1, &domain.QueryPlan{})
	assert.ErrorIs(t, err, domain.ErrInvalidPlan)

	records, err := f.manager.ListExecutions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestManager_SubmitWhenPoolIsFull(t *testing.T) {
	f := newTestManager(t, map[string]ports.Capability{"users": succeed(`1`, nil)}, rejectingSubmitter{}, 0)

	plan := &domain.QueryPlan{Calls: []domain.CapabilityCall{{Name: "users", Version: "v1"}}}
	_, err := f.manager.SubmitPlan(context.Background(), 1, plan)
	assert.ErrorIs(t, err, domain.ErrPoolFull)

	records, err := f.manager.ListExecutions(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.ExecutionStatusFailed, records[0].Status)
	assert.Equal(t, 0, f.manager.ActiveExecutions())
}

func TestManager_CancelRunningExecution(t *testing.T) {
	started := make(chan struct{})
	f := newTestManager(t, map[string]ports.Capability{
		"users":  blockUntilCancelled(started),
		"orders": succeed(`[]`, nil),
	}, nil, 0)

	id, err := f.manager.SubmitPlan(context.Background(), 1, twoStepPlan())
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("execution did not start")
	}

	require.NoError(t, f.manager.CancelExecution(context.Background(), id))

	record := f.waitForStatus(t, id, domain.ExecutionStatusCancelled)
	require.NotNil(t, record.Result)
	assert.Equal(t, "Orchestration was cancelled", record.Result.Error)
	assert.Empty(t, record.Result.Results)

	require.Eventually(t, func() bool {
		types := f.events.types(id)
		return len(types) > 0 && types[len(types)-1] == domain.EventTypeOrchestrationCancelled
	}, time.Second, 5*time.Millisecond)

	// A second cancel hits the terminal state
	err = f.manager.CancelExecution(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrTerminalState)
}

func TestManager_CancelUnknownExecution(t *testing.T) {
	f := newTestManager(t, nil, nil, 0)

	err := f.manager.CancelExecution(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrExecutionNotFound)
}

func TestManager_CancelRecordOwnedElsewhere(t *testing.T) {
	f := newTestManager(t, nil, nil, 0)

	require.NoError(t, f.storage.SaveExecution(context.Background(), &domain.ExecutionRecord{
		ExecutionID: "remote",
		Status:      domain.ExecutionStatusRunning,
	}))
	err := f.manager.CancelExecution(context.Background(), "remote")
	assert.ErrorIs(t, err, domain.ErrExecutionNotFound)

	require.NoError(t, f.storage.SaveExecution(context.Background(), &domain.ExecutionRecord{
		ExecutionID: "done",
		Status:      domain.ExecutionStatusCompleted,
	}))
	err = f.manager.CancelExecution(context.Background(), "done")
	assert.ErrorIs(t, err, domain.ErrTerminalState)
}

func TestManager_ExecutionTimeout(t *testing.T) {
	started := make(chan struct{})
	f := newTestManager(t, map[string]ports.Capability{
		"users": blockUntilCancelled(started),
	}, nil, 50*time.Millisecond)

	plan := &domain.QueryPlan{Calls: []domain.CapabilityCall{{Name: "users", Version: "v1"}}}
	id, err := f.manager.SubmitPlan(context.Background(), 1, plan)
	require.NoError(t, err)

	record := f.waitForStatus(t, id, domain.ExecutionStatusFailed)
	require.NotNil(t, record.Result)
	assert.Equal(t, "Orchestration timed out", record.Result.Error)
}

func TestManager_ExecuteSynchronously(t *testing.T) {
	f := newTestManager(t, map[string]ports.Capability{
		"users":  succeed(`[1]`, intPtr(1)),
		"orders": succeed(`[2]`, intPtr(1)),
	}, nil, 0)

	result, err := f.manager.Execute(context.Background(), 3, twoStepPlan())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.Results, 2)

	// Synchronous runs are not stored
	records, err := f.manager.ListExecutions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = f.manager.Execute(context.Background(), 3, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidPlan)
}

func TestManager_GetStatusUnknown(t *testing.T) {
	f := newTestManager(t, nil, nil, 0)

	_, err := f.manager.GetStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrExecutionNotFound)
}

func TestManager_ShutdownCancelsActiveExecutions(t *testing.T) {
	started := make(chan struct{})
	f := newTestManager(t, map[string]ports.Capability{
		"users": blockUntilCancelled(started),
	}, nil, 0)

	plan := &domain.QueryPlan{Calls: []domain.CapabilityCall{{Name: "users", Version: "v1"}}}
	id, err := f.manager.SubmitPlan(context.Background(), 1, plan)
	require.NoError(t, err)
	<-started

	require.NoError(t, f.manager.Shutdown(context.Background()))
	f.waitForStatus(t, id, domain.ExecutionStatusCancelled)
}
