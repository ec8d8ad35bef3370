package redis

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/capo/pkg/domain"
	"github.com/aescanero/capo/pkg/ports"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var _ ports.EventBus = (*StreamsEventBus)(nil)

func setupTestBus(t *testing.T, maxLen int64) (*miniredis.Miniredis, *StreamsEventBus) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	bus := NewStreamsEventBus(client, maxLen, zap.NewNop())
	bus.blockTime = 50 * time.Millisecond
	t.Cleanup(func() {
		_ = bus.Close()
		_ = client.Close()
	})

	return mr, bus
}

type collector struct {
	mu     sync.Mutex
	events []domain.Event
}

func (c *collector) handle(ctx context.Context, event domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *collector) snapshot() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Event(nil), c.events...)
}

func TestPublishAppendsToStream(t *testing.T) {
	mr, bus := setupTestBus(t, 0)

	require.NoError(t, bus.Publish(context.Background(), "topic", domain.Event{
		ID:          "evt-1",
		Type:        domain.EventTypeOrchestrationSubmitted,
		ExecutionID: "exec-1",
	}))

	entries, err := mr.Stream("capo:events:topic")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEverySubscriberSeesEveryEvent(t *testing.T) {
	_, bus := setupTestBus(t, 0)
	ctx := context.Background()

	first, second := &collector{}, &collector{}
	require.NoError(t, bus.Subscribe(ctx, "topic", first.handle))
	require.NoError(t, bus.Subscribe(ctx, "topic", second.handle))

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(ctx, "topic", domain.Event{
			ID:          fmt.Sprintf("evt-%d", i),
			Type:        domain.EventTypeGroupCompleted,
			ExecutionID: "exec-1",
			Data:        map[string]interface{}{"group": i},
		}))
	}

	require.Eventually(t, func() bool {
		return len(first.snapshot()) == 5 && len(second.snapshot()) == 5
	}, 2*time.Second, 10*time.Millisecond)

	events := first.snapshot()
	for i, event := range events {
		assert.Equal(t, fmt.Sprintf("evt-%d", i), event.ID)
		assert.Equal(t, domain.EventTypeGroupCompleted, event.Type)
		assert.Equal(t, "exec-1", event.ExecutionID)
	}
}

func TestSubscriberStartsAfterExistingEntries(t *testing.T) {
	_, bus := setupTestBus(t, 0)
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, "topic", domain.Event{ID: "old"}))

	c := &collector{}
	require.NoError(t, bus.Subscribe(ctx, "topic", c.handle))
	require.NoError(t, bus.Publish(ctx, "topic", domain.Event{ID: "new"}))

	require.Eventually(t, func() bool {
		return len(c.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "new", c.snapshot()[0].ID)
}

func TestCancelledSubscriptionLeavesOthers(t *testing.T) {
	_, bus := setupTestBus(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	gone := &collector{}
	kept := &collector{}
	require.NoError(t, bus.Subscribe(ctx, "topic", gone.handle))
	require.NoError(t, bus.Subscribe(context.Background(), "topic", kept.handle))

	cancel()
	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.cancels["topic"]) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), "topic", domain.Event{ID: "x"}))
	require.Eventually(t, func() bool {
		return len(kept.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, gone.snapshot())
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	_, bus := setupTestBus(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus.Subscribe(ctx, "topic", (&collector{}).handle))
	cancel()

	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.cancels) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
