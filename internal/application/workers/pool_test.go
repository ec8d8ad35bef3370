package workers

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aescanero/capo/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, size, queueSize int) *Pool {
	t.Helper()
	pool := NewPool(size, queueSize, nil, nil, time.Hour)
	require.NoError(t, pool.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = pool.Shutdown(ctx)
	})
	return pool
}

func TestPool_RunsSubmittedJobs(t *testing.T) {
	pool := newTestPool(t, 3, 10)

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(context.Background(), "job", func(ctx context.Context) {
			defer wg.Done()
			ran.Add(1)
		}))
	}
	wg.Wait()
	assert.Equal(t, int32(10), ran.Load())
}

func TestPool_PassesJobContext(t *testing.T) {
	pool := newTestPool(t, 1, 1)

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "tenant-7")

	got := make(chan interface{}, 1)
	require.NoError(t, pool.Submit(ctx, "job", func(ctx context.Context) {
		got <- ctx.Value(key{})
	}))

	select {
	case v := <-got:
		assert.Equal(t, "tenant-7", v)
	case <-time.After(time.Second):
		t.Fatal("job did not run")
	}
}

func TestPool_FullQueueIsRejected(t *testing.T) {
	pool := newTestPool(t, 1, 1)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), "busy", func(ctx context.Context) {
		close(started)
		<-release
	}))
	<-started

	require.NoError(t, pool.Submit(context.Background(), "queued", func(ctx context.Context) {}))
	err := pool.Submit(context.Background(), "overflow", func(ctx context.Context) {})
	assert.ErrorIs(t, err, domain.ErrPoolFull)
	assert.Equal(t, 1, pool.QueueDepth())

	close(release)
}

func TestPool_RecoversFromPanics(t *testing.T) {
	pool := newTestPool(t, 1, 2)

	done := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), "panics", func(ctx context.Context) {
		panic("boom")
	}))
	require.NoError(t, pool.Submit(context.Background(), "after", func(ctx context.Context) {
		close(done)
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive the panic")
	}
	assert.True(t, pool.Health().IsHealthy())
}

func TestPool_ShutdownDrainsQueue(t *testing.T) {
	pool := NewPool(1, 5, nil, nil, time.Hour)
	require.NoError(t, pool.Start())

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Submit(context.Background(), "job", func(ctx context.Context) {
			time.Sleep(5 * time.Millisecond)
			ran.Add(1)
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))
	assert.Equal(t, int32(5), ran.Load())

	err := pool.Submit(context.Background(), "late", func(ctx context.Context) {})
	assert.ErrorIs(t, err, domain.ErrPoolStopped)

	for _, status := range pool.GetStatus() {
		assert.Equal(t, WorkerStatusStopped, status)
	}
}

func TestPool_ShutdownTimeout(t *testing.T) {
	pool := NewPool(1, 1, nil, nil, time.Hour)
	require.NoError(t, pool.Start())

	release := make(chan struct{})
	defer close(release)
	require.NoError(t, pool.Submit(context.Background(), "stuck", func(ctx context.Context) {
		<-release
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, pool.Shutdown(ctx))
}

func TestPool_StartTwice(t *testing.T) {
	pool := newTestPool(t, 1, 1)
	assert.Error(t, pool.Start())
}

func TestPool_StartAfterShutdown(t *testing.T) {
	pool := NewPool(1, 1, nil, nil, time.Hour)
	require.NoError(t, pool.Shutdown(context.Background()))
	assert.ErrorIs(t, pool.Start(), domain.ErrPoolStopped)
}
