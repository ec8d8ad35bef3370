package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/capo/pkg/adapters/metrics/noop"
	"github.com/aescanero/capo/pkg/domain"
	"github.com/aescanero/capo/pkg/ports"
	"go.uber.org/zap"
)

const defaultHealthCheckInterval = 30 * time.Second

// Pool manages a pool of worker goroutines
type Pool struct {
	size    int
	metrics ports.MetricsCollector
	logger  *zap.Logger
	health  *HealthMonitor

	queue   chan job
	workers []*worker
	wg      sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool
}

// job is a queued unit of work
type job struct {
	id         string
	ctx        context.Context
	fn         func(ctx context.Context)
	enqueuedAt time.Time
}

// worker represents a single worker goroutine
type worker struct {
	id      string
	pool    *Pool
	status  WorkerStatus
	mu      sync.RWMutex
	lastJob time.Time
}

// WorkerStatus represents worker status
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusStopped WorkerStatus = "stopped"
)

// NewPool creates a new worker pool
func NewPool(
	size int,
	queueSize int,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	healthCheckInterval time.Duration,
) *Pool {
	if metrics == nil {
		metrics = noop.NewCollector()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if healthCheckInterval <= 0 {
		healthCheckInterval = defaultHealthCheckInterval
	}

	pool := &Pool{
		size:    size,
		metrics: metrics,
		logger:  logger,
		queue:   make(chan job, queueSize),
		workers: make([]*worker, size),
	}

	for i := 0; i < size; i++ {
		pool.workers[i] = &worker{
			id:     fmt.Sprintf("worker-%d", i),
			pool:   pool,
			status: WorkerStatusStopped,
		}
	}

	pool.health = NewHealthMonitor(pool, healthCheckInterval, logger)

	return pool
}

// Health returns the pool's health monitor
func (p *Pool) Health() *HealthMonitor {
	return p.health
}

// Start starts the worker pool
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return domain.ErrPoolStopped
	}
	if p.started {
		return fmt.Errorf("worker pool already started")
	}
	p.started = true

	p.logger.Info("starting worker pool", zap.Int("size", p.size))

	for _, w := range p.workers {
		w.setStatus(WorkerStatusIdle)
		w.lastJob = time.Now()

		p.wg.Add(1)
		go w.run()
	}

	p.health.Start()

	p.logger.Info("worker pool started", zap.Int("workers", p.size))
	return nil
}

// Submit queues fn to run with ctx. It never blocks: a full queue returns
// domain.ErrPoolFull.
func (p *Pool) Submit(ctx context.Context, jobID string, fn func(ctx context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return domain.ErrPoolStopped
	}

	select {
	case p.queue <- job{id: jobID, ctx: ctx, fn: fn, enqueuedAt: time.Now()}:
		p.metrics.SetQueueDepth(len(p.queue))
		return nil
	default:
		return domain.ErrPoolFull
	}
}

// QueueDepth returns the number of queued jobs
func (p *Pool) QueueDepth() int {
	return len(p.queue)
}

// Shutdown stops accepting jobs and waits for queued and running jobs
func (p *Pool) Shutdown(ctx context.Context) error {
	p.logger.Info("shutting down worker pool")

	p.health.Stop()

	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.queue)
	}
	p.mu.Unlock()

	// Wait for all workers to finish with timeout
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout")
	}
}

// GetStatus returns the status of all workers
func (p *Pool) GetStatus() map[string]WorkerStatus {
	status := make(map[string]WorkerStatus)
	for _, w := range p.workers {
		w.mu.RLock()
		status[w.id] = w.status
		w.mu.RUnlock()
	}
	return status
}

// run is the main worker loop
func (w *worker) run() {
	defer w.pool.wg.Done()

	w.pool.logger.Debug("worker started", zap.String("worker_id", w.id))

	for j := range w.pool.queue {
		w.pool.metrics.SetQueueDepth(len(w.pool.queue))
		w.handle(j)
	}

	w.setStatus(WorkerStatusStopped)
	w.pool.logger.Debug("worker stopped", zap.String("worker_id", w.id))
}

// handle runs a single job, recovering from panics
func (w *worker) handle(j job) {
	w.mu.Lock()
	w.status = WorkerStatusBusy
	w.lastJob = time.Now()
	w.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			w.pool.logger.Error("job panicked",
				zap.String("worker_id", w.id),
				zap.String("job_id", j.id),
				zap.Any("panic", r))
		}
		w.setStatus(WorkerStatusIdle)
	}()

	w.pool.logger.Debug("running job",
		zap.String("worker_id", w.id),
		zap.String("job_id", j.id),
		zap.Duration("queue_wait", time.Since(j.enqueuedAt)))

	j.fn(j.ctx)
}

func (w *worker) setStatus(status WorkerStatus) {
	w.mu.Lock()
	w.status = status
	w.mu.Unlock()
}
