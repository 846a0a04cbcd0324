package notify

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/arklim/realm-auth-service/internal/core/domain"
	"github.com/arklim/realm-auth-service/internal/core/port"
)

var (
	// ErrQueueFull is returned by Enqueue when the buffer has no room.
	ErrQueueFull = errors.New("notify: queue full")
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("notify: queue closed")
)

// Deliverer performs the delivery of a single job.
type Deliverer interface {
	Deliver(ctx context.Context, job domain.NotificationJob) error
}

// WorkerPool is an in-process notification queue served by a fixed set of goroutines.
// Enqueue never blocks the caller.
type WorkerPool struct {
	jobs    chan domain.NotificationJob
	deliver Deliverer
	workers int
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

var _ port.NotificationQueue = (*WorkerPool)(nil)

// NewWorkerPool creates a stopped pool. Call Start to begin delivery.
func NewWorkerPool(deliver Deliverer, workers, queueSize int, logger *zap.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerPool{
		jobs:    make(chan domain.NotificationJob, queueSize),
		deliver: deliver,
		workers: workers,
		logger:  logger,
	}
}

// Start launches the workers. They stop when ctx is done or Close is called.
func (p *WorkerPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
	p.logger.Info("notification workers started", zap.Int("workers", p.workers), zap.Int("queue_size", cap(p.jobs)))
}

// Enqueue hands job to the workers.
func (p *WorkerPool) Enqueue(_ context.Context, job domain.NotificationJob) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrQueueClosed
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits for the queued ones to drain.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *WorkerPool) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			if err := p.deliver.Deliver(ctx, job); err != nil {
				p.logger.Warn("notification delivery failed", zap.String("job_id", job.ID), zap.Error(err))
			}
		}
	}
}
