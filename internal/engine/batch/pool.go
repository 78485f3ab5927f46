package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Pool errors.
var (
	ErrPoolClosed      = errors.New("worker pool is shut down")
	ErrShutdownTimeout = errors.New("worker pool did not stop within the shutdown timeout")
)

// Task is run on a pool worker. ctx is the pool context, cancelled only when a
// shutdown is forced. workerID is stable for the worker's lifetime.
type Task func(ctx context.Context, workerID int)

// Pool is a fixed set of reusable worker goroutines draining a task queue.
type Pool struct {
	size   int
	tasks  chan Task
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	logger zerolog.Logger

	active atomic.Int64

	// quit is closed when Shutdown starts; it releases Submit calls blocked on a
	// full queue so Shutdown can take mu.
	quit chan struct{}

	// mu guards closed against concurrent Submit and Shutdown.
	mu     sync.RWMutex
	closed bool

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewPool starts size workers. queueSize is the task buffer; Submit blocks once it
// is full. size below 1 is treated as 1.
func NewPool(ctx context.Context, size, queueSize int, logger zerolog.Logger) *Pool {
	size = max(size, 1)
	queueSize = max(queueSize, 0)

	poolCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(poolCtx)

	p := &Pool{
		size:   size,
		tasks:  make(chan Task, queueSize),
		quit:   make(chan struct{}),
		ctx:    groupCtx,
		cancel: cancel,
		group:  group,
		logger: logger,
	}

	for i := range size {
		workerID := i + 1
		group.Go(func() error {
			p.worker(workerID)
			return nil
		})
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Active returns how many workers are running a task right now. The value is an
// instantaneous estimate, always within [0, Size()].
func (p *Pool) Active() int {
	n := int(p.active.Load())
	return min(max(n, 0), p.size)
}

// Submit queues task, blocking while the queue is full. It returns ErrPoolClosed
// once Shutdown has started, including for a call that was blocked.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		return nil
	case <-p.quit:
		return ErrPoolClosed
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

// Shutdown stops accepting tasks and waits up to timeout for queued and running
// tasks to finish. Past the timeout the pool context is cancelled, queued tasks
// are dropped and running tasks are abandoned; ErrShutdownTimeout is returned.
// Shutdown is idempotent.
func (p *Pool) Shutdown(timeout time.Duration) error {
	p.shutdownOnce.Do(func() {
		p.shutdownErr = p.shutdown(timeout)
	})
	return p.shutdownErr
}

func (p *Pool) shutdown(timeout time.Duration) error {
	close(p.quit)
	p.mu.Lock()
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = p.group.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-timer.C:
		p.cancel()
		p.logger.Warn().
			Str("operation", "pool_shutdown").
			Dur("timeout", timeout).
			Int("active_workers", p.Active()).
			Msg("forcing worker pool termination, abandoning in-flight tasks")
		return fmt.Errorf("%w (%s)", ErrShutdownTimeout, timeout)
	}
}

func (p *Pool) worker(id int) {
	for {
		// A forced shutdown drops whatever is still queued.
		if p.ctx.Err() != nil {
			return
		}
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.run(id, task)
		}
	}
}

func (p *Pool) run(id int, task Task) {
	p.active.Add(1)
	defer p.active.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Int("worker", id).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("worker recovered from task panic")
		}
	}()
	task(p.ctx, id)
}
