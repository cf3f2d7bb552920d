package reconciler

import (
	"context"
	"sync"

	"github.com/Gobusters/ectologger"

	sageerrors "github.com/Ramsey-B/sage/pkg/errors"
)

// Task is one unit of work executed by the pool
type Task func(ctx context.Context) error

// Handle tracks a submitted task. It can be polled, awaited or cancelled.
type Handle struct {
	done   chan struct{}
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

// Done returns a channel closed when the task finishes
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Finished reports whether the task has completed without blocking
func (h *Handle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Err returns the task error once it has finished
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Wait blocks until the task finishes or ctx is done
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return h.Err()
	}
}

// Cancel signals the task's context. The task observes it at its next
// cancellation checkpoint.
func (h *Handle) Cancel() {
	h.cancel()
}

func (h *Handle) finish(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

type submission struct {
	ctx    context.Context
	task   Task
	handle *Handle
}

// Pool is a bounded worker pool for reconciliation jobs
type Pool struct {
	queue  chan submission
	logger ectologger.Logger
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPool creates a pool with the given worker count and queue depth and
// starts its workers
func NewPool(workers, queueSize int, logger ectologger.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	p := &Pool{
		queue:  make(chan submission, queueSize),
		logger: logger,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for sub := range p.queue {
		p.run(sub)
	}
}

func (p *Pool) run(sub submission) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithContext(sub.ctx).Errorf("task panicked: %v", r)
			sub.handle.finish(sageerrors.NewReconciliation(nil, "task panicked: %v", r))
		}
	}()

	if err := sub.ctx.Err(); err != nil {
		sub.handle.finish(err)
		return
	}
	sub.handle.finish(sub.task(sub.ctx))
}

// Submit enqueues a task without blocking. A full queue is reported as
// resource exhaustion so callers can surface backpressure.
func (p *Pool) Submit(ctx context.Context, task Task) (*Handle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, sageerrors.NewInvalidState("worker pool is shut down")
	}
	p.mu.Unlock()

	taskCtx, cancel := context.WithCancel(ctx)
	handle := &Handle{
		done:   make(chan struct{}),
		cancel: cancel,
	}

	select {
	case p.queue <- submission{ctx: taskCtx, task: task, handle: handle}:
		return handle, nil
	default:
		cancel()
		return nil, sageerrors.NewResourceExhausted("worker pool queue is full")
	}
}

// Shutdown stops accepting tasks and waits for in-flight work to finish
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}
