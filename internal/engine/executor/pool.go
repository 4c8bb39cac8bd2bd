package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	domainerrors "yangkit/internal/core/errors"
	"yangkit/internal/data/queue"
	"yangkit/internal/shared/observability"
)

const defaultQueueCapacity = 1024

type poolOptions struct {
	queueCapacity int
	callbacks     Executor
}

// PoolOption configures a DeadlockDetectingPool.
type PoolOption func(*poolOptions)

// WithQueueCapacity bounds the number of waiting tasks.
func WithQueueCapacity(n int) PoolOption {
	return func(o *poolOptions) { o.queueCapacity = n }
}

// WithCallbackExecutor runs future callbacks on ex instead of fresh goroutines.
func WithCallbackExecutor(ex Executor) PoolOption {
	return func(o *poolOptions) { o.callbacks = ex }
}

type poolTask struct {
	run   func()
	abort func(error)
}

// DeadlockDetectingPool runs tasks one at a time on a single worker goroutine.
// A Get on one of its incomplete futures issued from that worker fails with
// the pool's deadlock error instead of blocking forever. Waits from any other
// goroutine block normally.
type DeadlockDetectingPool struct {
	name        string
	deadlockErr func() error
	callbacks   Executor

	tasks    *queue.MemoryQueue[poolTask]
	workerID atomic.Uint64
	closed   atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewDeadlockDetectingPool starts the worker. deadlockErr may be nil, in which
// case domainerrors.ErrDeadlock is returned on a detected self-wait.
func NewDeadlockDetectingPool(name string, deadlockErr func() error, opts ...PoolOption) *DeadlockDetectingPool {
	o := poolOptions{queueCapacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	if deadlockErr == nil {
		deadlockErr = func() error { return domainerrors.ErrDeadlock }
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &DeadlockDetectingPool{
		name:        name,
		deadlockErr: deadlockErr,
		callbacks:   o.callbacks,
		tasks:       queue.NewMemoryQueue[poolTask](o.queueCapacity),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	started := make(chan struct{})
	go p.run(started)
	<-started
	return p
}

func (p *DeadlockDetectingPool) Name() string { return p.name }

// Execute queues task. It fails when the pool is shut down or the queue is full.
func (p *DeadlockDetectingPool) Execute(task func()) error {
	return p.submitTask(task, nil)
}

func (p *DeadlockDetectingPool) submitTask(run func(), abort func(error)) error {
	if p.closed.Load() {
		observability.PoolRejectedTotal.WithLabelValues(p.name).Inc()
		return fmt.Errorf("pool %s: %w", p.name, domainerrors.ErrClosed)
	}
	if p.tasks.Enqueue(poolTask{run: run, abort: abort}) != queue.EnqueueAccepted {
		observability.PoolRejectedTotal.WithLabelValues(p.name).Inc()
		return fmt.Errorf("pool %s: task not accepted: %w", p.name, domainerrors.ErrRejected)
	}
	observability.PoolQueueDepth.WithLabelValues(p.name).Set(float64(p.tasks.Len()))
	return nil
}

func (p *DeadlockDetectingPool) guard() blockingGuard       { return p }
func (p *DeadlockDetectingPool) callbackExecutor() Executor { return p.callbacks }

func (p *DeadlockDetectingPool) checkBlocking() error {
	if p.workerID.Load() != goroutineID() {
		return nil
	}
	observability.DeadlocksDetectedTotal.WithLabelValues(p.name).Inc()
	slog.Warn("blocking wait on own worker refused", "pool", p.name)
	return p.deadlockErr()
}

// OnWorker reports whether the caller is running on this pool's worker.
func (p *DeadlockDetectingPool) OnWorker() bool {
	return p.workerID.Load() == goroutineID()
}

func (p *DeadlockDetectingPool) run(started chan<- struct{}) {
	defer close(p.done)
	p.workerID.Store(goroutineID())
	close(started)

	for {
		t, err := p.tasks.Dequeue(p.ctx)
		if err != nil {
			return
		}
		observability.PoolQueueDepth.WithLabelValues(p.name).Set(float64(p.tasks.Len()))
		if p.ctx.Err() != nil {
			p.abort(t, domainerrors.ErrClosed)
			continue
		}
		p.runTask(t)
	}
}

func (p *DeadlockDetectingPool) runTask(t poolTask) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pool task panicked", "pool", p.name, "panic", r)
		}
	}()
	t.run()
}

func (p *DeadlockDetectingPool) abort(t poolTask, err error) {
	if t.abort != nil {
		t.abort(fmt.Errorf("pool %s: %w", p.name, err))
	}
}

// Shutdown stops accepting work and waits for queued tasks to finish.
func (p *DeadlockDetectingPool) Shutdown(ctx context.Context) error {
	p.once.Do(func() {
		p.closed.Store(true)
		_ = p.tasks.Close()
	})
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ShutdownNow stops accepting work and fails every queued task. The running
// task, if any, is allowed to finish. It returns the number of aborted tasks.
func (p *DeadlockDetectingPool) ShutdownNow() int {
	p.once.Do(func() {
		p.closed.Store(true)
		_ = p.tasks.Close()
	})
	p.cancel()
	pending := p.tasks.Drain()
	for _, t := range pending {
		p.abort(t, domainerrors.ErrClosed)
	}
	observability.PoolQueueDepth.WithLabelValues(p.name).Set(0)
	return len(pending)
}
