// Package executor runs tasks and hands their results back through futures.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Executor runs tasks asynchronously.
type Executor interface {
	Execute(task func()) error
}

// GoroutineExecutor runs every task on a fresh goroutine.
type GoroutineExecutor struct{}

func (GoroutineExecutor) Execute(task func()) error {
	go task()
	return nil
}

// blockingGuard vetoes a blocking wait issued from the wrong goroutine.
type blockingGuard interface {
	checkBlocking() error
}

// owner is implemented by executors whose futures need a guard or dispatch
// callbacks somewhere specific.
type owner interface {
	guard() blockingGuard
	callbackExecutor() Executor
	submitTask(run func(), abort func(error)) error
}

// Future is the eventual result of a task.
type Future[T any] struct {
	done chan struct{}

	mu        sync.Mutex
	completed bool
	value     T
	err       error
	callbacks []func(T, error)

	guard        blockingGuard
	callbackExec Executor
	cancel       context.CancelFunc
}

func newFuture[T any](g blockingGuard, cb Executor) *Future[T] {
	return &Future[T]{done: make(chan struct{}), guard: g, callbackExec: cb}
}

// Completed returns a future already holding v.
func Completed[T any](v T) *Future[T] {
	f := newFuture[T](nil, nil)
	f.complete(v, nil)
	return f
}

// Failed returns a future already holding err.
func Failed[T any](err error) *Future[T] {
	f := newFuture[T](nil, nil)
	var zero T
	f.complete(zero, err)
	return f
}

// Promise is the write side of a future completed outside any executor.
type Promise[T any] struct {
	Future *Future[T]
}

func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{Future: newFuture[T](nil, nil)}
}

// Complete sets the result. Only the first call has an effect.
func (p *Promise[T]) Complete(v T, err error) bool {
	return p.Future.complete(v, err)
}

func (f *Future[T]) complete(v T, err error) bool {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return false
	}
	f.completed = true
	f.value, f.err = v, err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		f.dispatch(cb, v, err)
	}
	return true
}

func (f *Future[T]) dispatch(cb func(T, error), v T, err error) {
	run := func() { cb(v, err) }
	if f.callbackExec != nil {
		execErr := f.callbackExec.Execute(run)
		if execErr == nil {
			return
		}
		slog.Warn("callback executor rejected task, running on a new goroutine", "error", execErr)
	}
	go run()
}

// Done is closed once the future completes.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// IsDone reports whether the future has completed.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Get waits for the result. Waiting for an incomplete future on the worker
// that must produce it fails immediately with that executor's deadlock error.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	var zero T
	if !f.IsDone() && f.guard != nil {
		if err := f.guard.checkBlocking(); err != nil {
			return zero, err
		}
	}
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.value, f.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Cancel completes the future with context.Canceled and cancels the task's
// context. It reports whether this call completed the future.
func (f *Future[T]) Cancel() bool {
	var zero T
	ok := f.complete(zero, context.Canceled)
	if f.cancel != nil {
		f.cancel()
	}
	return ok
}

// AddCallback registers fn to receive the result. Callbacks never run on the
// caller's goroutine.
func (f *Future[T]) AddCallback(fn func(T, error)) {
	f.mu.Lock()
	if !f.completed {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	v, err := f.value, f.err
	f.mu.Unlock()
	f.dispatch(fn, v, err)
}

// Submit runs fn on ex and returns its future. The context passed to fn is
// cancelled when the future is cancelled or fn returns.
func Submit[T any](ctx context.Context, ex Executor, fn func(context.Context) (T, error)) *Future[T] {
	var (
		g  blockingGuard
		cb Executor
		o  owner
	)
	if ow, ok := ex.(owner); ok {
		o = ow
		g, cb = ow.guard(), ow.callbackExecutor()
	}
	f := newFuture[T](g, cb)
	taskCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel

	run := func() {
		defer cancel()
		if f.IsDone() {
			return
		}
		var zero T
		defer func() {
			if r := recover(); r != nil {
				f.complete(zero, fmt.Errorf("task panicked: %v", r))
			}
		}()
		v, err := fn(taskCtx)
		f.complete(v, err)
	}
	abort := func(err error) {
		defer cancel()
		var zero T
		f.complete(zero, err)
	}

	var err error
	if o != nil {
		err = o.submitTask(run, abort)
	} else {
		err = ex.Execute(run)
	}
	if err != nil {
		abort(err)
	}
	return f
}
