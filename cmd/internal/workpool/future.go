package workpool

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the lifecycle position of a submitted unit of work.
type State uint8

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool { return s >= StateCompleted }

// Future is the result handle of a unit submitted with Submit.
// It settles exactly once.
type Future[T any] struct {
	mu              sync.Mutex
	state           State
	cancelRequested bool
	value           T
	err             error
	finishedAt      time.Time

	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

func newFuture[T any](parent context.Context) *Future[T] {
	ctx, cancel := context.WithCancel(parent)
	return &Future[T]{
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func failedFuture[T any](err error) *Future[T] {
	f := newFuture[T](context.Background())
	f.mu.Lock()
	var zero T
	f.settleLocked(StateFailed, zero, err)
	f.mu.Unlock()
	return f
}

// State returns the current lifecycle state.
func (f *Future[T]) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Done reports whether the future has settled.
func (f *Future[T]) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Ready is closed once the future settles.
func (f *Future[T]) Ready() <-chan struct{} { return f.done }

// FinishedAt is the settle time, zero while pending or running.
func (f *Future[T]) FinishedAt() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finishedAt
}

// Result returns the settled value and error without blocking.
// It returns ErrNotDone until the future settles.
func (f *Future[T]) Result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.state.Terminal() {
		var zero T
		return zero, ErrNotDone
	}
	return f.value, f.err
}

// Wait blocks until the future settles or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Cancel requests cancellation. A unit that has not started never runs and
// settles as cancelled right away. A running unit sees its context cancelled
// and settles as cancelled when it returns, whatever it returns.
// Cancel reports false if the future had already settled.
func (f *Future[T]) Cancel() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state.Terminal() {
		return false
	}
	f.cancelRequested = true
	f.cancel()

	if f.state == StatePending {
		var zero T
		f.settleLocked(StateCancelled, zero, ErrCancelled)
	}
	return true
}

// begin moves a pending future to running. It returns false when the unit must not run.
func (f *Future[T]) begin() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StatePending {
		return false
	}
	if f.ctx.Err() != nil {
		// Interrupted by pool shutdown while still queued.
		var zero T
		f.settleLocked(StateCancelled, zero, ErrCancelled)
		return false
	}
	f.state = StateRunning
	return true
}

func (f *Future[T]) finish(v T, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state.Terminal() {
		return
	}

	var zero T
	switch {
	case f.cancelRequested:
		f.settleLocked(StateCancelled, zero, ErrCancelled)
	case err != nil && f.ctx.Err() != nil && isContextErr(err):
		f.settleLocked(StateCancelled, zero, ErrCancelled)
	case err != nil:
		f.settleLocked(StateFailed, zero, err)
	default:
		f.settleLocked(StateCompleted, v, nil)
	}
}

func (f *Future[T]) settleLocked(state State, v T, err error) {
	f.state = state
	f.value = v
	f.err = err
	f.finishedAt = time.Now()
	f.cancel()
	close(f.done)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
