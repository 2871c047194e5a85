package workpool

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolClosed is returned through the Future of work submitted after Shutdown.
	ErrPoolClosed = errors.New("workpool: pool closed")
	// ErrNotDone is returned by Future.Result while the unit is still pending or running.
	ErrNotDone = errors.New("workpool: result not ready")
	// ErrCancelled is the error reported by a cancelled Future.
	ErrCancelled = errors.New("workpool: cancelled")
)

// PanicError carries a panic recovered from a unit of work.
type PanicError struct {
	Pool  string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("workpool %s: unit panicked: %v", e.Pool, e.Value)
}
