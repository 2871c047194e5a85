// Package operations tracks asynchronous units of work by opaque tracking id.
//
// A Registry hands out a random id when work starts and reports the outcome
// to whoever polls that id. A terminal outcome is handed out once: the poll
// that observes it also removes the handle, and later polls see not_found.
package operations

import (
	"time"

	"petlink/cmd/internal/workpool"
)

// Kind names the operation family a handle belongs to.
type Kind string

const (
	KindStore      Kind = "store"
	KindLoad       Kind = "load"
	KindDelete     Kind = "delete"
	KindBatchStore Kind = "batch-store"
)

// Status is the caller-visible state of a tracking id.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusNotFound  Status = "not_found"
)

// Handle is the server-side record of one in-flight operation.
type Handle[T any] struct {
	ID        string
	Kind      Kind
	Subject   string
	StartedAt time.Time

	future *workpool.Future[T]
}

// Elapsed is measured from StartedAt to now.
func (h *Handle[T]) Elapsed(now time.Time) time.Duration {
	d := now.Sub(h.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

// Poll is the outcome of a single poll call.
type Poll[T any] struct {
	Status  Status
	Subject string
	Elapsed time.Duration
	Value   T
	Err     string
}

// Terminal reports whether this poll consumed the handle.
func (p Poll[T]) Terminal() bool {
	switch p.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}
