package operations

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"petlink/cmd/internal/workpool"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

const maxIDAttempts = 8

// Tracker is the start/poll contract consumers depend on.
type Tracker[T any] interface {
	Start(subject string, fn func(ctx context.Context) (T, error)) (string, error)
	Poll(id string) Poll[T]
	Cancel(id string) bool
}

// Registry maps tracking ids to handles for one operation kind.
type Registry[T any] struct {
	kind    Kind
	pool    *workpool.Pool
	log     *slog.Logger
	now     func() time.Time
	newID   func() string
	handles *xsync.MapOf[string, *Handle[T]]
}

// Option configures a Registry.
type Option func(*options)

type options struct {
	now   func() time.Time
	newID func() string
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides the random tracking id source.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) {
		if newID != nil {
			o.newID = newID
		}
	}
}

// NewRegistry builds a registry whose work runs on pool.
func NewRegistry[T any](kind Kind, pool *workpool.Pool, log *slog.Logger, opts ...Option) *Registry[T] {
	if log == nil {
		log = slog.Default()
	}
	o := options{now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	return &Registry[T]{
		kind:    kind,
		pool:    pool,
		log:     log.With("kind", string(kind)),
		now:     o.now,
		newID:   o.newID,
		handles: xsync.NewMapOf[string, *Handle[T]](),
	}
}

// Kind returns the operation kind served by r.
func (r *Registry[T]) Kind() Kind { return r.kind }

// Start submits fn and returns the tracking id of the new handle.
// fn may already have finished when Start returns.
func (r *Registry[T]) Start(subject string, fn func(ctx context.Context) (T, error)) (string, error) {
	startedAt := r.now()
	h := &Handle[T]{
		Kind:      r.kind,
		Subject:   subject,
		StartedAt: startedAt,
		future:    workpool.Submit(r.pool, fn),
	}

	id, err := r.insert(h)
	if err != nil {
		h.future.Cancel()
		return "", err
	}

	startedTotal.WithLabelValues(string(r.kind)).Inc()
	inflightGauge.WithLabelValues(string(r.kind)).Inc()

	r.log.Debug("operation.start", "tracking_id", id, "subject", subject)
	return id, nil
}

func (r *Registry[T]) insert(h *Handle[T]) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := r.newID()
		h.ID = id
		if _, loaded := r.handles.LoadOrStore(id, h); !loaded {
			return id, nil
		}
	}
	return "", ErrIDExhausted
}

// Poll reports the state of id. Only the poll that removes a terminal handle
// receives its value or error.
func (r *Registry[T]) Poll(id string) Poll[T] {
	h, ok := r.handles.Load(id)
	if !ok {
		return Poll[T]{Status: StatusNotFound}
	}

	now := r.now()
	if !h.future.Done() {
		return Poll[T]{Status: StatusPending, Subject: h.Subject, Elapsed: h.Elapsed(now)}
	}

	if !r.evict(id, h) {
		return Poll[T]{Status: StatusNotFound}
	}

	out := Poll[T]{Subject: h.Subject, Elapsed: h.Elapsed(now)}
	v, err := h.future.Result()
	switch h.future.State() {
	case workpool.StateCompleted:
		out.Status = StatusCompleted
		out.Value = v
	case workpool.StateCancelled:
		out.Status = StatusCancelled
	default:
		out.Status = StatusFailed
		out.Err = errorMessage(err)
	}

	finishedTotal.WithLabelValues(string(r.kind), string(out.Status)).Inc()
	r.log.Debug("operation.consumed", "tracking_id", id, "status", out.Status, "elapsed_ms", out.Elapsed.Milliseconds())
	return out
}

// evict removes id only while it still maps to h.
func (r *Registry[T]) evict(id string, h *Handle[T]) bool {
	removed := false
	r.handles.Compute(id, func(cur *Handle[T], loaded bool) (*Handle[T], bool) {
		if !loaded {
			return cur, true
		}
		if cur != h {
			return cur, false
		}
		removed = true
		return cur, true
	})
	if removed {
		inflightGauge.WithLabelValues(string(r.kind)).Dec()
	}
	return removed
}

// Cancel requests cancellation of a pending operation. The handle stays in
// the registry so the next poll reports cancelled.
func (r *Registry[T]) Cancel(id string) bool {
	h, ok := r.handles.Load(id)
	if !ok {
		return false
	}
	if !h.future.Cancel() {
		return false
	}
	r.log.Info("operation.cancel", "tracking_id", id)
	return true
}

// Sweep evicts handles that finished more than retention ago without being
// polled. Pending handles are kept regardless of age.
func (r *Registry[T]) Sweep(retention time.Duration) int {
	cutoff := r.now().Add(-retention)
	evicted := 0

	r.handles.Range(func(id string, h *Handle[T]) bool {
		if !h.future.Done() {
			return true
		}
		if h.future.FinishedAt().After(cutoff) {
			return true
		}
		if r.evict(id, h) {
			evicted++
			evictedTotal.WithLabelValues(string(r.kind)).Inc()
			r.log.Info("operation.evicted", "tracking_id", id, "subject", h.Subject, "state", h.future.State().String())
		}
		return true
	})
	return evicted
}

// Len returns the number of tracked handles.
func (r *Registry[T]) Len() int { return r.handles.Size() }

func errorMessage(err error) string {
	if err == nil {
		return "operation failed"
	}
	var pe *workpool.PanicError
	if errors.As(err, &pe) {
		return "internal error"
	}
	return err.Error()
}
