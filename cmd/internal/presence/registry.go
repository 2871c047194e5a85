// Package presence tracks which users hold at least one live session.
//
// Sessions are grouped per user. The first session of a user and the removal
// of its last session are online/offline edges. Both are decided and numbered
// while the user's entry is locked, so concurrent register and unregister
// calls for one user produce exactly one event per edge. The transition hook
// runs later on the registry's own goroutine, in edge order.
package presence

import (
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Transition is an online/offline edge for a user.
type Transition struct {
	// Seq orders transitions across all users, starting at 1.
	Seq    uint64
	UserID int64
	Online bool
	At     time.Time
}

type sessionEntry struct {
	UserID int64
	SeenAt time.Time
}

type transitionHook func(Transition)

// Registry is safe for concurrent use. Reads never block writers.
type Registry struct {
	log *slog.Logger
	now func() time.Time

	// sessions holds copy-on-write slices; a published slice is never mutated.
	sessions *xsync.MapOf[int64, []string]
	owners   *xsync.MapOf[string, sessionEntry]

	hook  atomic.Pointer[transitionHook]
	seq   atomic.Uint64
	edges *dispatcher
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(log *slog.Logger, opts ...Option) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		log:      log,
		now:      time.Now,
		sessions: xsync.NewMapOf[int64, []string](),
		owners:   xsync.NewMapOf[string, sessionEntry](),
		edges:    newDispatcher(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// OnTransition installs fn as the receiver of online/offline edges, replacing
// any previous one. fn runs on a single registry goroutine after the edge is
// visible to readers; a slow fn delays later edges but never a caller.
func (r *Registry) OnTransition(fn func(Transition)) {
	if fn == nil {
		r.hook.Store(nil)
		return
	}
	h := transitionHook(fn)
	r.hook.Store(&h)
}

// Register adds sessionID to userID. Registering a known session again only
// refreshes its last-seen time. A session owned by another user is moved.
func (r *Registry) Register(userID int64, sessionID string) {
	r.register(userID, sessionID, true)
}

// RegisterOwned is Register for callers that must not take over another
// user's session. It reports false when sessionID belongs to someone else.
func (r *Registry) RegisterOwned(userID int64, sessionID string) bool {
	return r.register(userID, sessionID, false)
}

func (r *Registry) register(userID int64, sessionID string, move bool) bool {
	if sessionID == "" {
		return false
	}

	for {
		if prev, ok := r.owners.Load(sessionID); ok && prev.UserID != userID {
			if !move {
				return false
			}
			r.detach(sessionID, prev.UserID, nil)
			continue
		}

		now := r.now()
		var (
			committed bool
			foreign   bool
			edge      *Transition
		)
		r.sessions.Compute(userID, func(cur []string, loaded bool) ([]string, bool) {
			e, existed := r.owners.LoadOrStore(sessionID, sessionEntry{UserID: userID, SeenAt: now})
			if existed && e.UserID != userID {
				// Claimed by another user in the meantime.
				foreign = true
				return cur, !loaded
			}
			committed = true

			if existed {
				r.owners.Store(sessionID, sessionEntry{UserID: userID, SeenAt: now})
			}
			if slices.Contains(cur, sessionID) {
				return cur, false
			}

			next := append(slices.Clone(cur), sessionID)
			if len(cur) == 0 {
				edge = r.record(Transition{UserID: userID, Online: true, At: now})
			}
			return next, false
		})
		r.publish(edge)
		if committed {
			return true
		}
		if foreign && !move {
			return false
		}
	}
}

// Unregister removes sessionID from its owner. It reports whether the session was known.
func (r *Registry) Unregister(sessionID string) bool {
	for {
		e, ok := r.owners.Load(sessionID)
		if !ok {
			return false
		}
		if r.detach(sessionID, e.UserID, nil) {
			return true
		}
	}
}

// UnregisterOwned removes sessionID only while userID owns it. ok is false
// when the session belongs to another user; removed reports whether it was
// dropped.
func (r *Registry) UnregisterOwned(userID int64, sessionID string) (removed, ok bool) {
	for {
		e, known := r.owners.Load(sessionID)
		if !known {
			return false, true
		}
		if e.UserID != userID {
			return false, false
		}
		if r.detach(sessionID, userID, nil) {
			return true, true
		}
	}
}

// detach removes sessionID from userID while userID still owns it, unless
// keep reports true for the current entry.
func (r *Registry) detach(sessionID string, userID int64, keep func(sessionEntry) bool) bool {
	removed := false
	var edge *Transition
	r.sessions.Compute(userID, func(cur []string, loaded bool) ([]string, bool) {
		e, ok := r.owners.Load(sessionID)
		if !ok || e.UserID != userID || (keep != nil && keep(e)) {
			return cur, !loaded
		}
		r.owners.Delete(sessionID)
		removed = true

		next := slices.DeleteFunc(slices.Clone(cur), func(s string) bool { return s == sessionID })
		if len(next) > 0 {
			return next, false
		}
		if len(cur) > 0 {
			edge = r.record(Transition{UserID: userID, Online: false, At: r.now()})
		}
		return nil, true
	})
	r.publish(edge)
	return removed
}

// Touch refreshes the last-seen time of a live session.
func (r *Registry) Touch(sessionID string) bool {
	now := r.now()
	touched := false
	r.owners.Compute(sessionID, func(e sessionEntry, loaded bool) (sessionEntry, bool) {
		if !loaded {
			return e, true
		}
		touched = true
		e.SeenAt = now
		return e, false
	})
	return touched
}

// IsOnline reports whether userID has at least one session.
func (r *Registry) IsOnline(userID int64) bool {
	s, ok := r.sessions.Load(userID)
	return ok && len(s) > 0
}

// OnlineCount returns the number of users with at least one session.
func (r *Registry) OnlineCount() int {
	n := 0
	r.sessions.Range(func(_ int64, s []string) bool {
		if len(s) > 0 {
			n++
		}
		return true
	})
	return n
}

// Sessions returns a snapshot of userID's session ids.
func (r *Registry) Sessions(userID int64) []string {
	s, ok := r.sessions.Load(userID)
	if !ok {
		return nil
	}
	return slices.Clone(s)
}

// OwnerOf returns the user a session belongs to.
func (r *Registry) OwnerOf(sessionID string) (int64, bool) {
	e, ok := r.owners.Load(sessionID)
	return e.UserID, ok
}

// CleanupInactiveSessions drops users whose session set is empty.
// Normal unregistration never leaves such entries behind.
func (r *Registry) CleanupInactiveSessions() int {
	removed := 0
	r.sessions.Range(func(userID int64, s []string) bool {
		if len(s) > 0 {
			return true
		}
		r.sessions.Compute(userID, func(cur []string, loaded bool) ([]string, bool) {
			if loaded && len(cur) == 0 {
				removed++
				return nil, true
			}
			return cur, !loaded
		})
		return true
	})
	if removed > 0 {
		r.log.Info("presence.cleanup", "removed_users", removed)
	}
	return removed
}

// ReclaimIdle unregisters sessions not seen for longer than maxIdle.
func (r *Registry) ReclaimIdle(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	cutoff := r.now().Add(-maxIdle)
	fresh := func(e sessionEntry) bool { return e.SeenAt.After(cutoff) }

	reclaimed := 0
	r.owners.Range(func(sessionID string, e sessionEntry) bool {
		if fresh(e) {
			return true
		}
		if r.detach(sessionID, e.UserID, fresh) {
			reclaimed++
			r.log.Info("presence.session.reclaimed", "session_id", sessionID, "user_id", e.UserID)
		}
		return true
	})
	return reclaimed
}

// ForceOffline removes every session of userID and returns how many there were.
func (r *Registry) ForceOffline(userID int64) int {
	removed := 0
	var edge *Transition
	r.sessions.Compute(userID, func(cur []string, loaded bool) ([]string, bool) {
		for _, sid := range cur {
			if e, ok := r.owners.Load(sid); ok && e.UserID == userID {
				r.owners.Delete(sid)
			}
		}
		removed = len(cur)
		if removed > 0 {
			edge = r.record(Transition{UserID: userID, Online: false, At: r.now()})
		}
		return nil, true
	})
	r.publish(edge)
	if removed > 0 {
		r.log.Info("presence.force_offline", "user_id", userID, "sessions", removed)
	}
	return removed
}

// Flush waits until every transition recorded so far was handed to the hook.
func (r *Registry) Flush() {
	r.edges.wait(r.seq.Load())
}

// Close delivers the transitions already in order and stops the hook
// goroutine. Later edges still update the registry but reach no hook.
func (r *Registry) Close() {
	r.edges.close()
}

// record numbers t and updates metrics. It runs under the user's entry lock
// and does nothing else there.
func (r *Registry) record(t Transition) *Transition {
	t.Seq = r.seq.Add(1)

	direction := "offline"
	if t.Online {
		direction = "online"
		onlineUsersGauge.Inc()
	} else {
		onlineUsersGauge.Dec()
	}
	transitionsTotal.WithLabelValues(direction).Inc()
	return &t
}

// publish hands a recorded edge to the dispatcher once the entry lock is gone.
func (r *Registry) publish(t *Transition) {
	if t == nil {
		return
	}
	r.edges.push(*t, r.dispatchLoop)
}

func (r *Registry) dispatchLoop() {
	defer close(r.edges.done)
	for {
		select {
		case <-r.edges.wake:
			r.deliverPending()
		case <-r.edges.stop:
			r.deliverPending()
			return
		}
	}
}

func (r *Registry) deliverPending() {
	for {
		batch := r.edges.take()
		if len(batch) == 0 {
			return
		}
		for _, t := range batch {
			r.deliver(t)
		}
		r.edges.markDelivered(batch[len(batch)-1].Seq)
	}
}

func (r *Registry) deliver(t Transition) {
	direction := "offline"
	if t.Online {
		direction = "online"
	}
	r.log.Debug("presence."+direction, "user_id", t.UserID, "seq", t.Seq)

	h := r.hook.Load()
	if h == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("presence.hook.panic", "user_id", t.UserID, "seq", t.Seq, "panic", rec)
		}
	}()
	(*h)(t)
}
