package notify

import (
	"context"
	"log/slog"
	"time"

	"petlink/cmd/identity/ids"
	"petlink/cmd/internal/workpool"
	v1 "petlink/contracts/realtime/v1"
)

const (
	defaultDeliveryTimeout = 5 * time.Second
	audienceTimeout        = 5 * time.Second
)

// SessionSource lists the live sessions of a user.
type SessionSource interface {
	Sessions(userID int64) []string
}

// Delivery is the outcome of one per-session task.
type Delivery struct {
	UserID    int64
	SessionID string
	Kind      Kind
	Err       error
}

// Pipeline delivers events to every session of a user in parallel.
type Pipeline struct {
	log       *slog.Logger
	sessions  SessionSource
	deliverer Deliverer

	pool         *workpool.Pool
	presencePool *workpool.Pool
	audience     AudiencePolicy

	deliveryTimeout time.Duration
	now             func() time.Time
	observe         func(Delivery)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithAudience sets who is told about presence changes. Default: NoAudience.
func WithAudience(a AudiencePolicy) Option {
	return func(p *Pipeline) {
		if a != nil {
			p.audience = a
		}
	}
}

// WithPresencePool runs presence audience resolution on pool instead of the
// delivery pool.
func WithPresencePool(pool *workpool.Pool) Option {
	return func(p *Pipeline) {
		if pool != nil {
			p.presencePool = pool
		}
	}
}

// WithDeliveryTimeout bounds a single session delivery.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.deliveryTimeout = d
		}
	}
}

// WithObserver receives every delivery outcome. fn runs on pool goroutines.
func WithObserver(fn func(Delivery)) Option {
	return func(p *Pipeline) { p.observe = fn }
}

// NewPipeline fans out over deliverer, running one task per session on pool.
func NewPipeline(sessions SessionSource, deliverer Deliverer, pool *workpool.Pool, log *slog.Logger, opts ...Option) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	p := &Pipeline{
		log:             log,
		sessions:        sessions,
		deliverer:       deliverer,
		pool:            pool,
		presencePool:    pool,
		audience:        NoAudience{},
		deliveryTimeout: defaultDeliveryTimeout,
		now:             time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Notify queues ev for every current session of userID and returns without
// waiting for any delivery.
func (p *Pipeline) Notify(userID int64, ev Event) {
	sessions := p.sessions.Sessions(userID)
	if len(sessions) == 0 {
		skippedTotal.WithLabelValues(string(ev.Kind)).Inc()
		p.log.Debug("notify.skip.no_sessions", "user_id", userID, "event", ev.Kind)
		return
	}

	now := p.now()
	env, err := ev.envelope(ids.NewULID(now), now)
	if err != nil {
		p.log.Error("notify.encode.fail", "user_id", userID, "event", ev.Kind, "err", err)
		return
	}

	for _, sid := range sessions {
		err := p.pool.Go(func(ctx context.Context) {
			p.deliver(ctx, userID, sid, ev.Kind, env)
		})
		if err != nil {
			p.record(Delivery{UserID: userID, SessionID: sid, Kind: ev.Kind, Err: err})
		}
	}
}

func (p *Pipeline) deliver(ctx context.Context, userID int64, sessionID string, kind Kind, env v1.Envelope) {
	ctx, cancel := context.WithTimeout(ctx, p.deliveryTimeout)
	defer cancel()

	err := p.deliverer.Deliver(ctx, sessionID, env)
	p.record(Delivery{UserID: userID, SessionID: sessionID, Kind: kind, Err: err})
}

func (p *Pipeline) record(d Delivery) {
	result := "delivered"
	if d.Err != nil {
		result = "failed"
		p.log.Warn("notify.deliver.fail", "user_id", d.UserID, "session_id", d.SessionID, "event", d.Kind, "err", d.Err)
	}
	deliveriesTotal.WithLabelValues(string(d.Kind), result).Inc()

	if p.observe != nil {
		p.observe(d)
	}
}

// PresenceChanged resolves the audience of an online/offline edge in the
// background and notifies each member.
func (p *Pipeline) PresenceChanged(userID int64, online bool) {
	ev := PresenceChange(userID, online)

	err := p.presencePool.Go(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, audienceTimeout)
		defer cancel()

		audience, err := p.audience.Audience(ctx, userID, online)
		if err != nil {
			p.log.Warn("notify.presence.audience.fail", "user_id", userID, "err", err)
			return
		}
		for _, uid := range audience {
			p.Notify(uid, ev)
		}
	})
	if err != nil {
		p.log.Warn("notify.presence.dispatch.fail", "user_id", userID, "online", online, "err", err)
	}
}
