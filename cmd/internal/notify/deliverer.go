package notify

import (
	"context"
	"errors"

	v1 "petlink/contracts/realtime/v1"
)

var (
	// ErrSessionNotConnected means the deliverer has no route to the session.
	ErrSessionNotConnected = errors.New("session not connected")
	// ErrBackpressure means the session's outbound queue is full.
	ErrBackpressure = errors.New("session send queue full")
)

// Deliverer pushes one envelope to one session.
type Deliverer interface {
	Deliver(ctx context.Context, sessionID string, env v1.Envelope) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, sessionID string, env v1.Envelope) error

func (f DelivererFunc) Deliver(ctx context.Context, sessionID string, env v1.Envelope) error {
	return f(ctx, sessionID, env)
}

// Chain tries each deliverer in order and stops at the first one that knows
// the session.
type Chain []Deliverer

func (c Chain) Deliver(ctx context.Context, sessionID string, env v1.Envelope) error {
	err := ErrSessionNotConnected
	for _, d := range c {
		if d == nil {
			continue
		}
		err = d.Deliver(ctx, sessionID, env)
		if !errors.Is(err, ErrSessionNotConnected) {
			return err
		}
	}
	return err
}
