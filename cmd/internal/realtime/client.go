package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"petlink/cmd/internal/notify"
	v1 "petlink/contracts/realtime/v1"
)

// Client is one websocket connection registered as a presence session.
//
// Send is never closed: deliverers on other goroutines may still hold the
// client after Close, so shutdown is signalled through Done instead.
type Client struct {
	SessionID   string
	UserID      int64
	ConnectedAt time.Time
	Send        chan v1.Envelope

	dropped   atomic.Int64
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(userID int64, sessionID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		SessionID:   sessionID,
		UserID:      userID,
		ConnectedAt: time.Now().UTC(),
		Send:        make(chan v1.Envelope, sendQueueSize),
		done:        make(chan struct{}),
	}
}

// Offer enqueues env without blocking. A closed client reports
// notify.ErrSessionNotConnected and a full queue notify.ErrBackpressure.
func (c *Client) Offer(ctx context.Context, env v1.Envelope) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.Done():
		return notify.ErrSessionNotConnected
	default:
	}

	select {
	case c.Send <- env:
		return nil
	default:
		c.dropped.Add(1)
		return notify.ErrBackpressure
	}
}

// Dropped counts envelopes refused because the send queue was full.
func (c *Client) Dropped() int64 {
	if c == nil {
		return 0
	}
	return c.dropped.Load()
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close is idempotent.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
