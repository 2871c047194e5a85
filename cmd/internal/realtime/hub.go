package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"petlink/cmd/internal/notify"
	v1 "petlink/contracts/realtime/v1"
)

// Hub indexes the websocket clients connected to this node by session id.
// It is the local notify.Deliverer.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub constructs a Hub instance.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		clients: make(map[string]*Client),
	}
}

// Add indexes c, replacing any client previously held under the same session id.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	old := h.clients[c.SessionID]
	h.clients[c.SessionID] = c
	h.mu.Unlock()

	if old != nil && old != c {
		old.Close()
	}
}

// Remove drops c. A newer client under the same session id is kept.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.clients[c.SessionID]; ok && cur == c {
		delete(h.clients, c.SessionID)
	}
}

// Get returns the client holding sessionID.
func (h *Hub) Get(sessionID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[sessionID]
	return c, ok
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Deliver enqueues env on the session's send queue without blocking.
func (h *Hub) Deliver(ctx context.Context, sessionID string, env v1.Envelope) error {
	c, ok := h.Get(sessionID)
	if !ok {
		return notify.ErrSessionNotConnected
	}

	err := c.Offer(ctx, env)
	if errors.Is(err, notify.ErrBackpressure) {
		h.log.Debug("ws.deliver.backpressure",
			"session_id", sessionID,
			"user_id", c.UserID,
			"type", env.Type,
			"dropped", c.Dropped(),
		)
	}
	return err
}
