package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	v1 "petlink/contracts/realtime/v1"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is where edge nodes subscribe for session deliveries.
const DefaultSubjectPrefix = "petlink.deliver"

// Publisher is the subset of *nats.Conn used for delivery.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSDeliverer hands envelopes to whichever node holds the session by
// publishing them on <prefix>.<sessionID>.
//
// Presence is per node, so the pipeline only targets sessions registered on
// this node. Behind a Chain this only reaches a session registered here
// (over REST, say) whose socket another node holds.
type NATSDeliverer struct {
	pub    Publisher
	prefix string
}

// NewNATSDeliverer publishes through pub. An empty prefix means DefaultSubjectPrefix.
func NewNATSDeliverer(pub Publisher, prefix string) *NATSDeliverer {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSDeliverer{pub: pub, prefix: prefix}
}

// Subject returns the subject a session's envelopes are published on.
func (d *NATSDeliverer) Subject(sessionID string) string {
	return d.prefix + "." + sessionID
}

func (d *NATSDeliverer) Deliver(ctx context.Context, sessionID string, env v1.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sessionID == "" || strings.ContainsAny(sessionID, ".*> \t") {
		return fmt.Errorf("nats deliver: invalid session id %q", sessionID)
	}

	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("nats deliver: encode: %w", err)
	}
	if err := d.pub.Publish(d.Subject(sessionID), b); err != nil {
		return fmt.Errorf("nats deliver: %w", err)
	}
	return nil
}

// ConnectNATS dials url with reconnects enabled.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("nats: empty url")
	}
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}

// SubscribeDeliveries relays envelopes published for any session to local.
// Sessions local does not hold are dropped: another node owns them.
func SubscribeDeliveries(nc *nats.Conn, prefix string, local Deliverer, log *slog.Logger) (*nats.Subscription, error) {
	r := newRelay(prefix, local, log)
	return nc.Subscribe(r.prefix+".*", func(m *nats.Msg) {
		r.handle(m.Subject, m.Data)
	})
}

type relay struct {
	prefix string
	local  Deliverer
	log    *slog.Logger
}

func newRelay(prefix string, local Deliverer, log *slog.Logger) *relay {
	if log == nil {
		log = slog.Default()
	}
	return &relay{prefix: NewNATSDeliverer(nil, prefix).prefix, local: local, log: log}
}

func (r *relay) handle(subject string, data []byte) {
	sessionID, ok := strings.CutPrefix(subject, r.prefix+".")
	if !ok || sessionID == "" {
		return
	}

	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.log.Warn("notify.relay.decode.fail", "subject", subject, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultDeliveryTimeout)
	defer cancel()

	err := r.local.Deliver(ctx, sessionID, env)
	switch {
	case err == nil:
		deliveriesTotal.WithLabelValues(env.Type, "relayed").Inc()
	case errors.Is(err, ErrSessionNotConnected):
	default:
		r.log.Warn("notify.relay.deliver.fail", "session_id", sessionID, "event", env.Type, "err", err)
	}
}
