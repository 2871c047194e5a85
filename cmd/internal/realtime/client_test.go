package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"petlink/cmd/internal/messaging"
	"petlink/cmd/internal/notify"
	v1 "petlink/contracts/realtime/v1"
)

func TestClient_Offer(t *testing.T) {
	t.Parallel()

	c := NewClient(7, "s7", 2)
	env := v1.Envelope{V: v1.Version, Type: v1.TypeNewMessage}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := c.Offer(ctx, env); err != nil {
			t.Fatalf("offer %d: %v", i, err)
		}
	}
	if err := c.Offer(ctx, env); !errors.Is(err, notify.ErrBackpressure) {
		t.Fatalf("err=%v want ErrBackpressure", err)
	}
	if got := c.Dropped(); got != 1 {
		t.Fatalf("dropped=%d want 1", got)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	<-c.Send
	if err := c.Offer(cancelled, env); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}

	c.Close()
	c.Close()
	if err := c.Offer(ctx, env); !errors.Is(err, notify.ErrSessionNotConnected) {
		t.Fatalf("err=%v want ErrSessionNotConnected", err)
	}
}

func TestClient_NilSafe(t *testing.T) {
	t.Parallel()

	var c *Client
	c.Close()
	if c.Dropped() != 0 {
		t.Fatalf("nil client dropped count")
	}
	select {
	case <-c.Done():
	default:
		t.Fatalf("nil client Done must be closed")
	}
}

func TestMaxFrameFitsLongestMessage(t *testing.T) {
	t.Parallel()

	payload, err := json.Marshal(v1.MessageSendPayload{
		ReceiverID:  1 << 40,
		ClientMsgID: strings.Repeat("c", 64),
		Content:     strings.Repeat("🐾", messaging.MaxContentRunes),
	})
	if err != nil {
		t.Fatal(err)
	}
	frame, err := json.Marshal(newEnvelope(v1.TypeMessageSend, payload, time.Now().UTC()))
	if err != nil {
		t.Fatal(err)
	}
	if len(frame) > maxFrameBytes {
		t.Fatalf("frame=%d bytes exceeds read limit %d", len(frame), maxFrameBytes)
	}
}
