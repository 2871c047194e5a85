// Package v1 defines the PetLink Realtime Protocol v1 contract.
//
// Field names are snake_case on the wire.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Type constants (wire-stable).
const (
	// TypeHello starts a session handshake (client -> server).
	TypeHello = "hello"
	// TypeHelloAck acknowledges the session handshake (server -> client).
	TypeHelloAck = "hello_ack"

	// TypeTyping reports that the user started or stopped typing to a receiver (client -> server).
	TypeTyping = "typing"
	// TypeMessageSend requests sending a direct message (client -> server).
	TypeMessageSend = "message_send"
	// TypeMessageAck acknowledges a persisted message (server -> client).
	TypeMessageAck = "message_ack"

	// TypeNewMessage notifies a receiver about a persisted message (server -> client).
	TypeNewMessage = "new_message"
	// TypeTypingIndicator notifies a receiver that the sender is typing (server -> client).
	TypeTypingIndicator = "typing_indicator"
	// TypePresenceChange notifies that a user went online or offline (server -> client).
	TypePresenceChange = "presence_change"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeHello,
		TypeHelloAck,
		TypeTyping,
		TypeMessageSend,
		TypeMessageAck,
		TypeNewMessage,
		TypeTypingIndicator,
		TypePresenceChange,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// HelloPayload is sent by the client to initiate a session.
type HelloPayload struct{}

// HelloAckPayload carries the server-assigned session id.
type HelloAckPayload struct {
	SessionID string `json:"session_id"`
	UserID    int64  `json:"user_id"`
}

// TypingPayload is sent by a client while composing a message.
type TypingPayload struct {
	ReceiverID int64 `json:"receiver_id"`
	IsTyping   bool  `json:"is_typing"`
}

// MessageSendPayload requests sending a direct message.
type MessageSendPayload struct {
	ReceiverID  int64  `json:"receiver_id"`
	ClientMsgID string `json:"client_msg_id,omitempty"`
	Content     string `json:"content"`
}

// MessageAckPayload acknowledges a send request with the stored message id.
type MessageAckPayload struct {
	ClientMsgID string `json:"client_msg_id,omitempty"`
	MessageID   int64  `json:"message_id"`
}

// NewMessagePayload is delivered to every session of the receiver.
type NewMessagePayload struct {
	SenderID  int64     `json:"sender_id"`
	MessageID int64     `json:"message_id"`
	Content   string    `json:"content"`
	SentAt    time.Time `json:"sent_at"`
}

// TypingIndicatorPayload is delivered to every session of the receiver.
type TypingIndicatorPayload struct {
	SenderID int64 `json:"sender_id"`
	IsTyping bool  `json:"is_typing"`
}

// PresenceChangePayload reports an online/offline edge.
type PresenceChangePayload struct {
	UserID int64 `json:"user_id"`
	Online bool  `json:"online"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
