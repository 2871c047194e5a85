// Package notify fans events out to every live session of a user.
//
// Notify returns as soon as one delivery task per session is queued on the
// pool. Deliveries are best-effort: a failed session is logged and counted,
// never reported to the caller.
package notify

import (
	"encoding/json"
	"time"

	v1 "petlink/contracts/realtime/v1"
)

// Kind tags an Event.
type Kind string

const (
	KindNewMessage     Kind = v1.TypeNewMessage
	KindTyping         Kind = v1.TypeTypingIndicator
	KindPresenceChange Kind = v1.TypePresenceChange
)

// Event is a fire-and-forget notification.
type Event struct {
	Kind    Kind
	Payload any
}

// NewMessage tells a receiver that messageID from senderID was stored.
func NewMessage(senderID, messageID int64, content string, sentAt time.Time) Event {
	return Event{Kind: KindNewMessage, Payload: v1.NewMessagePayload{
		SenderID:  senderID,
		MessageID: messageID,
		Content:   content,
		SentAt:    sentAt.UTC(),
	}}
}

// Typing tells a receiver that senderID started or stopped typing.
func Typing(senderID int64, isTyping bool) Event {
	return Event{Kind: KindTyping, Payload: v1.TypingIndicatorPayload{SenderID: senderID, IsTyping: isTyping}}
}

// PresenceChange reports an online/offline edge of userID.
func PresenceChange(userID int64, online bool) Event {
	return Event{Kind: KindPresenceChange, Payload: v1.PresenceChangePayload{UserID: userID, Online: online}}
}

func (e Event) envelope(id string, now time.Time) (v1.Envelope, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return v1.Envelope{}, err
	}
	return v1.Envelope{
		V:       v1.Version,
		Type:    string(e.Kind),
		ID:      id,
		TS:      now.UTC(),
		Payload: payload,
	}, nil
}
