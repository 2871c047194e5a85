// Package messaging implements direct messages between users: validation,
// persistence and the notifications that follow a stored message.
package messaging

import (
	"context"
	"time"
)

// Message is a persisted direct message.
type Message struct {
	ID         int64     `json:"messageId"`
	SenderID   int64     `json:"senderId"`
	ReceiverID int64     `json:"receiverId"`
	Content    string    `json:"content"`
	SentAt     time.Time `json:"sentAt"`
	Read       bool      `json:"read"`
}

// ConversationSummary is one entry of a user's conversation list.
type ConversationSummary struct {
	OtherUserID   int64     `json:"otherUserId"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

// Store persists and queries messages.
//
// Requirements:
//   - SaveMessage assigns a positive, increasing ID
//   - Conversation is ordered by sent time, then ID
//   - Conversations is ordered by last message time, newest first
type Store interface {
	SaveMessage(ctx context.Context, m Message) (Message, error)
	Conversation(ctx context.Context, userID, otherUserID int64) ([]Message, error)
	Conversations(ctx context.Context, userID int64) ([]ConversationSummary, error)
	MarkRead(ctx context.Context, userID, otherUserID int64) (int64, error)
	UnreadCount(ctx context.Context, userID int64) (int64, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
	Close() error
}
