package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"petlink/cmd/internal/notify"
)

// MaxContentRunes bounds a single message.
const MaxContentRunes = 2000

// Notifier receives fire-and-forget events for a user.
type Notifier interface {
	Notify(userID int64, ev notify.Event)
}

// Service implements the direct message use-cases.
type Service struct {
	store    Store
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source used for SentAt.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds a Service. notifier may be nil.
func NewService(store Store, notifier Notifier, log *slog.Logger, opts ...ServiceOption) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{store: store, notifier: notifier, log: log, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Send validates and persists a message, then notifies the receiver. The
// receiver is only notified once the message is stored.
func (s *Service) Send(ctx context.Context, senderID, receiverID int64, content string) (Message, error) {
	content = strings.TrimSpace(content)
	if err := validateContent(content); err != nil {
		return Message{}, err
	}
	if err := s.requireUsers(ctx, senderID, receiverID); err != nil {
		return Message{}, err
	}

	stored, err := s.store.SaveMessage(ctx, Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		SentAt:     s.now().UTC(),
	})
	if err != nil {
		return Message{}, fmt.Errorf("save message: %w", err)
	}

	s.log.Info("messaging.send.ok", "message_id", stored.ID, "sender_id", senderID, "receiver_id", receiverID)
	if s.notifier != nil {
		s.notifier.Notify(receiverID, notify.NewMessage(senderID, stored.ID, stored.Content, stored.SentAt))
	}
	return stored, nil
}

// Typing forwards a typing indicator to the receiver. Nothing is stored.
func (s *Service) Typing(ctx context.Context, senderID, receiverID int64, isTyping bool) error {
	if err := s.requireUsers(ctx, senderID, receiverID); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.Notify(receiverID, notify.Typing(senderID, isTyping))
	}
	return nil
}

// MarkRead marks every unread message from otherUserID to userID as read.
func (s *Service) MarkRead(ctx context.Context, userID, otherUserID int64) (int64, error) {
	if userID <= 0 || otherUserID <= 0 {
		return 0, ErrInvalidInput
	}
	n, err := s.store.MarkRead(ctx, userID, otherUserID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return n, nil
}

// UnreadCount returns how many messages userID has not read.
func (s *Service) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	if userID <= 0 {
		return 0, ErrInvalidInput
	}
	return s.store.UnreadCount(ctx, userID)
}

// Conversation returns the messages exchanged by two users, oldest first.
func (s *Service) Conversation(ctx context.Context, userID, otherUserID int64) ([]Message, error) {
	if userID <= 0 || otherUserID <= 0 {
		return nil, ErrInvalidInput
	}
	return s.store.Conversation(ctx, userID, otherUserID)
}

// Conversations lists the users userID has exchanged messages with.
func (s *Service) Conversations(ctx context.Context, userID int64) ([]ConversationSummary, error) {
	if userID <= 0 {
		return nil, ErrInvalidInput
	}
	return s.store.Conversations(ctx, userID)
}

// Partners returns the other users of userID's conversations.
func (s *Service) Partners(ctx context.Context, userID int64) ([]int64, error) {
	return StorePartners{Store: s.store}.Partners(ctx, userID)
}

// StorePartners lists conversation partners straight from a Store. It lets
// the presence audience be built before the Service that notifies through it.
type StorePartners struct {
	Store Store
}

func (p StorePartners) Partners(ctx context.Context, userID int64) ([]int64, error) {
	convs, err := p.Store.Conversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(convs))
	for _, c := range convs {
		if c.OtherUserID != userID {
			out = append(out, c.OtherUserID)
		}
	}
	return out, nil
}

func (s *Service) requireUsers(ctx context.Context, ids ...int64) error {
	for _, id := range ids {
		if id <= 0 {
			return fmt.Errorf("%w: user id %d", ErrInvalidInput, id)
		}
		ok, err := s.store.UserExists(ctx, id)
		if err != nil {
			return fmt.Errorf("lookup user %d: %w", id, err)
		}
		if !ok {
			return fmt.Errorf("%w: %d", ErrUserNotFound, id)
		}
	}
	return nil
}

func validateContent(content string) error {
	if content == "" {
		return fmt.Errorf("%w: empty content", ErrInvalidInput)
	}
	if utf8.RuneCountInString(content) > MaxContentRunes {
		return fmt.Errorf("%w: content exceeds %d characters", ErrInvalidInput, MaxContentRunes)
	}
	return nil
}
