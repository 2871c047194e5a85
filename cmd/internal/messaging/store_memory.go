package messaging

import (
	"context"
	"sort"
	"sync"
	"time"
)

const memMaxMessages = 100_000

// InMemoryStore is a dev-only fallback when no database is configured.
//
// Without known users every positive user id exists. Once a user is added
// the set is closed and UserExists only reports added ids.
type InMemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	msgs   []Message
	users  map[int64]struct{}
}

// NewInMemoryStore constructs an InMemoryStore. Passing users closes the
// user set.
func NewInMemoryStore(users ...int64) *InMemoryStore {
	s := &InMemoryStore{msgs: make([]Message, 0, 256)}
	for _, id := range users {
		s.addUserLocked(id)
	}
	return s
}

// AddUser adds id to the known users, closing the user set.
func (s *InMemoryStore) AddUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addUserLocked(id)
	return nil
}

func (s *InMemoryStore) addUserLocked(id int64) {
	if s.users == nil {
		s.users = make(map[int64]struct{})
	}
	s.users[id] = struct{}{}
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) UserExists(ctx context.Context, userID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if userID <= 0 {
		return false, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.users == nil {
		return true, nil
	}
	_, ok := s.users[userID]
	return ok, nil
}

func (s *InMemoryStore) SaveMessage(ctx context.Context, m Message) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	m.ID = s.nextID
	m.Read = false
	s.msgs = append(s.msgs, m)

	// Bound memory to avoid unbounded growth in dev.
	if len(s.msgs) > memMaxMessages {
		s.msgs = s.msgs[len(s.msgs)-memMaxMessages:]
	}
	return m, nil
}

func (s *InMemoryStore) Conversation(ctx context.Context, userID, otherUserID int64) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var out []Message
	for _, m := range s.msgs {
		if between(m, userID, otherUserID) {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SentAt.Before(out[j].SentAt)
	})
	return out, nil
}

func (s *InMemoryStore) Conversations(ctx context.Context, userID int64) ([]ConversationSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	last := make(map[int64]time.Time)
	s.mu.RLock()
	for _, m := range s.msgs {
		var other int64
		switch userID {
		case m.SenderID:
			other = m.ReceiverID
		case m.ReceiverID:
			other = m.SenderID
		default:
			continue
		}
		if t, ok := last[other]; !ok || m.SentAt.After(t) {
			last[other] = m.SentAt
		}
	}
	s.mu.RUnlock()

	out := make([]ConversationSummary, 0, len(last))
	for other, t := range last {
		out = append(out, ConversationSummary{OtherUserID: other, LastMessageAt: t})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].OtherUserID < out[j].OtherUserID
		}
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out, nil
}

func (s *InMemoryStore) MarkRead(ctx context.Context, userID, otherUserID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for i := range s.msgs {
		m := &s.msgs[i]
		if m.ReceiverID == userID && m.SenderID == otherUserID && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, m := range s.msgs {
		if m.ReceiverID == userID && !m.Read {
			n++
		}
	}
	return n, nil
}

func between(m Message, a, b int64) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}
