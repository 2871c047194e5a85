package messaging

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// PostgresStore does NOT own the pgx pool. The caller must close the pool,
// so Close is a no-op.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "petlink").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("messaging: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("messaging: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "petlink",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("messaging: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Migrate creates the schema and tables when they are missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	users := pgIdent(s.schema, "users")
	messages := pgIdent(s.schema, "messages")

	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS ` + pgx.Identifier{s.schema}.Sanitize(),
		`CREATE TABLE IF NOT EXISTS ` + users + ` (
		     id         BIGINT PRIMARY KEY,
		     created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		 )`,
		`CREATE TABLE IF NOT EXISTS ` + messages + ` (
		     id          BIGSERIAL PRIMARY KEY,
		     sender_id   BIGINT NOT NULL REFERENCES ` + users + ` (id),
		     receiver_id BIGINT NOT NULL REFERENCES ` + users + ` (id),
		     content     TEXT NOT NULL,
		     sent_at     TIMESTAMPTZ NOT NULL,
		     is_read     BOOLEAN NOT NULL DEFAULT false
		 )`,
		`CREATE INDEX IF NOT EXISTS messages_pair_idx ON ` + messages + ` (sender_id, receiver_id, sent_at)`,
		`CREATE INDEX IF NOT EXISTS messages_unread_idx ON ` + messages + ` (receiver_id) WHERE NOT is_read`,
	}
	for _, q := range stmts {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("messaging migrate: %w", err)
		}
	}
	return nil
}

// AddUser records id as a known user. Users are normally owned by the
// account service; this exists for seeding and tests.
func (s *PostgresStore) AddUser(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+pgIdent(s.schema, "users")+` (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id)
	return err
}

func (s *PostgresStore) UserExists(ctx context.Context, userID int64) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+pgIdent(s.schema, "users")+` WHERE id = $1)`, userID,
	).Scan(&ok)
	return ok, err
}

func (s *PostgresStore) SaveMessage(ctx context.Context, m Message) (Message, error) {
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}
	m.Read = false

	err := s.pool.QueryRow(ctx,
		`INSERT INTO `+pgIdent(s.schema, "messages")+` (sender_id, receiver_id, content, sent_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		m.SenderID, m.ReceiverID, m.Content, m.SentAt,
	).Scan(&m.ID)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) Conversation(ctx context.Context, userID, otherUserID int64) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, sender_id, receiver_id, content, sent_at, is_read
		   FROM `+pgIdent(s.schema, "messages")+`
		  WHERE (sender_id = $1 AND receiver_id = $2)
		     OR (sender_id = $2 AND receiver_id = $1)
		  ORDER BY sent_at ASC, id ASC`,
		userID, otherUserID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.SentAt, &m.Read); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Conversations(ctx context.Context, userID int64) ([]ConversationSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS other_id,
		        MAX(sent_at) AS last_at
		   FROM `+pgIdent(s.schema, "messages")+`
		  WHERE sender_id = $1 OR receiver_id = $1
		  GROUP BY 1
		  ORDER BY last_at DESC, other_id ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var c ConversationSummary
		if err := rows.Scan(&c.OtherUserID, &c.LastMessageAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkRead(ctx context.Context, userID, otherUserID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+pgIdent(s.schema, "messages")+`
		    SET is_read = true
		  WHERE receiver_id = $1 AND sender_id = $2 AND NOT is_read`,
		userID, otherUserID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM `+pgIdent(s.schema, "messages")+` WHERE receiver_id = $1 AND NOT is_read`,
		userID,
	).Scan(&n)
	return n, err
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
