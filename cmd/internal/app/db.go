package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"petlink/cmd/internal/messaging"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewDBPool builds a pgxpool with sane defaults and validates connectivity.
func NewDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	if err := PingDB(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// PingDB checks if we can acquire a connection within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}

type storeKind string

const (
	storeMemory   storeKind = "memory"
	storePostgres storeKind = "postgres"
	storeSQLite   storeKind = "sqlite"
)

// parseDatabaseURL maps PETLINK_DATABASE_URL to a store kind and the DSN that
// driver expects.
func parseDatabaseURL(raw string) (storeKind, string, error) {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	switch {
	case raw == "":
		return storeMemory, "", nil
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return storePostgres, raw, nil
	case strings.HasPrefix(lower, "sqlite://"):
		path := raw[len("sqlite://"):]
		if path == "" {
			return "", "", fmt.Errorf("database url %q: empty sqlite path", raw)
		}
		return storeSQLite, path, nil
	case strings.HasPrefix(lower, "file:"), raw == ":memory:":
		return storeSQLite, raw, nil
	default:
		return "", "", fmt.Errorf("database url: unsupported scheme in %q", redactURL(raw))
	}
}

func redactURL(raw string) string {
	scheme, _, ok := strings.Cut(raw, "://")
	if !ok {
		return "<redacted>"
	}
	return scheme + "://<redacted>"
}

// dataStore owns the message store and whatever connection backs it.
type dataStore struct {
	kind     storeKind
	messages messaging.Store
	pool     *pgxpool.Pool
	sqlite   *messaging.SQLiteStore
}

func openDataStore(ctx context.Context, cfg Config, log Logger) (*dataStore, error) {
	kind, dsn, err := parseDatabaseURL(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	switch kind {
	case storePostgres:
		pool, err := NewDBPool(ctx, Config{DatabaseURL: dsn, DBMaxConns: cfg.DBMaxConns, DBMinConns: cfg.DBMinConns})
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		// The pool is owned here; PostgresStore.Close is a no-op.
		st, err := messaging.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		log.Info("db.enabled.postgres_store")
		return &dataStore{kind: kind, messages: st, pool: pool}, nil

	case storeSQLite:
		st, err := messaging.OpenSQLite(dsn)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		log.Info("db.enabled.sqlite_store", "path", dsn)
		return &dataStore{kind: kind, messages: st, sqlite: st}, nil

	default:
		log.Info("db.disabled.inmemory_store")
		return &dataStore{kind: storeMemory, messages: messaging.NewInMemoryStore()}, nil
	}
}

func (s *dataStore) durable() bool { return s.kind != storeMemory }

// ping reports whether the backing database answers within timeout.
func (s *dataStore) ping(ctx context.Context, timeout time.Duration) error {
	switch {
	case s.pool != nil:
		return PingDB(ctx, s.pool, timeout)
	case s.sqlite != nil:
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return s.sqlite.Ping(ctx)
	default:
		return nil
	}
}

func (s *dataStore) Close() error {
	err := s.messages.Close()
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}
