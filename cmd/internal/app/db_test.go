package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDatabaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		kind    storeKind
		dsn     string
		wantErr bool
	}{
		{in: "", kind: storeMemory},
		{in: "postgres://u:p@db/petlink", kind: storePostgres, dsn: "postgres://u:p@db/petlink"},
		{in: "POSTGRESQL://db/petlink", kind: storePostgres, dsn: "POSTGRESQL://db/petlink"},
		{in: "sqlite://data/petlink.db", kind: storeSQLite, dsn: "data/petlink.db"},
		{in: "file:petlink.db?cache=shared", kind: storeSQLite, dsn: "file:petlink.db?cache=shared"},
		{in: ":memory:", kind: storeSQLite, dsn: ":memory:"},
		{in: "sqlite://", wantErr: true},
		{in: "mysql://u:secret@db/petlink", wantErr: true},
	}

	for _, tc := range cases {
		kind, dsn, err := parseDatabaseURL(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseDatabaseURL(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseDatabaseURL(%q): %v", tc.in, err)
		}
		if kind != tc.kind || dsn != tc.dsn {
			t.Fatalf("parseDatabaseURL(%q)=(%s,%q) want (%s,%q)", tc.in, kind, dsn, tc.kind, tc.dsn)
		}
	}
}

func TestRedactURL(t *testing.T) {
	t.Parallel()

	if got := redactURL("mysql://u:secret@db/x"); got != "mysql://<redacted>" {
		t.Fatalf("redactURL=%q", got)
	}
	if got := redactURL("nonsense"); got != "<redacted>" {
		t.Fatalf("redactURL=%q", got)
	}
}

func TestOpenDataStore_SQLite(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := Config{DatabaseURL: "sqlite://" + filepath.Join(t.TempDir(), "db", "petlink.db")}

	st, err := openDataStore(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("openDataStore: %v", err)
	}
	defer func() { _ = st.Close() }()

	if !st.durable() || st.kind != storeSQLite {
		t.Fatalf("kind=%s durable=%v", st.kind, st.durable())
	}
	if err := st.ping(context.Background(), time.Second); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestOpenDataStore_Memory(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := openDataStore(context.Background(), Config{}, log)
	if err != nil {
		t.Fatalf("openDataStore: %v", err)
	}
	if st.durable() {
		t.Fatalf("memory store reported durable")
	}
	if err := st.ping(context.Background(), time.Second); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
