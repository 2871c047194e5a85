package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"petlink/cmd/internal/workpool"
	"petlink/cmd/security/token"
	v1 "petlink/contracts/realtime/v1"

	"github.com/coder/websocket"
)

func TestRuntimeBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "explicit localhost", in: "127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v4", in: "0.0.0.0:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v6", in: "[::]:9090", want: "http://127.0.0.1:9090"},
		{name: "ipv6 host", in: "[2001:db8::1]:9090", want: "http://[2001:db8::1]:9090"},
		{name: "port only", in: ":8080", want: "http://127.0.0.1:8080"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := runtimeBaseURL(tc.in)
			if got != tc.want {
				t.Fatalf("runtimeBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
			}
		})
	}
}

func TestWSBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "http://127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
		{in: "https://petlink.example.com", want: "wss://petlink.example.com"},
		{in: "127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
	}

	for _, tc := range cases {
		got := wsBaseURL(tc.in)
		if got != tc.want {
			t.Fatalf("wsBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestLoadConfig_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("PETLINK_POOL_FILE_CORE", "2")
	t.Setenv("PETLINK_POOL_FILE_IDLE", "5s")
	t.Setenv("PETLINK_POOL_BATCH_MAX", "not-a-number")
	t.Setenv("PETLINK_AUTH_REQUIRED", "false")
	t.Setenv("PETLINK_CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg := LoadConfig()

	if cfg.HTTPAddr != "0.0.0.0:8080" || cfg.PublicBasePath != "/server" || cfg.MaxUploadBytes != 10<<20 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.AuthRequired {
		t.Fatalf("PETLINK_AUTH_REQUIRED=false was ignored")
	}

	want := map[string]workpool.Config{
		"message": {Name: "message", CoreSize: 5, MaxSize: 20, QueueCapacity: 200, IdleTimeout: time.Minute},
		"general": {Name: "general", CoreSize: 3, MaxSize: 10, QueueCapacity: 100, IdleTimeout: time.Minute},
		"file":    {Name: "file", CoreSize: 2, MaxSize: 16, QueueCapacity: 50, IdleTimeout: 5 * time.Second},
		"batch":   {Name: "batch", CoreSize: 4, MaxSize: 8, QueueCapacity: 20, IdleTimeout: 5 * time.Minute},
	}
	got := map[string]workpool.Config{
		"message": cfg.MessagePool,
		"general": cfg.GeneralPool,
		"file":    cfg.FilePool,
		"batch":   cfg.BatchPool,
	}
	for name, w := range want {
		if got[name] != w {
			t.Fatalf("pool %s=%+v want %+v", name, got[name], w)
		}
	}

	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("cors origins=%q", cfg.CORSAllowedOrigins)
	}
}

func TestNewVerifier_Policy(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	v, err := newVerifier(Config{AuthRequired: false}, log)
	if err != nil || v != nil {
		t.Fatalf("auth disabled: verifier=%v err=%v", v, err)
	}

	t.Setenv(token.SecretEnvKey, "")
	if _, err := newVerifier(Config{AuthRequired: true}, log); err == nil || !strings.Contains(err.Error(), token.SecretEnvKey) {
		t.Fatalf("missing secret: err=%v", err)
	}

	t.Setenv(token.SecretEnvKey, "short")
	if _, err := newVerifier(Config{AuthRequired: true}, log); err == nil || !strings.Contains(err.Error(), "too short") {
		t.Fatalf("short secret: err=%v", err)
	}

	t.Setenv(token.SecretEnvKey, strings.Repeat("s", token.MinSecretBytes))
	if v, err := newVerifier(Config{AuthRequired: true}, log); err != nil || v == nil {
		t.Fatalf("valid secret: verifier=%v err=%v", v, err)
	}
}

func TestNew_RejectsUnknownAudience(t *testing.T) {
	cfg := testConfig(t)
	cfg.PresenceAudience = "everyone"

	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil || !strings.Contains(err.Error(), "everyone") {
		t.Fatalf("expected audience error, got %v", err)
	}
}

func TestClose_DrainsGeneralPoolBeforeMessagePool(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := &App{
		log:         log,
		generalPool: workpool.New(workpool.Config{Name: "general", CoreSize: 1, MaxSize: 1, QueueCapacity: 1}, log),
		messagePool: workpool.New(workpool.Config{Name: "message", CoreSize: 1, MaxSize: 1, QueueCapacity: 1}, log),
	}

	gate := make(chan struct{})
	started := make(chan struct{})
	relayed := make(chan error, 1)
	err := a.generalPool.Go(func(context.Context) {
		close(started)
		<-gate
		relayed <- a.messagePool.Go(func(context.Context) {})
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started

	closed := make(chan struct{})
	go func() {
		a.Close(context.Background())
		close(closed)
	}()

	// Give Close time to reach the pools while the general task still runs.
	time.Sleep(50 * time.Millisecond)
	close(gate)

	if err := <-relayed; err != nil {
		t.Fatalf("delivery submitted during shutdown failed: %v", err)
	}
	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatalf("Close did not return")
	}
}

func TestApp_EndToEnd(t *testing.T) {
	t.Setenv("PETLINK_WS_ORIGIN_REQUIRED", "false")

	a, err := New(context.Background(), testConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		a.Close(ctx)
	})

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: status=%d", path, resp.StatusCode)
		}
		if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
			t.Fatalf("GET %s: missing security headers", path)
		}
	}

	conn := dialAs(t, srv.URL, 2)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	online := readEnvelope(t, conn, v1.TypePresenceChange)
	var pc v1.PresenceChangePayload
	if err := json.Unmarshal(online.Payload, &pc); err != nil {
		t.Fatalf("presence payload: %v", err)
	}
	if pc.UserID != 2 || !pc.Online {
		t.Fatalf("unexpected presence change: %+v", pc)
	}

	body, _ := json.Marshal(map[string]any{"receiverId": 2, "content": "walk time"})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/messages", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /messages: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /messages: status=%d", resp.StatusCode)
	}

	pushed := readEnvelope(t, conn, v1.TypeNewMessage)
	var nm v1.NewMessagePayload
	if err := json.Unmarshal(pushed.Payload, &nm); err != nil {
		t.Fatalf("new_message payload: %v", err)
	}
	if nm.SenderID != 1 || nm.Content != "walk time" || nm.MessageID <= 0 {
		t.Fatalf("unexpected new_message: %+v", nm)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	metrics, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	for _, want := range []string{"petlink_realtime_connections 1", "petlink_workpool_submitted_total", "go_goroutines"} {
		if !strings.Contains(string(metrics), want) {
			t.Fatalf("/metrics missing %q", want)
		}
	}

	a.sweep()
}

func testConfig(t *testing.T) Config {
	t.Helper()

	small := workpool.Config{CoreSize: 1, MaxSize: 2, QueueCapacity: 8, IdleTimeout: time.Second}
	pool := func(name string) workpool.Config {
		c := small
		c.Name = name
		return c
	}
	return Config{
		HTTPAddr:           "127.0.0.1:0",
		AuthRequired:       false,
		UploadDir:          t.TempDir(),
		PublicBasePath:     "/server",
		MaxUploadBytes:     1 << 20,
		MessagePool:        pool("message"),
		GeneralPool:        pool("general"),
		FilePool:           pool("file"),
		BatchPool:          pool("batch"),
		OperationRetention: time.Minute,
		SweepInterval:      time.Minute,
		PresenceAudience:   "self",
	}
}

func dialAs(t *testing.T, baseURL string, userID int) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	u := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
	conn, resp, err := websocket.Dial(ctx, u, &websocket.DialOptions{
		Subprotocols: []string{"petlink.realtime.v1"},
		HTTPHeader:   http.Header{"X-User-ID": []string{strconv.Itoa(userID)}},
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial %s: %v", u, err)
	}
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn, typ string) v1.Envelope {
	t.Helper()

	for i := 0; i < 10; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, b, err := conn.Read(ctx)
		cancel()
		if err != nil {
			t.Fatalf("read %q: %v", typ, err)
		}
		var env v1.Envelope
		if err := json.Unmarshal(b, &env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if env.Type == typ {
			return env
		}
	}
	t.Fatalf("no %q envelope", typ)
	return v1.Envelope{}
}
