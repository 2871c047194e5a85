package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"petlink/cmd/internal/app"
	"petlink/cmd/security/token"
)

var testSecret = strings.Repeat("petlink-cli-secret-", 3)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := out.String(); got != "petlink dev\n" {
		t.Fatalf("version output=%q", got)
	}
}

func TestIssueToken(t *testing.T) {
	t.Setenv(token.SecretEnvKey, testSecret)

	raw, err := issueToken(42, "rex@example.com", time.Hour)
	if err != nil {
		t.Fatalf("issueToken: %v", err)
	}
	v, err := token.NewVerifier([]byte(testSecret))
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	claims, err := v.Verify(raw)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != 42 || claims.Email != "rex@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := issueToken(0, "", time.Hour); err == nil {
		t.Fatalf("expected error for user 0")
	}

	t.Setenv(token.SecretEnvKey, "")
	if _, err := issueToken(1, "", time.Hour); err == nil || !strings.Contains(err.Error(), token.SecretEnvKey) {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestValidateWSURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in string
		ok bool
	}{
		{in: "ws://127.0.0.1:8080/ws", ok: true},
		{in: "wss://petlink.example.com/ws", ok: true},
		{in: "http://127.0.0.1:8080/ws", ok: false},
		{in: "ws:///ws", ok: false},
		{in: "ws://127.0.0.1:8080", ok: false},
	}
	for _, tc := range cases {
		err := validateWSURL(tc.in)
		if (err == nil) != tc.ok {
			t.Fatalf("validateWSURL(%q) err=%v want ok=%v", tc.in, err, tc.ok)
		}
	}
}

func TestValidateOrigin(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in string
		ok bool
	}{
		{in: "", ok: true},
		{in: "http://localhost", ok: true},
		{in: "https://petlink.example.com", ok: true},
		{in: "ftp://localhost", ok: false},
		{in: "https://", ok: false},
	}
	for _, tc := range cases {
		err := validateOrigin(tc.in)
		if (err == nil) != tc.ok {
			t.Fatalf("validateOrigin(%q) err=%v want ok=%v", tc.in, err, tc.ok)
		}
	}
}

func TestRunSmoke_RejectsBadOptions(t *testing.T) {
	t.Parallel()

	_, err := runSmoke(context.Background(), smokeOptions{URL: "ws://127.0.0.1:1/ws", SenderID: 3, ReceiverID: 3})
	if err == nil {
		t.Fatalf("expected error for identical sender and receiver")
	}
}

func TestRunSmoke_DevMode(t *testing.T) {
	t.Setenv("PETLINK_WS_ORIGIN_REQUIRED", "false")
	t.Setenv("PETLINK_AUTH_REQUIRED", "false")

	wsURL := startServer(t)

	res, err := runSmoke(context.Background(), smokeOptions{
		URL:        wsURL,
		SenderID:   1,
		ReceiverID: 2,
		Text:       "  sit  ",
		Timeout:    5 * time.Second,
		Dev:        true,
	})
	if err != nil {
		t.Fatalf("runSmoke: %v", err)
	}
	if res.MessageID <= 0 || res.SenderSession == "" || res.SenderSession == res.ReceiverSession {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRunSmoke_BearerTokens(t *testing.T) {
	t.Setenv("PETLINK_WS_ORIGIN_REQUIRED", "false")
	t.Setenv("PETLINK_AUTH_REQUIRED", "true")
	t.Setenv(token.SecretEnvKey, testSecret)

	wsURL := startServer(t)

	if _, err := runSmoke(context.Background(), smokeOptions{
		URL:        wsURL,
		SenderID:   7,
		ReceiverID: 8,
		Text:       "fetch",
		Timeout:    5 * time.Second,
	}); err != nil {
		t.Fatalf("runSmoke: %v", err)
	}

	_, err := runSmoke(context.Background(), smokeOptions{
		URL:        wsURL,
		SenderID:   7,
		ReceiverID: 8,
		Text:       "fetch",
		Timeout:    2 * time.Second,
		Dev:        true,
	})
	if err == nil {
		t.Fatalf("dev header must be rejected when auth is required")
	}
}

func startServer(t *testing.T) string {
	t.Helper()
	t.Setenv("PETLINK_UPLOAD_DIR", t.TempDir())
	t.Setenv("PETLINK_DATABASE_URL", "")
	t.Setenv("PETLINK_NATS_URL", "")

	cfg := app.LoadConfig()
	a, err := app.New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		a.Close(ctx)
	})

	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}
