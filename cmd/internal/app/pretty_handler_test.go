package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestStripANSI(t *testing.T) {
	t.Parallel()

	in := ansiBlue + "INFO" + ansiReset + " plain " + ansiRed + "ERR" + ansiReset
	got := stripANSI(in)
	want := "INFO plain ERR"
	if got != want {
		t.Fatalf("stripANSI()=%q want=%q", got, want)
	}
}

func TestPrettyHandler_Line(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false))

	log.With("pool", "message").WithGroup("req").Info("http.request",
		"method", "GET",
		"status", 404,
		"duration_ms", int64(12),
		"note", "two words",
	)

	line := strings.TrimSpace(buf.String())
	for _, want := range []string{
		"INFO ",
		"http.request",
		"pool=message",
		"req.method=GET",
		"req.status=404",
		`req.note="two words"`,
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("line %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("uncoloured handler wrote escape codes: %q", line)
	}
}

func TestPrettyHandler_ColorAndLevels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, true))

	log.Info("dropped")
	log.Error("notify.deliver.fail", "status", 503, "duration_ms", int64(1500))

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info record passed a warn-level handler: %q", out)
	}
	if !strings.Contains(out, ansiRed+"ERROR"+ansiReset) {
		t.Fatalf("error level not coloured: %q", out)
	}
	plain := stripANSI(out)
	if !strings.Contains(plain, "status=503") || !strings.Contains(plain, "duration_ms=1500ms") {
		t.Fatalf("unexpected plain output: %q", plain)
	}
}
