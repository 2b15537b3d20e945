package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"  WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.in); got != tc.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestHandlerFormatSelection(t *testing.T) {
	var buf bytes.Buffer

	slog.New(newHandler(&buf, "info", "json")).Info("started")
	if !strings.Contains(buf.String(), `"msg":"started"`) {
		t.Fatalf("expected json output, got %s", buf.String())
	}

	buf.Reset()
	slog.New(newHandler(&buf, "info", "text")).Info("started")
	if !strings.Contains(buf.String(), "msg=started") {
		t.Fatalf("expected text output, got %s", buf.String())
	}

	buf.Reset()
	slog.New(newHandler(&buf, "warn", "json")).Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info record dropped at warn level, got %s", buf.String())
	}
}
