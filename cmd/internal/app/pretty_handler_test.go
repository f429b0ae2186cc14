package app

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestPrettyHandlerPlainOutput(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	h := newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false)
	log := slog.New(h)

	log.Info("http.request",
		"method", "get",
		"path", "/healthz",
		"status", 200,
		"duration_ms", int64(12),
	)

	out := buf.String()
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("color disabled but output has ANSI codes: %q", out)
	}
	for _, want := range []string{
		"lvl=[INFO]",
		"msg=http.request",
		"method=GET",
		"path=/healthz",
		"status=200",
		"duration=12ms",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
}

func TestPrettyHandlerColorizesStatus(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	log := slog.New(newPrettyHandler(&buf, nil, true))

	log.Error("http.request", "status", 500)

	out := buf.String()
	if !strings.Contains(out, ansiRed+"500"+ansiReset) {
		t.Fatalf("5xx status not colorized red: %q", out)
	}
	if !strings.Contains(out, ansiRed+"[ERROR]"+ansiReset) {
		t.Fatalf("error level not colorized: %q", out)
	}
}

func TestPrettyHandlerLevelFiltering(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	h := newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, false)

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("info should be filtered at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("error should pass at warn level")
	}
}

func TestPrettyHandlerGroupsAndAttrs(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	log := slog.New(newPrettyHandler(&buf, nil, false))

	log.WithGroup("ws").With("conn_id", "c1").Info("reject", "reason", "bad origin")

	out := buf.String()
	if !strings.Contains(out, "ws.conn_id=c1") {
		t.Errorf("grouped attr missing: %q", out)
	}
	if !strings.Contains(out, `ws.reason="bad origin"`) {
		t.Errorf("spaced value not quoted: %q", out)
	}
}

func TestQuoteIfNeeded(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"", `""`},
		{"plain", "plain"},
		{"has space", `"has space"`},
		{"a=b", `"a=b"`},
		{"line\nbreak", `"line\nbreak"`},
	}

	for _, tc := range cases {
		if got := quoteIfNeeded(tc.in); got != tc.want {
			t.Errorf("quoteIfNeeded(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValueToString(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		in   slog.Value
		want string
	}{
		{slog.StringValue("x"), "x"},
		{slog.IntValue(-3), "-3"},
		{slog.BoolValue(true), "true"},
		{slog.DurationValue(1500 * time.Millisecond), "1.5s"},
		{slog.TimeValue(ts), "2025-03-09T12:00:00Z"},
	}

	for _, tc := range cases {
		if got := valueToString(tc.in); got != tc.want {
			t.Errorf("valueToString(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
