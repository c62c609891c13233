package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		got := parseLogLevel(tc.in)
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewLogger_Formats(t *testing.T) {
	t.Parallel()

	var jsonBuf bytes.Buffer
	newLogger(&jsonBuf, "info", "json", false).Info("quota.register.ok", "group", "A")
	var rec map[string]any
	if err := json.Unmarshal(jsonBuf.Bytes(), &rec); err != nil {
		t.Fatalf("json output %q: %v", jsonBuf.String(), err)
	}
	if rec["msg"] != "quota.register.ok" || rec["group"] != "A" {
		t.Fatalf("record = %v", rec)
	}

	var prettyBuf bytes.Buffer
	log := newLogger(&prettyBuf, "warn", "pretty", false)
	log.Info("dropped")
	log.Warn("outbox.replay.retry", "attempts", 2)
	out := prettyBuf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info record below warn level was written: %q", out)
	}
	if !strings.Contains(out, "lvl=[WARN] msg=outbox.replay.retry") || !strings.Contains(out, "attempts=2") {
		t.Fatalf("pretty output = %q", out)
	}
}
