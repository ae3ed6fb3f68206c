package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestLevelFromString(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"error":   slog.LevelError,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		" info ":  slog.LevelInfo,
		"":        slog.LevelDebug,
		"verbose": slog.LevelDebug,
	}
	for in, want := range cases {
		if got := levelFromString(in); got != want {
			t.Fatalf("levelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWriterJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWriter(&buf, "info", "json").With("component", "pipeline")
	log.Debug("hidden")
	log.Info("candidate done", "latin", "Withania somnifera")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if rec["component"] != "pipeline" || rec["latin"] != "Withania somnifera" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestNewWriterText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewWriter(&buf, "debug", "").Debug("probe", "url", "https://x")
	if !strings.Contains(buf.String(), "msg=probe") {
		t.Fatalf("unexpected text output %q", buf.String())
	}
}
