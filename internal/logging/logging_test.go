package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Level: "WARN"}, &buf)

	logger.Info().Msg("dropped")
	logger.Warn().Str("policy", "ota").Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected only the warn line, got %q", buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not json: %v", err)
	}
	if entry["policy"] != "ota" || entry["level"] != "warn" {
		t.Fatalf("unexpected entry: %#v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Fatal("timestamp missing")
	}
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Level: "loud"}, &buf)
	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected info level, got %q", buf.String())
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Format: "console"}, &buf)
	logger.Info().Msg("hello")

	if strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("console format should not emit json: %q", buf.String())
	}
}
