package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"cmms/internal/logging"
)

func TestJSONLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := logging.New("warn", "json", &buf)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.Info().Msg("hidden")
	log.Warn().Str("staff_id", "s1").Msg("shown")
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["message"] != "shown" || entry["staff_id"] != "s1" || entry["level"] != "warn" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestConsoleIsDefault(t *testing.T) {
	var buf bytes.Buffer
	log, err := logging.New("", "", &buf)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.Info().Msg("hello")
	if !strings.Contains(buf.String(), "hello") || strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("expected console output, got %q", buf.String())
	}
}

func TestRejectsUnknownSettings(t *testing.T) {
	if _, err := logging.New("loud", "json", nil); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := logging.New("info", "xml", nil); err == nil {
		t.Fatalf("expected format error")
	}
}
