package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/funnyzak/reqreplay/internal/config"
)

func TestJSONLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&config.LogConfig{Level: "debug"}, "json", &buf)

	log.Info("Record replayed",
		"index", 3,
		"url", "http://example.test/",
		"error", errors.New("boom"),
		"elapsed", 1500*time.Millisecond,
		"dangling",
	)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "Record replayed" || entry["level"] != "info" {
		t.Errorf("Unexpected entry: %v", entry)
	}
	if entry["index"] != float64(3) || entry["url"] != "http://example.test/" || entry["error"] != "boom" {
		t.Errorf("Unexpected fields: %v", entry)
	}
	if _, ok := entry["dangling"]; ok {
		t.Error("Expected unpaired key to be ignored")
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&config.LogConfig{Level: "warn"}, "json", &buf)

	log.Info("hidden")
	log.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("Expected info entry to be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("Expected warn entry to be written")
	}
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&config.LogConfig{Level: "verbose"}, "json", &buf)

	log.Debug("debug entry")
	log.Info("info entry")

	if strings.Contains(buf.String(), "debug entry") || !strings.Contains(buf.String(), "info entry") {
		t.Errorf("Expected info level fallback, got %q", buf.String())
	}
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Info("nothing", "key", "value")
	log.Error("still nothing")
}
