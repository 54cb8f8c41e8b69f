package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestWriteIncludesLevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	Warn("batch.config.warning", map[string]any{
		"field": "max_concurrency",
		"error": errors.New("must be >= 1"),
	})

	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}
	if payload["level"] != "warn" {
		t.Fatalf("unexpected level: %v", payload["level"])
	}
	if payload["msg"] != "batch.config.warning" {
		t.Fatalf("unexpected msg: %v", payload["msg"])
	}
	if payload["error"] != "must be >= 1" {
		t.Fatalf("expected error to be rendered as string, got %v", payload["error"])
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("missing ts field")
	}
}

func TestReservedKeysWinOverFields(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	Info("real", map[string]any{"msg": "spoofed", "level": "debug"})

	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}
	if payload["msg"] != "real" || payload["level"] != "info" {
		t.Fatalf("reserved keys overwritten: %v", payload)
	}
}
