package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestLoggerEmitsComponentFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithWriter(&buf, "pool", slog.LevelInfo)

	log.Info("test message", slog.String("key", "value"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["component"] != "pool" {
		t.Errorf("expected component=pool, got %v", entry["component"])
	}
	if entry["system"] != "cdpbridge" {
		t.Errorf("expected system=cdpbridge, got %v", entry["system"])
	}
	if entry["key"] != "value" {
		t.Errorf("expected key=value, got %v", entry["key"])
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithWriter(&buf, "test", slog.LevelWarn)

	log.Debug("hidden")
	log.Info("hidden too")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %s", buf.String())
	}

	log.Warn("visible")
	if buf.Len() == 0 {
		t.Fatal("expected warn output")
	}
}

func TestWithConnAndDomain(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithWriter(&buf, "transport", slog.LevelDebug)

	log.WithConn("conn-1").WithDomain("Network").Info("scoped")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["conn_id"] != "conn-1" {
		t.Errorf("expected conn_id, got %v", entry["conn_id"])
	}
	if entry["domain"] != "Network" {
		t.Errorf("expected domain, got %v", entry["domain"])
	}
}

func TestLateReplyLogsAtWarn(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithWriter(&buf, "transport", slog.LevelWarn)

	log.LateReply("conn-1", 42)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["message_id"] != float64(42) {
		t.Errorf("expected message_id=42, got %v", entry["message_id"])
	}
}
