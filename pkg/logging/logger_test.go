package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		enable slog.Level
		reject *slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug, nil},
		{"warn level", "WARN", slog.LevelWarn, levelPtr(slog.LevelInfo)},
		{"error level", "error", slog.LevelError, levelPtr(slog.LevelWarn)},
		{"default info", "", slog.LevelInfo, levelPtr(slog.LevelDebug)},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level)
			if !logger.Enabled(ctx, tt.enable) {
				t.Fatalf("expected level %s to be enabled", tt.enable)
			}
			if tt.reject != nil && logger.Enabled(ctx, *tt.reject) {
				t.Fatalf("expected level %s to be disabled", *tt.reject)
			}
		})
	}
}

func TestDefaultLogger(t *testing.T) {
	logger := Default()
	ctx := context.Background()
	if !logger.Enabled(ctx, slog.LevelInfo) {
		t.Error("Default() should enable info level")
	}
	if logger.Enabled(ctx, slog.LevelDebug) {
		t.Error("Default() should not enable debug level")
	}
	if logger == Default() {
		t.Error("Default() returned the same instance twice")
	}
}

func TestWithCarriesAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("info", &buf).With("lead_id", "lead-1")
	logger.Info("inbound handled", "channel", "sms")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json log line, got %q: %v", buf.String(), err)
	}
	if entry["lead_id"] != "lead-1" {
		t.Fatalf("expected lead_id attribute, got %v", entry["lead_id"])
	}
	if entry["channel"] != "sms" {
		t.Fatalf("expected channel attribute, got %v", entry["channel"])
	}
	if entry["msg"] != "inbound handled" {
		t.Fatalf("unexpected msg %v", entry["msg"])
	}
}

func levelPtr(l slog.Level) *slog.Level { return &l }
