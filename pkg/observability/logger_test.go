package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/contextkeys"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v (%q)", err, buf.String())
	}
	return entry
}

func TestLoggerWritesJSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("subaccount_id", "s1").WithError(errors.New("boom")).Info("cache invalidated")

	entry := logLine(t, &buf)
	if entry["msg"] != "cache invalidated" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["subaccount_id"] != "s1" {
		t.Errorf("subaccount_id = %v", entry["subaccount_id"])
	}
	if entry["error"] != "boom" {
		t.Errorf("error = %v", entry["error"])
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(ErrorLevel, &buf)

	logger.Info("should be suppressed")
	if buf.Len() != 0 {
		t.Errorf("info leaked through error level: %q", buf.String())
	}

	logger.Errorf("failed after %d attempts", 3)
	entry := logLine(t, &buf)
	if entry["msg"] != "failed after 3 attempts" {
		t.Errorf("msg = %v", entry["msg"])
	}
}

func TestWithErrorNilIsNoOp(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(nil).Info("fine")
	entry := logLine(t, &buf)
	if _, ok := entry["error"]; ok {
		t.Error("nil error must not add a field")
	}
}

func TestFromContextAnnotatesRequestAndUser(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	ctx := WithLogger(context.Background(), logger)
	ctx = context.WithValue(ctx, contextkeys.RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, contextkeys.UserIDKey, "u1")

	FromContext(ctx).Info("handled")

	entry := logLine(t, &buf)
	if entry["request_id"] != "req-1" || entry["user_id"] != "u1" {
		t.Errorf("entry = %v", entry)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"bogus", InfoLevel},
		{"", InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLogLevel(tt.in); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
