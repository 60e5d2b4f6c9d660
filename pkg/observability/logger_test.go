package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("client_id", "svc-billing").Info("check completed")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "check completed" {
		t.Errorf("unexpected message: %v", entry["msg"])
	}
	if entry["client_id"] != "svc-billing" {
		t.Errorf("expected client_id field, got %v", entry["client_id"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WarnLevel, &buf)

	logger.Debug("hidden")
	logger.Info("hidden too")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("expected debug/info suppressed at warn level: %s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("expected warn message in output: %s", out)
	}
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(nil).Info("no error attached")
	if strings.Contains(buf.String(), `"error"`) {
		t.Errorf("nil error should not add a field: %s", buf.String())
	}
}

func TestRequestID_RoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	if id := GetRequestID(ctx); id != "req-123" {
		t.Errorf("expected req-123, got %q", id)
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("expected empty request ID, got %q", id)
	}
}
