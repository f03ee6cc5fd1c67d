package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"identra.org/internal/obs"
)

func TestEventEmitsJSONLine(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(obs.NewLog(&buf))

	ctx := WithRequestID(context.Background(), "req-42")
	rec.Event(ctx, "directory.user.create", "user", "u1", map[string]string{"login": "sherlock"})

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("entry is not JSON: %v (%s)", err, line)
	}
	if entry["type"] != "audit" || entry["event"] != "directory.user.create" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["request_id"] != "req-42" {
		t.Fatalf("request id missing: %v", entry)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder
	rec.Event(context.Background(), "noop", "user", "u1", nil)

	NewRecorder(nil).Event(context.Background(), "noop", "user", "u1", nil)
}

func TestEmptyRequestIDNotAttached(t *testing.T) {
	ctx := WithRequestID(context.Background(), "   ")
	if got := RequestIDFromContext(ctx); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}
}
