// Package audit records who changed what, separate from operational logs.
package audit

import (
	"context"
	"strings"

	"identra.org/internal/obs"
)

type ctxKey struct{}

// WithRequestID attaches the request identifier to the context so audit
// entries can be correlated with request logs.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, requestID)
}

// RequestIDFromContext extracts the request id, empty when absent.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

// Recorder writes audit entries through the shared JSON-line logger.
type Recorder struct {
	log *obs.Log
}

// NewRecorder wraps the logger. A nil logger yields a recorder that drops
// everything, which keeps call sites unconditional.
func NewRecorder(log *obs.Log) *Recorder {
	return &Recorder{log: log}
}

// Event records one audited mutation: the event name, the entity kind and id
// it touched, and free-form detail fields.
func (r *Recorder) Event(ctx context.Context, event, entity, entityID string, fields map[string]string) {
	if r == nil || r.log == nil {
		return
	}
	event = strings.TrimSpace(event)
	if event == "" {
		return
	}
	entry := map[string]any{
		"type":   "audit",
		"event":  event,
		"entity": entity,
	}
	if entityID != "" {
		entry["entity_id"] = entityID
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if len(fields) > 0 {
		detail := make(map[string]any, len(fields))
		for k, v := range fields {
			detail[k] = v
		}
		entry["fields"] = detail
	}
	r.log.Line(entry)
}
