package obs

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"time"
)

// Log is a JSON-line logger handed to each component at construction.
// Components never reach for a process-wide logger.
type Log struct {
	out *log.Logger
}

// NewLog writes JSON lines to w.
func NewLog(w io.Writer) *Log {
	if w == nil {
		w = os.Stdout
	}
	return &Log{out: log.New(w, "", 0)}
}

// Event records a service-level operation with its arguments.
func (l *Log) Event(component, op string, fields map[string]any) {
	l.emit(map[string]any{
		"level":     "info",
		"component": component,
		"op":        op,
	}, fields)
}

// Error records a failed operation.
func (l *Log) Error(component, op string, err error, fields map[string]any) {
	l.emit(map[string]any{
		"level":     "error",
		"component": component,
		"op":        op,
		"error":     err.Error(),
	}, fields)
}

// Line emits an arbitrary structured entry, used by the HTTP request logger.
func (l *Log) Line(entry map[string]any) {
	l.emit(entry, nil)
}

func (l *Log) emit(entry map[string]any, fields map[string]any) {
	if l == nil || l.out == nil {
		return
	}
	entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	if len(fields) > 0 {
		entry["fields"] = fields
	}
	data, err := json.Marshal(entry)
	if err != nil {
		l.out.Println(`{"level":"error","msg":"log marshal failed"}`)
		return
	}
	l.out.Println(string(data))
}
