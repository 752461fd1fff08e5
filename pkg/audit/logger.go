// Package audit records operator actions as JSON lines.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Event is one audit record. Attrs are written at the top level of the
// JSON object next to the fixed fields.
type Event struct {
	Timestamp  time.Time
	Action     string
	Status     string
	Detail     string
	User       string
	RemoteAddr string
	RequestID  string
	Attrs      map[string]any
}

// MarshalJSON flattens Attrs into the record.
func (e Event) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Attrs)+8)
	for k, v := range e.Attrs {
		m[k] = v
	}
	m["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	m["action"] = e.Action
	m["status"] = e.Status
	if e.Detail != "" {
		m["detail"] = e.Detail
	}
	if e.User != "" {
		m["user"] = e.User
	}
	if e.RemoteAddr != "" {
		m["remote_addr"] = e.RemoteAddr
	}
	if e.RequestID != "" {
		m["request_id"] = e.RequestID
	}
	return json.Marshal(m)
}

// Logger is the interface for audit logging implementations.
type Logger interface {
	// Log records an event.
	Log(event Event)

	// LogWithContext records an event, taking the request id from ctx.
	LogWithContext(ctx context.Context, event Event)

	// Close flushes any pending records and closes the logger.
	Close() error
}

// JSONLogger writes events as JSON lines to an io.Writer.
type JSONLogger struct {
	encoder *json.Encoder
	writer  io.Writer
	now     func() time.Time
	mu      sync.Mutex
}

// NewJSONLogger creates a new JSON audit logger.
func NewJSONLogger(w io.Writer) *JSONLogger {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLogger{
		encoder: enc,
		writer:  w,
		now:     time.Now,
	}
}

// RotationConfig sizes a rotating audit file.
type RotationConfig struct {
	Path       string
	MaxBytes   int64
	MaxBackups int
}

const megabyte = 1024 * 1024

// NewRotatingLogger writes to cfg.Path and rotates it once it exceeds
// MaxBytes, keeping MaxBackups old files. The size is rounded up to whole
// megabytes.
func NewRotatingLogger(cfg RotationConfig) (*JSONLogger, error) {
	if cfg.Path == "" {
		return nil, errors.New("audit: empty log path")
	}
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	maxMB := int((cfg.MaxBytes + megabyte - 1) / megabyte)
	if maxMB < 1 {
		maxMB = 1
	}
	return NewJSONLogger(&lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    maxMB,
		MaxBackups: cfg.MaxBackups,
	}), nil
}

// Log records an event.
func (l *JSONLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}

	if err := l.encoder.Encode(event); err != nil {
		slog.Error("audit: failed to write event", "action", event.Action, "error", err)
	}
}

// LogWithContext records an event with the request id of ctx.
func (l *JSONLogger) LogWithContext(ctx context.Context, event Event) {
	if event.RequestID == "" {
		event.RequestID = middleware.GetReqID(ctx)
	}
	l.Log(event)
}

// Close closes the underlying writer if it is closable.
func (l *JSONLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if closer, ok := l.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// CheckWritable reports whether the audit file at path can be opened for
// appending.
func CheckWritable(path string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	return f.Close()
}

// NopLogger is a no-op logger for tests or disabled audit logs.
type NopLogger struct{}

// Log does nothing.
func (NopLogger) Log(event Event) {}

// LogWithContext does nothing.
func (NopLogger) LogWithContext(ctx context.Context, event Event) {}

// Close does nothing.
func (NopLogger) Close() error { return nil }
