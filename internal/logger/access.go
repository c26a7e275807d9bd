package logger

import (
	"context"
	"log/slog"
	"time"

	"egress-gate/internal/config"
)

// Event carries the loggable facts of one proxied request. Zero values mean
// "not applicable"; the field toggles decide which of the rest are emitted.
type Event struct {
	RemoteIP        string
	Method          string
	URL             string
	StatusCode      int
	Duration        time.Duration
	Headers         string
	Body            string
	ResponseHeaders string
	ResponseBody    string
	Message         string
}

// AccessLogger emits per-request log events, including exactly the fields
// whose configuration toggles are on. The request ID and message are always
// included.
type AccessLogger struct {
	log    *slog.Logger
	fields config.LogFieldsConfig
}

// NewAccessLogger creates an access logger over the given structured logger
func NewAccessLogger(log *slog.Logger, fields config.LogFieldsConfig) *AccessLogger {
	return &AccessLogger{log: WithComponent(log, "access"), fields: fields}
}

// Info logs an event at info level
func (a *AccessLogger) Info(requestID string, ev Event) {
	a.Log(slog.LevelInfo, requestID, ev)
}

// Warn logs an event at warn level
func (a *AccessLogger) Warn(requestID string, ev Event) {
	a.Log(slog.LevelWarn, requestID, ev)
}

// Error logs an event at error level
func (a *AccessLogger) Error(requestID string, ev Event) {
	a.Log(slog.LevelError, requestID, ev)
}

// Log emits one event at the given level
func (a *AccessLogger) Log(level slog.Level, requestID string, ev Event) {
	attrs := make([]slog.Attr, 0, 10)
	attrs = append(attrs, slog.String("request_id", requestID))

	if a.fields.RemoteIP && ev.RemoteIP != "" {
		attrs = append(attrs, slog.String("remote_ip", ev.RemoteIP))
	}
	if a.fields.Method && ev.Method != "" {
		attrs = append(attrs, slog.String("method", ev.Method))
	}
	if a.fields.URL && ev.URL != "" {
		attrs = append(attrs, slog.String("url", ev.URL))
	}
	if a.fields.StatusCode && ev.StatusCode != 0 {
		attrs = append(attrs, slog.Int("status_code", ev.StatusCode))
	}
	if a.fields.DurationMS && ev.Duration > 0 {
		attrs = append(attrs, slog.Int64("duration_ms", ev.Duration.Milliseconds()))
	}
	if a.fields.Headers && ev.Headers != "" {
		attrs = append(attrs, slog.String("headers", ev.Headers))
	}
	if a.fields.Body && ev.Body != "" {
		attrs = append(attrs, slog.String("body", ev.Body))
	}
	if a.fields.ResponseHeaders && ev.ResponseHeaders != "" {
		attrs = append(attrs, slog.String("response_headers", ev.ResponseHeaders))
	}
	if a.fields.ResponseBody && ev.ResponseBody != "" {
		attrs = append(attrs, slog.String("response_body", ev.ResponseBody))
	}

	a.log.LogAttrs(context.Background(), level, ev.Message, attrs...)
}
