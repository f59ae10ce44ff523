// Package logging provides structured loggers for bridge components.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Logger is a structured logger scoped to one bridge component.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a JSON logger for the named component.
func NewLogger(component string, level slog.Level) *Logger {
	return NewLoggerWithWriter(os.Stderr, component, level)
}

// NewLoggerWithWriter is like NewLogger but writes to w. Used by tests.
func NewLoggerWithWriter(w io.Writer, component string, level slog.Level) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})

	logger := slog.New(handler).With(
		slog.String("component", component),
		slog.String("system", "cdpbridge"),
	)

	return &Logger{Logger: logger}
}

// WithConn returns a logger with connection-specific fields.
func (l *Logger) WithConn(connID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			slog.String("conn_id", connID),
		),
	}
}

// WithDomain returns a logger with domain-specific fields.
func (l *Logger) WithDomain(domain string) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			slog.String("domain", domain),
		),
	}
}

// CommandSent logs an outgoing protocol command.
func (l *Logger) CommandSent(connID string, id int64, method string) {
	l.Debug("command sent",
		slog.String("conn_id", connID),
		slog.Int64("message_id", id),
		slog.String("method", method),
	)
}

// LateReply logs a reply that arrived after its waiter timed out. The reply
// is discarded; nobody awaits it.
func (l *Logger) LateReply(connID string, id int64) {
	l.Warn("late reply discarded",
		slog.String("conn_id", connID),
		slog.Int64("message_id", id),
	)
}

// DomainTransition logs a domain lifecycle state change.
func (l *Logger) DomainTransition(domain, from, to string) {
	l.Info("domain transition",
		slog.String("domain", domain),
		slog.String("from", from),
		slog.String("to", to),
	)
}

// ConnReplaced logs a dead connection being replaced by a fresh one.
func (l *Logger) ConnReplaced(oldID, newID string) {
	l.Info("connection replaced",
		slog.String("old_conn_id", oldID),
		slog.String("new_conn_id", newID),
	)
}
