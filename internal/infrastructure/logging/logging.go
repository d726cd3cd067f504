// Package logging provides a thin abstraction over slog so engine code can
// depend on a minimal interface while embedders plug in any structured
// logger.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Logger is the minimal structured logging interface used across the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement Logger.
type SlogAdapter struct {
	*slog.Logger
}

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewJSONLogger creates a leveled JSON logger writing to w.
func NewJSONLogger(w io.Writer, level slog.Level) Logger {
	return NewSlogAdapter(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}

// Default returns the process-wide default logger (JSON to stderr at Info).
func Default() Logger {
	return defaultLogger
}

// SetDefault replaces the process-wide default logger.
func SetDefault(l Logger) {
	if l != nil {
		defaultLogger = l
	}
}

var defaultLogger Logger = NewJSONLogger(os.Stderr, slog.LevelInfo)

// With returns a child logger with fields attached when the underlying
// implementation supports it, or the logger unchanged otherwise.
func With(l Logger, args ...any) Logger {
	if sa, ok := l.(*SlogAdapter); ok {
		return &SlogAdapter{Logger: sa.Logger.With(args...)}
	}
	return l
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() Logger {
	return NewSlogAdapter(slog.New(slog.NewTextHandler(io.Discard, nil)))
}
