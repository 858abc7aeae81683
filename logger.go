package bbe

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for the engine and all its sub-packages.
// By default the engine produces no log output.
//
// Pass nil to restore the silent default. SetLogger is safe for concurrent use.
//
// Log levels used by the engine:
//   - [slog.LevelDebug]: arena rollbacks, frame transitions, reclamation counts
//   - [slog.LevelInfo]: manager init and teardown
//   - [slog.LevelWarn]: leaked parent blocks, missing settings file
//   - [slog.LevelError]: device errors, protocol violations in release builds
//
// Example:
//
//	bbe.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the current engine logger.
// Sub-packages call this to share the same configuration without import cycles.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// NewLogger builds a logger from the [LoggingSettings] section.
// Format "json" selects a JSON handler, anything else a text handler.
func NewLogger(ls LoggingSettings, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ls.SlogLevel()}
	if ls.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
