package rectree

import (
	"context"
	"log/slog"
	"os"

	"github.com/hupe1980/rectree/namespace"
)

// Logger wraps slog.Logger with rectree-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithName adds the tree name to the logger.
func (l *Logger) WithName(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("tree", name),
	}
}

// WithNamespace adds a namespace field to the logger.
func (l *Logger) WithNamespace(ns namespace.ID) *Logger {
	return &Logger{
		Logger: l.Logger.With("ns", ns),
	}
}

// LogAdd logs an insert.
func (l *Logger) LogAdd(ctx context.Context, ns namespace.ID, slot int32, replaced bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "add failed",
			"ns", ns,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "add completed",
			"ns", ns,
			"slot", slot,
			"replaced", replaced,
		)
	}
}

// LogDelete logs a delete of count records.
func (l *Logger) LogDelete(ctx context.Context, ns namespace.ID, count int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"ns", ns,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"ns", ns,
			"count", count,
		)
	}
}

// LogSave logs the outcome of a save.
func (l *Logger) LogSave(ctx context.Context, dir string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "save failed",
			"dir", dir,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "save completed",
			"dir", dir,
		)
	}
}

// LogMirror logs a copy of a saved file to the blob store.
func (l *Logger) LogMirror(ctx context.Context, object string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "mirror failed",
			"object", object,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "mirror completed",
			"object", object,
		)
	}
}

// LogLoad logs the outcome of a load.
func (l *Logger) LogLoad(ctx context.Context, path string, records int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"path", path,
			"records", records,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "load completed",
			"path", path,
			"records", records,
		)
	}
}

// LogRepair logs the outcome of a repair.
func (l *Logger) LogRepair(ctx context.Context, dropped int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "repair failed",
			"dropped", dropped,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "repair completed",
			"dropped", dropped,
		)
	}
}

// LogGrow logs a capacity change.
func (l *Logger) LogGrow(ctx context.Context, from, to int, err error) {
	if err != nil {
		l.WarnContext(ctx, "grow failed",
			"from", from,
			"to", to,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "grow completed",
			"from", from,
			"to", to,
		)
	}
}
