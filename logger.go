package pdom

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with the engine's field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler.
// If handler is nil, uses a text handler to stderr at info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that writes JSON lines to w.
func NewJSONLogger(w io.Writer, level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))}
}

// NewTextLogger creates a Logger that writes human-readable text to w.
func NewTextLogger(w io.Writer, level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))}
}

// NoopLogger creates a Logger that discards all output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// WithFile tags every record with the unit path.
func (l *Logger) WithFile(path string) *Logger {
	return &Logger{Logger: l.Logger.With("file", path)}
}

// LogUnit logs the outcome of indexing one unit.
func (l *Logger) LogUnit(ctx context.Context, path string, names, bindings, failed int, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "unit failed",
			"file", path,
			"error", err,
		)
	case failed > 0:
		l.WarnContext(ctx, "unit indexed with failures",
			"file", path,
			"names", names,
			"bindings", bindings,
			"failed", failed,
		)
	default:
		l.DebugContext(ctx, "unit indexed",
			"file", path,
			"names", names,
			"bindings", bindings,
		)
	}
}

// LogBindingFailure logs a name the store could not record.
func (l *Logger) LogBindingFailure(ctx context.Context, path string, err error) {
	l.WarnContext(ctx, "binding failed",
		"file", path,
		"error", err,
	)
}

// LogRun logs the summary of an IndexFiles call.
func (l *Logger) LogRun(ctx context.Context, indexed, skipped, failed int) {
	if failed > 0 {
		l.WarnContext(ctx, "indexing completed with failures",
			"indexed", indexed,
			"skipped", skipped,
			"failed", failed,
		)
		return
	}
	l.InfoContext(ctx, "indexing completed",
		"indexed", indexed,
		"skipped", skipped,
	)
}
