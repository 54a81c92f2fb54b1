package segstore

import (
	"context"
	"log/slog"
	"os"

	"github.com/hupe1980/segstore/model"
)

// Logger wraps slog.Logger with segstore-specific context.
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
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithDir adds the store directory to the logger.
func (l *Logger) WithDir(dir string) *Logger {
	return &Logger{
		Logger: l.Logger.With("dir", dir),
	}
}

// WithSegment adds a segment id field to the logger.
func (l *Logger) WithSegment(id model.SegmentID) *Logger {
	return &Logger{
		Logger: l.Logger.With("segment", id.String()),
	}
}

// LogOpen logs the result of opening a store.
func (l *Logger) LogOpen(ctx context.Context, version int, files, segments int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "store opened",
			"store_version", version,
			"files", files,
			"segments", segments,
		)
	}
}

// LogRecovery logs the recovery of one archive file.
func (l *Logger) LogRecovery(ctx context.Context, file string, entriesReplayed int, discardedBytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "archive recovery failed",
			"file", file,
			"entries_replayed", entriesReplayed,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "archive recovery completed",
			"file", file,
			"entries_replayed", entriesReplayed,
			"discarded_bytes", discardedBytes,
		)
	}
}

// LogRecoveredEntry logs a replayed entry.
func (l *Logger) LogRecoveredEntry(ctx context.Context, id model.SegmentID, edges, references int) {
	l.DebugContext(ctx, "entry recovered",
		"segment", id.String(),
		"bulk", id.IsBulk(),
		"edges", edges,
		"references", references,
	)
}

// LogQuarantine logs an entry skipped during recovery.
func (l *Logger) LogQuarantine(ctx context.Context, err *RecoveryError) {
	l.WarnContext(ctx, "entry quarantined",
		"segment", err.ID.String(),
		"kind", err.Kind.String(),
		"error", err.Err,
	)
}

// LogCollect logs a blob reference collection run.
func (l *Logger) LogCollect(ctx context.Context, segments, references int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "blob reference collection failed",
			"segments", segments,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "blob reference collection completed",
			"segments", segments,
			"references", references,
		)
	}
}

// LogClose logs a cleanup failure during Close. Close failures are never escalated.
func (l *Logger) LogClose(ctx context.Context, component string, err error) {
	if err != nil {
		l.WarnContext(ctx, "close failed",
			"component", component,
			"error", err,
		)
	}
}
