package tokenscope

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/tokenscope/registry"
)

// Logger wraps slog.Logger with tokenscope-specific context.
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
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithSelector adds dataset/variant fields to the logger.
func (l *Logger) WithSelector(sel registry.Selector) *Logger {
	return &Logger{
		Logger: l.Logger.With("dataset", sel.Dataset, "variant", string(sel.Variant)),
	}
}

// WithGeneration adds a generation field to the logger.
func (l *Logger) WithGeneration(gen uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("generation", gen),
	}
}

// LogTableLoad logs completion of a manifest/table load.
func (l *Logger) LogTableLoad(ctx context.Context, sel registry.Selector, vocabSize, numShards int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "table load failed",
			"dataset", sel.Dataset,
			"variant", string(sel.Variant),
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "table loaded",
			"dataset", sel.Dataset,
			"variant", string(sel.Variant),
			"vocab_size", vocabSize,
			"num_shards", numShards,
			"duration", duration,
		)
	}
}

// LogShardFetch logs a shard fetch.
func (l *Logger) LogShardFetch(ctx context.Context, shard int, background bool, duration time.Duration, err error) {
	if err != nil {
		l.WarnContext(ctx, "shard fetch failed",
			"shard", shard,
			"background", background,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "shard fetched",
			"shard", shard,
			"background", background,
			"duration", duration,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, query string, results int, duration time.Duration) {
	l.DebugContext(ctx, "search completed",
		"query", query,
		"results", results,
		"duration", duration,
	)
}

// LogPrefetchDone logs completion of a background prefetch run.
func (l *Logger) LogPrefetchDone(ctx context.Context, fetched, skipped, failed int) {
	l.InfoContext(ctx, "prefetch completed",
		"fetched", fetched,
		"skipped", skipped,
		"failed", failed,
	)
}
