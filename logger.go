package raybridge

import (
	"context"
	"log/slog"
	"os"

	"golang.org/x/time/rate"
)

// Logger wraps slog.Logger with raybridge-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
	sampler *rate.Limiter
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
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithSampling limits query-path error logs to perSecond entries with a
// burst of the same size. perSecond <= 0 disables sampling.
func (l *Logger) WithSampling(perSecond float64) *Logger {
	out := &Logger{Logger: l.Logger}
	if perSecond > 0 {
		burst := max(int(perSecond), 1)
		out.sampler = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return out
}

// WithScene adds a scene field to the logger.
func (l *Logger) WithScene(id uint32) *Logger {
	return &Logger{
		Logger:  l.Logger.With("scene", id),
		sampler: l.sampler,
	}
}

// WithBuffer adds a buffer handle field to the logger.
func (l *Logger) WithBuffer(h Handle) *Logger {
	return &Logger{
		Logger:  l.Logger.With("buffer", h.String()),
		sampler: l.sampler,
	}
}

// LogDevice logs device creation.
func (l *Logger) LogDevice(ctx context.Context, props Properties, err error) {
	if err != nil {
		l.ErrorContext(ctx, "device creation failed",
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "device created",
		"version", props.Version,
		"isa", props.ISA,
		"simd_width", props.SIMDWidth,
		"threads", props.Threads,
	)
}

// LogRelease logs a native teardown.
func (l *Logger) LogRelease(ctx context.Context, what string, err error) {
	if err != nil {
		l.ErrorContext(ctx, what+" release failed",
			"error", err,
		)
	} else {
		l.DebugContext(ctx, what+" released")
	}
}

// LogRegister logs a buffer registration.
func (l *Logger) LogRegister(ctx context.Context, role Role, format Format, mode Mode, count int, err error) {
	if err != nil {
		l.WarnContext(ctx, "buffer registration failed",
			"role", role.String(),
			"format", format.String(),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "buffer registered",
			"role", role.String(),
			"format", format.String(),
			"mode", mode.String(),
			"count", count,
		)
	}
}

// LogUnregister logs a buffer unregistration.
func (l *Logger) LogUnregister(ctx context.Context, err error) {
	if err != nil {
		l.WarnContext(ctx, "buffer unregister failed",
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "buffer unregistered")
	}
}

// LogCommit logs a scene commit.
func (l *Logger) LogCommit(ctx context.Context, stats SceneStats, err error) {
	if err != nil {
		l.ErrorContext(ctx, "scene commit failed",
			"geometries", stats.Geometries,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "scene committed",
			"geometries", stats.Geometries,
			"primitives", stats.Primitives,
			"nodes", stats.Nodes,
			"max_depth", stats.MaxDepth,
			"duration", stats.BuildTime,
		)
	}
}

// LogBatch logs a completed batch query. Failed batches go through
// LogQueryError so they share its sampling.
func (l *Logger) LogBatch(ctx context.Context, kind string, count, hits int) {
	l.DebugContext(ctx, kind+" batch completed",
		"count", count,
		"hits", hits,
	)
}

// LogQueryError logs a rejected query, subject to sampling.
func (l *Logger) LogQueryError(ctx context.Context, kind string, err error) {
	if l.sampler != nil && !l.sampler.Allow() {
		return
	}
	l.WarnContext(ctx, kind+" rejected",
		"error", err,
	)
}
