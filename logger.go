package popstore

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with popstore-specific context.
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
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithPopSize adds a population size field to the logger.
func (l *Logger) WithPopSize(n int) *Logger {
	return &Logger{
		Logger: l.Logger.With("pop_size", n),
	}
}

// WithSubPop adds a subpopulation field to the logger.
func (l *Logger) WithSubPop(sp int) *Logger {
	return &Logger{
		Logger: l.Logger.With("subpop", sp),
	}
}

// WithGeneration adds a generation index field to the logger.
func (l *Logger) WithGeneration(gen int) *Logger {
	return &Logger{
		Logger: l.Logger.With("generation", gen),
	}
}

// LogRestructure logs a partition restructuring operation.
func (l *Logger) LogRestructure(oldSize, newSize, numSubPops int) {
	l.Debug("subpopulation structure resolved",
		"old_size", oldSize,
		"new_size", newSize,
		"subpops", numSubPops,
	)
}

// LogPush logs a generation push.
func (l *Logger) LogPush(popSize, archived int) {
	l.Debug("generation pushed",
		"pop_size", popSize,
		"archived", archived,
	)
}

// LogEdit logs a structural schema edit.
func (l *Logger) LogEdit(op string, oldStride, newStride, generations int, err error) {
	if err != nil {
		l.Error("structural edit failed",
			"op", op,
			"error", err,
		)
		return
	}
	l.Debug("structural edit applied",
		"op", op,
		"old_stride", oldStride,
		"new_stride", newStride,
		"generations", generations,
	)
}

// LogDegradation logs a recoverable loss of functionality, such as dropping
// ancestral history when a copy cannot be allocated.
func (l *Logger) LogDegradation(op, detail string) {
	l.Warn("degraded operation",
		"op", op,
		"detail", detail,
	)
}
