package log

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// WithContext returns a copy of ctx carrying logger.
func WithContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext extracts a logger from ctx, falling back to the slog default.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// OrDefault returns logger, or the slog default tagged with component when nil.
func OrDefault(logger *Logger, component string) *Logger {
	if logger != nil {
		return logger.WithComponent(component)
	}
	return &Logger{
		Logger:    slog.Default(),
		component: component,
	}
}
