package logging

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// FromContext returns the logger carried by ctx. Without one it falls back to
// the process logger so call sites never need a nil check.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return Default()
}

// WithContext returns a copy of ctx carrying logger.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// WithLookup tags the logger in ctx with the URL and host of a PAC lookup.
// An empty host is omitted.
func WithLookup(ctx context.Context, rawURL, host string) context.Context {
	attrs := []any{slog.String("url", rawURL)}
	if host != "" {
		attrs = append(attrs, slog.String("host", host))
	}
	return WithContext(ctx, FromContext(ctx).With(slog.Group("lookup", attrs...)))
}
