// Package ctxlog carries a request-scoped slog.Logger through context.
package ctxlog

import (
	"context"
	"log/slog"
	"sync"
)

type loggerKey struct{}

type fieldsKey struct{}

// fields collects attributes added by inner handlers so the outer
// request logger can report them once the request completes.
type fields struct {
	mu    sync.Mutex
	attrs []any
}

// FromContext returns the logger stored in ctx, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithLogger stores logger in ctx and starts an empty field set.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	ctx = context.WithValue(ctx, fieldsKey{}, &fields{})
	return context.WithValue(ctx, loggerKey{}, logger)
}

// With adds attributes to the context logger and to the request's
// collected fields.
func With(ctx context.Context, args ...any) context.Context {
	if f, ok := ctx.Value(fieldsKey{}).(*fields); ok {
		f.mu.Lock()
		f.attrs = append(f.attrs, args...)
		f.mu.Unlock()
	}
	return context.WithValue(ctx, loggerKey{}, FromContext(ctx).With(args...))
}

// Fields returns the attributes added via With since WithLogger.
func Fields(ctx context.Context) []any {
	f, ok := ctx.Value(fieldsKey{}).(*fields)
	if !ok {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.attrs...)
}
