// Package obslog wraps slog.Handler so every log record is enriched
// with context-carried identifiers before it reaches the underlying
// handler.
package obslog

import (
	"context"
	"log/slog"

	"github.com/triggerd/engine/internal/requestid"
)

// ContextHandler wraps an slog.Handler and automatically extracts
// request_id from the context of each log record.
type ContextHandler struct {
	inner slog.Handler
}

// NewContextHandler returns a handler that enriches every record with
// context values (currently request_id) before delegating to inner.
func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{inner: inner}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := requestid.FromContext(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}

// New builds the engine's standard logger: tint for local/dev,
// structured JSON everywhere else.
func New(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = newTintHandler(level)
	} else {
		inner = slog.NewJSONHandler(newStdout(), &slog.HandlerOptions{Level: level})
	}
	return slog.New(NewContextHandler(inner))
}
