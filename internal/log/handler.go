package log

import (
	"context"
	"log/slog"

	"github.com/ErlanBelekov/bloodbank/internal/access"
	"github.com/ErlanBelekov/bloodbank/internal/requestid"
)

// ContextHandler wraps an slog.Handler and enriches each record with values
// carried by the context: request_id and, once the access filter has bound
// one, the principal's username.
type ContextHandler struct {
	inner slog.Handler
}

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
	if p := access.FromContext(ctx); p != nil {
		r.AddAttrs(slog.String("principal", p.Username))
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}
