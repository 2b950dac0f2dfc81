// Package logcontext carries slog attributes on a context.Context so a
// correlation id (or any other field) attached once at the top of a
// call chain shows up on every log line written further down it,
// without threading a logger through every function signature.
package logcontext

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

var slogFields = ctxKey{}

// AppendCtx returns a context with attr appended to any attributes
// already carried by ctx.
func AppendCtx(ctx context.Context, attr slog.Attr) context.Context {
	existing, ok := ctx.Value(slogFields).([]slog.Attr)
	if !ok {
		return context.WithValue(ctx, slogFields, []slog.Attr{attr})
	}
	return context.WithValue(ctx, slogFields, append(existing, attr))
}

// Attrs extracts the attributes AppendCtx accumulated on ctx, for
// handlers (like slog-loki) that pull context attributes explicitly
// rather than through a wrapping slog.Handler.
func Attrs(ctx context.Context) []slog.Attr {
	attrs, _ := ctx.Value(slogFields).([]slog.Attr)
	return attrs
}

// ContextHandler decorates a slog.Handler so that Handle picks up any
// attributes appended to the record's context via AppendCtx.
type ContextHandler struct {
	slog.Handler
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs, ok := ctx.Value(slogFields).([]slog.Attr); ok {
		for _, a := range attrs {
			r.AddAttrs(a)
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}
