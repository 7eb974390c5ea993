package logger

import (
	"context"
	"log/slog"
	"strings"
)

// visibleSuffix is how many trailing characters of a redacted value stay
// readable.
const visibleSuffix = 4

// redactHandler masks the values of selected attribute keys before passing
// records on. Caller keys are phone numbers and must not reach log sinks in
// the clear.
type redactHandler struct {
	next slog.Handler
	keys map[string]struct{}
}

func newRedactHandler(next slog.Handler, keys []string) slog.Handler {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return &redactHandler{next: next, keys: set}
}

func (h *redactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.attr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *redactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = h.attr(a)
	}
	return &redactHandler{next: h.next.WithAttrs(masked), keys: h.keys}
}

func (h *redactHandler) WithGroup(name string) slog.Handler {
	return &redactHandler{next: h.next.WithGroup(name), keys: h.keys}
}

func (h *redactHandler) attr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		masked := make([]any, len(group))
		for i, ga := range group {
			masked[i] = h.attr(ga)
		}
		return slog.Group(a.Key, masked...)
	}
	if _, ok := h.keys[a.Key]; !ok {
		return a
	}
	return slog.String(a.Key, Redact(a.Value.String()))
}

// Redact masks all but the last four characters of s.
func Redact(s string) string {
	if len(s) <= visibleSuffix {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-visibleSuffix) + s[len(s)-visibleSuffix:]
}
