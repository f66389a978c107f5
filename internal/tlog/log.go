package tlog

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"golang.org/x/exp/slices"
)

// New returns a logger that writes to the test's log.
func New(t testing.TB) *slog.Logger {
	return slog.New(
		&handler{T: t},
	)
}

type handler struct {
	T      testing.TB
	attrs  []slog.Attr
	prefix string
}

func (h *handler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *handler) Handle(_ context.Context, rec slog.Record) error {
	buf := &strings.Builder{}
	buf.WriteString(rec.Level.String())
	buf.WriteByte(' ')
	buf.WriteString(rec.Message)

	for _, attr := range h.attrs {
		writeAttr(buf, "", attr)
	}

	rec.Attrs(func(attr slog.Attr) bool {
		writeAttr(buf, h.prefix, attr)
		return true
	})

	h.T.Log(buf.String())

	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	qualified := slices.Clone(h.attrs)
	for _, attr := range attrs {
		attr.Key = h.prefix + attr.Key
		qualified = append(qualified, attr)
	}

	return &handler{
		T:      h.T,
		attrs:  qualified,
		prefix: h.prefix,
	}
}

func (h *handler) WithGroup(name string) slog.Handler {
	return &handler{
		T:      h.T,
		attrs:  h.attrs,
		prefix: h.prefix + name + ".",
	}
}

func writeAttr(buf *strings.Builder, prefix string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}

	if attr.Value.Kind() == slog.KindGroup {
		for _, a := range attr.Value.Group() {
			writeAttr(buf, prefix+attr.Key+".", a)
		}
		return
	}

	buf.WriteString("  ")
	buf.WriteString(prefix)
	buf.WriteString(attr.Key)
	buf.WriteByte('=')
	buf.WriteString(attr.Value.Resolve().String())
}
