package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Span represents a single named and timed operation of a workflow.
type Span struct {
	recorder *Recorder
	ctx      context.Context
	span     trace.Span
	logger   *slog.Logger
}

// StartSpan starts a new span.
func (r *Recorder) StartSpan(
	ctx context.Context,
	name string,
	attrs ...Attr,
) (context.Context, *Span) {
	set := attrSet{
		Namespace: r.name,
		Attrs:     attrs,
	}

	ctx, span := r.tracer.Start(
		ctx,
		name,
		trace.WithAttributes(
			attrSet{
				Namespace: r.name,
				Attrs:     r.attrs,
			}.ForSpan()...,
		),
		trace.WithAttributes(set.ForSpan()...),
	)

	loggerAttrs := set.ForLogger(
		slog.String("span_name", name),
	)

	sctx := span.SpanContext()
	if sctx.HasSpanID() {
		loggerAttrs = append(
			loggerAttrs,
			slog.String("span_id", sctx.SpanID().String()),
		)
	}

	return ctx, &Span{
		r,
		ctx,
		span,
		r.logger.With(loggerAttrs...),
	}
}

// End completes the span.
func (s *Span) End() {
	s.span.End()
}

// SetAttributes sets attributes on the span.
func (s *Span) SetAttributes(attrs ...Attr) {
	s.span.SetAttributes(
		attrSet{
			Namespace: s.recorder.name,
			Attrs:     attrs,
		}.ForSpan()...,
	)
}
