package telemetry

import (
	"log/slog"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Info logs an info-level event.
func (s *Span) Info(message string, attributes ...Attr) {
	s.record(slog.LevelInfo, message, attributes)
}

// Warn logs an warning-level event.
func (s *Span) Warn(message string, attributes ...Attr) {
	s.record(slog.LevelWarn, message, attributes)
}

// Debug logs a debug-level event.
func (s *Span) Debug(message string, attributes ...Attr) {
	s.record(slog.LevelDebug, message, attributes)
}

// Error logs an error-level event.
//
// It marks the span as failed and increments the "errors" metric.
func (s *Span) Error(message string, err error, attributes ...Attr) {
	s.span.SetStatus(codes.Error, err.Error())
	s.span.RecordError(err, trace.WithAttributes(s.eventAttrs(attributes).ForSpan()...))
	s.recorder.errors.Add(s.ctx, 1)

	if !s.logger.Enabled(s.ctx, slog.LevelError) {
		return
	}

	s.logger.ErrorContext(
		s.ctx,
		message,
		s.eventAttrs(attributes).ForLogger(
			slog.String("error", err.Error()),
		)...,
	)
}

func (s *Span) record(level slog.Level, message string, attributes []Attr) {
	if !s.logger.Enabled(s.ctx, level) {
		return
	}

	attrs := s.eventAttrs(attributes)

	s.span.AddEvent(message, trace.WithAttributes(attrs.ForSpan()...))
	s.logger.Log(s.ctx, level, message, attrs.ForLogger()...)
}

func (s *Span) eventAttrs(attributes []Attr) attrSet {
	return attrSet{
		Namespace: s.recorder.name,
		Attrs:     attributes,
	}
}
