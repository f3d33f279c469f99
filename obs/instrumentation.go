package obs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RequestRecorder tracks one provider or HTTP request: its span, its start
// time and the attributes later attached to its metrics.
type RequestRecorder struct {
	ctx       context.Context
	operation string
	start     time.Time
	span      trace.Span
	attrs     []attribute.KeyValue
	ended     bool
}

// StartRequest opens a span named operation and counts the request.
func StartRequest(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, *RequestRecorder) {
	ctx, span := Tracer().Start(ctx, operation, trace.WithAttributes(attrs...))
	rec := &RequestRecorder{
		ctx:       ctx,
		operation: operation,
		start:     time.Now(),
		span:      span,
		attrs:     append([]attribute.KeyValue(nil), attrs...),
	}
	current().requestStarted(ctx, metricAttributes(operation, rec.attrs))
	return ctx, rec
}

// AddAttributes attaches attrs to the span and to the metrics recorded by End.
func (r *RequestRecorder) AddAttributes(attrs ...attribute.KeyValue) {
	if r == nil {
		return
	}
	r.attrs = append(r.attrs, attrs...)
	r.span.SetAttributes(attrs...)
}

// End closes the span and records duration, failures and token usage.
// Calls after the first are ignored.
func (r *RequestRecorder) End(err error, usage UsageTokens) {
	if r == nil || r.ended {
		return
	}
	r.ended = true
	if !usage.IsZero() {
		r.span.SetAttributes(
			attribute.Int("tokens.input", usage.InputTokens),
			attribute.Int("tokens.output", usage.OutputTokens),
		)
	}
	markError(r.span, err)
	current().requestEnded(r.ctx, time.Since(r.start), err, usage, metricAttributes(r.operation, r.attrs))
	r.span.End()
}

// Elapsed returns the time since StartRequest.
func (r *RequestRecorder) Elapsed() time.Duration {
	if r == nil {
		return 0
	}
	return time.Since(r.start)
}

// StartSpan opens a child span without request metrics.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan marks span failed when err is non-nil and ends it.
func EndSpan(span trace.Span, err error) {
	markError(span, err)
	span.End()
}

// RecordToolCall counts one tool invocation and its duration.
func RecordToolCall(ctx context.Context, tool string, elapsed time.Duration, err error) {
	current().toolCalled(ctx, tool, elapsed, err)
}

func markError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
