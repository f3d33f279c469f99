package obs

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/shillcollin/agentkit/core"
)

// instruments are created once per Manager. A nil *instruments records nothing.
type instruments struct {
	requests     metric.Int64Counter
	failures     metric.Int64Counter
	latency      metric.Float64Histogram
	tokens       metric.Int64Counter
	toolCalls    metric.Int64Counter
	toolDuration metric.Float64Histogram
}

func newInstruments(m metric.Meter) (*instruments, error) {
	var (
		in   instruments
		errs []error
		err  error
	)
	in.requests, err = m.Int64Counter("agentkit.requests",
		metric.WithDescription("Provider and agent requests started"))
	errs = append(errs, err)
	in.failures, err = m.Int64Counter("agentkit.request.failures",
		metric.WithDescription("Requests that ended with an error, by error kind"))
	errs = append(errs, err)
	in.latency, err = m.Float64Histogram("agentkit.request.duration",
		metric.WithDescription("Request duration"), metric.WithUnit("ms"))
	errs = append(errs, err)
	in.tokens, err = m.Int64Counter("agentkit.tokens",
		metric.WithDescription("Tokens consumed, by direction"), metric.WithUnit("{token}"))
	errs = append(errs, err)
	in.toolCalls, err = m.Int64Counter("agentkit.tool.calls",
		metric.WithDescription("Tool invocations"))
	errs = append(errs, err)
	in.toolDuration, err = m.Float64Histogram("agentkit.tool.duration",
		metric.WithDescription("Tool invocation duration"), metric.WithUnit("ms"))
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &in, nil
}

func (in *instruments) requestStarted(ctx context.Context, attrs attribute.Set) {
	if in == nil {
		return
	}
	in.requests.Add(ctx, 1, metric.WithAttributeSet(attrs))
}

func (in *instruments) requestEnded(ctx context.Context, elapsed time.Duration, err error, usage UsageTokens, attrs attribute.Set) {
	if in == nil {
		return
	}
	set := metric.WithAttributeSet(attrs)
	in.latency.Record(ctx, float64(elapsed)/float64(time.Millisecond), set)
	if err != nil {
		in.failures.Add(ctx, 1, set, metric.WithAttributes(attribute.String("error.kind", errorKind(err))))
	}
	for _, t := range []struct {
		direction string
		n         int
	}{
		{"input", usage.InputTokens},
		{"output", usage.OutputTokens},
		{"cached", usage.CachedTokens},
	} {
		if t.n > 0 {
			in.tokens.Add(ctx, int64(t.n), set, metric.WithAttributes(attribute.String("direction", t.direction)))
		}
	}
}

func (in *instruments) toolCalled(ctx context.Context, tool string, elapsed time.Duration, err error) {
	if in == nil {
		return
	}
	set := metric.WithAttributes(attribute.String("tool", tool), attribute.Bool("error", err != nil))
	in.toolCalls.Add(ctx, 1, set)
	in.toolDuration.Record(ctx, float64(elapsed)/float64(time.Millisecond), set)
}

// errorKind maps err to a low-cardinality label.
func errorKind(err error) string {
	var completion *core.CompletionError
	var prompt *core.PromptError
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &completion):
		return string(completion.Kind)
	case errors.As(err, &prompt):
		return string(prompt.Kind)
	default:
		return "other"
	}
}

// highCardinality keys stay on spans and are dropped from metric attributes.
var highCardinality = map[attribute.Key]bool{
	"request_id": true,
	"call_id":    true,
	"session_id": true,
}

func metricAttributes(operation string, attrs []attribute.KeyValue) attribute.Set {
	kept := make([]attribute.KeyValue, 0, len(attrs)+1)
	kept = append(kept, attribute.String("operation", operation))
	for _, kv := range attrs {
		if !highCardinality[kv.Key] {
			kept = append(kept, kv)
		}
	}
	return attribute.NewSet(kept...)
}
