// Package obs wires OpenTelemetry tracing and metrics for providers, the
// runner and the HTTP API, and fans completion records out to sinks.
// Everything is a no-op until Init is called.
package obs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const scope = "github.com/shillcollin/agentkit"

// ErrInitialized is returned by Init while a previous Manager is still live.
var ErrInitialized = errors.New("obs: already initialized")

var (
	mu      sync.RWMutex
	manager *Manager
)

// Manager owns the providers and sinks installed by Init.
type Manager struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	instruments    *instruments
	sinks          []Sink
}

// Sink consumes completion records.
type Sink interface {
	LogCompletion(context.Context, Completion) error
	Shutdown(context.Context) error
}

// Init installs global tracer and meter providers built from opts and
// returns the function that flushes and removes them.
func Init(ctx context.Context, opts Options) (func(context.Context) error, error) {
	mu.Lock()
	defer mu.Unlock()
	if manager != nil {
		return nil, ErrInitialized
	}
	m, err := newManager(ctx, opts.withDefaults())
	if err != nil {
		return nil, err
	}
	manager = m
	return m.Shutdown, nil
}

func newManager(ctx context.Context, opts Options) (*Manager, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(opts.ServiceName)}
	if opts.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(opts.Version))
	}
	if opts.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(opts.Environment))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, fmt.Errorf("obs: resource: %w", err)
	}

	spans, err := newSpanExporter(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("obs: %s exporter: %w", opts.Exporter, err)
	}
	m := &Manager{
		tracerProvider: sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRatio))),
			sdktrace.WithBatcher(spans),
			sdktrace.WithResource(res),
		),
		sinks: append([]Sink(nil), opts.Sinks...),
	}
	m.tracer = m.tracerProvider.Tracer(scope)
	otel.SetTracerProvider(m.tracerProvider)

	if !opts.DisableMetrics {
		mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
		for _, reader := range opts.MetricReaders {
			mpOpts = append(mpOpts, sdkmetric.WithReader(reader))
		}
		m.meterProvider = sdkmetric.NewMeterProvider(mpOpts...)
		otel.SetMeterProvider(m.meterProvider)
		if m.instruments, err = newInstruments(m.meterProvider.Meter(scope)); err != nil {
			return nil, fmt.Errorf("obs: instruments: %w", err)
		}
	}
	if opts.LogCompletions {
		m.sinks = append(m.sinks, NewLogSink(opts.Logger))
	}
	return m, nil
}

// Shutdown flushes sinks and providers and uninstalls the Manager so Init
// may be called again.
func (m *Manager) Shutdown(ctx context.Context) error {
	mu.Lock()
	if manager == m {
		manager = nil
	}
	mu.Unlock()

	var errs []error
	for _, sink := range m.sinks {
		errs = append(errs, sink.Shutdown(ctx))
	}
	if m.meterProvider != nil {
		errs = append(errs, m.meterProvider.Shutdown(ctx))
	}
	errs = append(errs, m.tracerProvider.Shutdown(ctx))
	return errors.Join(errs...)
}

func newSpanExporter(ctx context.Context, opts Options) (sdktrace.SpanExporter, error) {
	switch opts.Exporter {
	case ExporterNone:
		return discardExporter{}, nil
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithWriter(opts.stdout()))
	case ExporterOTLP:
		return newOTLPExporter(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown exporter %q", opts.Exporter)
	}
}

type discardExporter struct{}

func (discardExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }
func (discardExporter) Shutdown(context.Context) error { return nil }

func current() *instruments {
	mu.RLock()
	defer mu.RUnlock()
	if manager == nil {
		return nil
	}
	return manager.instruments
}

// Tracer returns the installed tracer, or the global one before Init.
func Tracer() trace.Tracer {
	mu.RLock()
	defer mu.RUnlock()
	if manager == nil {
		return otel.Tracer(scope)
	}
	return manager.tracer
}

// Meter returns a meter for custom instruments.
func Meter() metric.Meter {
	return otel.Meter(scope)
}

// LogCompletion hands c to every sink. Sink errors are dropped.
func LogCompletion(ctx context.Context, c Completion) {
	mu.RLock()
	var sinks []Sink
	if manager != nil {
		sinks = manager.sinks
	}
	mu.RUnlock()
	for _, sink := range sinks {
		_ = sink.LogCompletion(ctx, c)
	}
}
