package obs

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// ExporterType selects where spans go.
type ExporterType string

const (
	ExporterOTLP   ExporterType = "otlp"
	ExporterStdout ExporterType = "stdout"
	ExporterNone   ExporterType = "none"
)

// Protocol is the OTLP transport.
type Protocol string

const (
	ProtocolGRPC Protocol = "grpc"
	ProtocolHTTP Protocol = "http/protobuf"
)

// Options control Init.
type Options struct {
	ServiceName string
	Environment string
	Version     string

	Exporter ExporterType
	// Protocol applies to ExporterOTLP. Empty means gRPC.
	Protocol    Protocol
	Endpoint    string
	Insecure    bool
	Headers     map[string]string
	SampleRatio float64
	// Stdout receives ExporterStdout output, os.Stdout when nil.
	Stdout io.Writer

	// Sinks receive every record passed to LogCompletion.
	Sinks []Sink
	// LogCompletions adds a LogSink writing through Logger.
	LogCompletions bool
	Logger         *slog.Logger

	DisableMetrics bool
	// MetricReaders are attached to the meter provider, e.g. a periodic
	// OTLP reader or a manual reader in tests.
	MetricReaders []sdkmetric.Reader
}

// DefaultOptions exports nothing and samples every trace.
func DefaultOptions() Options {
	return Options{Exporter: ExporterNone, SampleRatio: 1}
}

func (o Options) withDefaults() Options {
	if o.ServiceName == "" {
		o.ServiceName = "agentkit"
	}
	if o.Exporter == "" {
		o.Exporter = ExporterNone
	}
	if o.SampleRatio <= 0 || o.SampleRatio > 1 {
		o.SampleRatio = 1
	}
	return o
}

func (o Options) stdout() io.Writer {
	if o.Stdout == nil {
		return os.Stdout
	}
	return o.Stdout
}

// OptionsFromEnv reads the standard OTEL_* variables over DefaultOptions.
func OptionsFromEnv() Options {
	opts := DefaultOptions()
	opts.ServiceName = os.Getenv("OTEL_SERVICE_NAME")
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		opts.Exporter = ExporterOTLP
		opts.Insecure = strings.HasPrefix(v, "http://")
		opts.Endpoint = strings.TrimPrefix(strings.TrimPrefix(v, "http://"), "https://")
	}
	switch v := ExporterType(os.Getenv("OTEL_TRACES_EXPORTER")); v {
	case ExporterOTLP, ExporterStdout, ExporterNone:
		opts.Exporter = v
	}
	switch v := Protocol(os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL")); v {
	case ProtocolGRPC, ProtocolHTTP:
		opts.Protocol = v
	}
	if ratio, err := strconv.ParseFloat(os.Getenv("OTEL_TRACES_SAMPLER_ARG"), 64); err == nil {
		opts.SampleRatio = ratio
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); v != "" {
		opts.Headers = parseHeaders(v)
	}
	return opts
}

// parseHeaders reads "k1=v1,k2=v2"; malformed pairs are skipped.
func parseHeaders(raw string) map[string]string {
	headers := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if key = strings.TrimSpace(key); ok && key != "" {
			headers[key] = strings.TrimSpace(value)
		}
	}
	return headers
}
