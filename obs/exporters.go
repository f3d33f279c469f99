package obs

import (
	"context"
	"crypto/tls"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

const userAgent = "agentkit-otlp"

func newOTLPExporter(ctx context.Context, opts Options) (sdktrace.SpanExporter, error) {
	switch opts.Protocol {
	case "", ProtocolGRPC:
		endpoint := opts.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		grpcOpts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithHeaders(opts.Headers),
			otlptracegrpc.WithDialOption(grpc.WithUserAgent(userAgent)),
		}
		if opts.Insecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		} else {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithTLSCredentials(
				credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})))
		}
		return otlptracegrpc.New(ctx, grpcOpts...)
	case ProtocolHTTP:
		endpoint := opts.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4318"
		}
		httpOpts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithHeaders(opts.Headers),
		}
		if opts.Insecure {
			httpOpts = append(httpOpts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, httpOpts...)
	default:
		return nil, fmt.Errorf("unknown otlp protocol %q", opts.Protocol)
	}
}
