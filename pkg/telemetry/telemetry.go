// Package telemetry installs the OpenTelemetry tracer provider.
//
// Tracing stays a no-op unless OTEL_EXPORTER_OTLP_ENDPOINT (or
// OTEL_EXPORTER_OTLP_TRACES_ENDPOINT) is set, in which case spans are sent
// over OTLP gRPC. The exporter reads the remaining OTEL_* variables itself.
package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/macropower/k8r/pkg/version"
)

const ServiceName = "k8r"

var endpointEnvVars = []string{
	"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT",
	"OTEL_EXPORTER_OTLP_ENDPOINT",
}

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(ctx context.Context) error

type options struct {
	exporter sdktrace.SpanExporter
}

// Opt configures [Setup].
type Opt func(o *options)

// WithExporter uses exp instead of the environment-configured OTLP exporter.
func WithExporter(exp sdktrace.SpanExporter) Opt {
	return func(o *options) {
		o.exporter = exp
	}
}

// Enabled reports whether an OTLP endpoint is configured.
func Enabled() bool {
	for _, key := range endpointEnvVars {
		if os.Getenv(key) != "" {
			return true
		}
	}

	return false
}

// Setup installs a global tracer provider when tracing is enabled. The
// returned function must be called before exit to flush pending spans.
func Setup(ctx context.Context, opts ...Opt) (ShutdownFunc, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.exporter == nil {
		if !Enabled() {
			return func(context.Context) error { return nil }, nil
		}

		exp, err := otlptracegrpc.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}

		o.exporter = exp
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(o.exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", ServiceName),
			attribute.String("service.version", version.GetVersion()),
		)),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
