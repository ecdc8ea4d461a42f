// Package telemetry installs the OpenTelemetry tracer provider shared by the
// agent and the collector.
package telemetry

import (
	"context"
	"errors"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/obsidianstack/scalarship/pkg/types"
)

// Environment variables read by Setup.
const (
	EnvEndpoint = "SCALARSHIP_OTEL_ENDPOINT"
	EnvEnabled  = "SCALARSHIP_OTEL_ENABLED"
)

// Swapped in tests.
var (
	newExporter = func(ctx context.Context, endpoint string) (sdktrace.SpanExporter, error) {
		return otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	}
	newResource = func(ctx context.Context, serviceName string) (*resource.Resource, error) {
		return resource.New(ctx,
			resource.WithAttributes(
				semconv.ServiceName(serviceName),
				semconv.ServiceVersion(types.Version),
			),
		)
	}
)

// Setup initialises tracing for serviceName.
//
// Tracing is opt-in: when SCALARSHIP_OTEL_ENDPOINT is empty or
// SCALARSHIP_OTEL_ENABLED is "false", Setup returns a no-op shutdown
// function and leaves the global provider alone.
//
// The returned shutdown function flushes pending spans and should be deferred
// by the caller.
func Setup(ctx context.Context, serviceName string) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	if strings.EqualFold(os.Getenv(EnvEnabled), "false") {
		return noop, nil
	}
	endpoint := os.Getenv(EnvEndpoint)
	if endpoint == "" {
		return noop, nil
	}

	exporter, err := newExporter(ctx, endpoint)
	if err != nil {
		return noop, err
	}

	res, err := newResource(ctx, serviceName)
	if err != nil {
		return noop, errors.Join(err, exporter.Shutdown(ctx))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}
