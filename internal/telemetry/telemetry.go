// Package telemetry wires a global OpenTelemetry TracerProvider: an
// OTLP/HTTP exporter when an endpoint is configured, a no-op provider
// otherwise. Spans are started around generator hydration cycles and
// webhook invocations so a trace backend can show both stages of the
// pipeline on one timeline.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const tracerName = "github.com/triggerd/engine"

// Init configures the global TracerProvider. When endpoint is empty
// it leaves otel's default no-op provider in place and Shutdown is a no-op,
// so callers can unconditionally defer the returned function.
func Init(ctx context.Context, endpoint, serviceName string, logger *slog.Logger) (shutdown func(context.Context) error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }
	}

	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		logger.Warn("otel exporter init failed, tracing disabled", "error", err)
		return func(context.Context) error { return nil }
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceNameKey.String(serviceName),
	))
	if err != nil {
		res = resource.Default()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	logger.Info("otel tracer initialized", "endpoint", endpoint)
	return tp.Shutdown
}

// StartSpan starts a span on the package tracer and returns the
// derived context and an end function, mirroring the call shape
// generator/processor cycles use at the top of each loop iteration.
func StartSpan(ctx context.Context, name string) (context.Context, func()) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	return ctx, func() { span.End() }
}

// Flush bounds shutdown to a fixed grace period so a slow exporter
// never holds up process exit.
func Flush(shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = shutdown(ctx)
}
