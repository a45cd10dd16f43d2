package otel

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// routeTracer is the tracer used for per-attempt routing spans, distinct
// from otelgin's HTTP-layer spans. Named after the service so exported
// spans are attributable even if multiple tracer providers are merged
// downstream.
var routeTracer = otel.Tracer("llmrouter/router")

// InitTracer sets up the OpenTelemetry tracer provider.
// Returns a shutdown function to call on application exit.
func InitTracer(serviceName string, logger *zap.Logger, w io.Writer) (func(context.Context) error, error) {
	// Create stdout exporter (replace with OTLP exporter for production)
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, err
	}

	// Create resource without merging with Default() to avoid schema conflicts
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
		resource.WithHost(),
		resource.WithOS(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, err
	}

	// Create tracer provider
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	// Set global tracer provider
	otel.SetTracerProvider(tp)

	logger.Info("OpenTelemetry tracer initialized", zap.String("service", serviceName))

	return tp.Shutdown, nil
}

// StartRouteAttempt opens a span for a single provider attempt within a
// routing decision (one span per candidate tried, not one per request) so
// a trace shows exactly which providers were skipped or retried before a
// response was served. Callers must always call the returned end func,
// passing the attempt's outcome.
func StartRouteAttempt(ctx context.Context, provider, model string, priority string, attemptNum int) (context.Context, func(err error)) {
	ctx, span := routeTracer.Start(ctx, "router.attempt",
		trace.WithAttributes(
			attribute.String("router.provider", provider),
			attribute.String("router.model", model),
			attribute.String("router.priority", priority),
			attribute.Int("router.attempt", attemptNum),
		),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}
