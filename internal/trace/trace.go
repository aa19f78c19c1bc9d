package trace

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "stratify-engine"

var (
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	enabled  bool
)

// Init sets up the tracer provider with the stdout exporter. Tracing is
// on unless LOG_TRACING_ENABLED=false; when off every helper degrades
// to a pass-through.
func Init() error {
	enabled = os.Getenv("LOG_TRACING_ENABLED") != "false"
	if !enabled {
		return nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return err
	}
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return err
	}

	provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	tracer = otel.Tracer(serviceName)
	return nil
}

func Shutdown(ctx context.Context) error {
	if provider != nil {
		return provider.Shutdown(ctx)
	}
	return nil
}

func Enabled() bool { return enabled }

// StartSpan opens a generic span; returns the ambient span unchanged
// when tracing is off.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if !enabled || tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// StartRun opens the root span for one execution: every step span,
// fill event, and lifecycle event hangs off it.
func StartRun(ctx context.Context, executionID int64, kind, symbol string) (context.Context, trace.Span) {
	return StartSpan(ctx, "execution.Run", trace.WithAttributes(
		attribute.Int64("execution_id", executionID),
		attribute.String("kind", kind),
		attribute.String("symbol", symbol),
	))
}

// StartStep opens the per-candle span inside a run.
func StartStep(ctx context.Context, executionID, candleTs int64) (context.Context, trace.Span) {
	return StartSpan(ctx, "driver.step", trace.WithAttributes(
		attribute.Int64("execution_id", executionID),
		attribute.Int64("candle_ts", candleTs),
	))
}

// GetTraceFields extracts the active trace/span ids for log correlation.
func GetTraceFields(ctx context.Context) (traceID, spanID string, ok bool) {
	if !enabled {
		return "", "", false
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return "", "", false
	}
	return sc.TraceID().String(), sc.SpanID().String(), true
}
