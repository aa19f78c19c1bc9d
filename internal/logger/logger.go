package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"stratify/internal/trace"
	"stratify/internal/types"
)

var (
	globalLogger *slog.Logger
	logLevel     slog.Level
)

// Init configures the global slog logger from environment variables:
// LOG_LEVEL (DEBUG/INFO/WARN/ERROR) and LOG_FORMAT (json/text).
func Init() error {
	logLevel = parseLogLevel(getEnvOrDefault("LOG_LEVEL", "INFO"))

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if getEnvOrDefault("LOG_FORMAT", "json") == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Debug logs a debug message.
func Debug(ctx context.Context, msg string, args ...any) {
	logWithTrace(ctx, slog.LevelDebug, msg, args...)
}

// Info logs an info message.
func Info(ctx context.Context, msg string, args ...any) {
	logWithTrace(ctx, slog.LevelInfo, msg, args...)
}

// Warn logs a warning message.
func Warn(ctx context.Context, msg string, args ...any) {
	logWithTrace(ctx, slog.LevelWarn, msg, args...)
}

// Error logs an error message.
func Error(ctx context.Context, msg string, args ...any) {
	logWithTrace(ctx, slog.LevelError, msg, args...)
}

// ErrorWithErr logs an error message with an error object and records
// the error on the active span.
func ErrorWithErr(ctx context.Context, msg string, err error, args ...any) {
	if trace.Enabled() {
		span := oteltrace.SpanFromContext(ctx)
		if span.SpanContext().IsValid() {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	allArgs := append([]any{"error", err}, args...)
	logWithTrace(ctx, slog.LevelError, msg, allArgs...)
}

// Fill logs a filled order, always at info level, and attaches a span
// event so fills show up on the execution trace.
func Fill(ctx context.Context, executionID int64, t types.Trade, args ...any) {
	if trace.Enabled() {
		span := oteltrace.SpanFromContext(ctx)
		if span.SpanContext().IsValid() {
			span.AddEvent("order_filled", oteltrace.WithAttributes(
				attribute.Int64("execution_id", executionID),
				attribute.String("type", string(t.Type)),
				attribute.String("side", string(t.Side)),
				attribute.Float64("price", t.Price),
				attribute.Float64("amount", t.Amount),
			))
		}
	}
	allArgs := append([]any{
		"type", "FILL",
		"execution_id", executionID,
		"order_type", string(t.Type),
		"side", string(t.Side),
		"price", t.Price,
		"amount", t.Amount,
		"cost", t.Cost,
		"abs_profit", t.AbsProfit,
	}, args...)
	logWithTrace(ctx, slog.LevelInfo, "Order filled", allArgs...)
}

// Lifecycle logs an execution lifecycle event (created, stepped,
// completed, cancelled, failed).
func Lifecycle(ctx context.Context, executionID int64, event string, args ...any) {
	if trace.Enabled() {
		span := oteltrace.SpanFromContext(ctx)
		if span.SpanContext().IsValid() {
			span.AddEvent("execution_"+event, oteltrace.WithAttributes(
				attribute.Int64("execution_id", executionID),
			))
		}
	}
	allArgs := append([]any{
		"type", "LIFECYCLE",
		"execution_id", executionID,
		"event", event,
	}, args...)
	logWithTrace(ctx, slog.LevelInfo, "Execution "+event, allArgs...)
}

func logWithTrace(ctx context.Context, level slog.Level, msg string, args ...any) {
	if globalLogger == nil {
		globalLogger = slog.Default()
	}
	if traceID, spanID, ok := trace.GetTraceFields(ctx); ok {
		args = append([]any{"trace_id", traceID, "span_id", spanID}, args...)
	}
	globalLogger.Log(ctx, level, msg, args...)
}
