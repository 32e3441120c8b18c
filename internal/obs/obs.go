// Package obs holds the cross-cutting observability setup: slog logging,
// Prometheus metrics, and optional OpenTelemetry tracing.
package obs

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type Shutdown func(ctx context.Context) error

// NewLogger builds the process logger: JSON for production, tint console
// output when format is "console".
func NewLogger(format, level string) *slog.Logger {
	lvl := parseLevel(level)
	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console":
		handler = tint.NewHandler(os.Stdout, &tint.Options{Level: lvl, TimeFormat: time.TimeOnly})
	default:
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	return slog.New(handler).With("service", "choriad-api")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InitTracing wires the OTLP gRPC exporter when OTEL_EXPORTER_OTLP_ENDPOINT
// is set; otherwise the global no-op tracer provider stays in place.
func InitTracing(serviceName string) (Shutdown, error) {
	endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if endpoint == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exp),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// WrapHTTP layers tracing and request metrics around the root handler.
func WrapHTTP(serviceName string, next http.Handler) http.Handler {
	return MetricsMiddleware(otelhttp.NewHandler(next, serviceName))
}

func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
