// Package telemetry provides the OpenTelemetry tracing foundation for sipbox.
// Tracing is disabled by default and enabled via environment variables.
package telemetry

import (
	"context"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	tracer         trace.Tracer
	tracerProvider *sdktrace.TracerProvider
	initOnce       sync.Once
	enabled        bool
)

// Config holds telemetry configuration
type Config struct {
	// ServiceName is the name of the service (default: sipbox)
	ServiceName string
	// ServiceVersion is the version of the binary
	ServiceVersion string
	// OTLPEndpoint is the OTLP collector endpoint (e.g., localhost:4317)
	OTLPEndpoint string
	// Debug enables the stdout trace exporter
	Debug bool
}

// DefaultConfig returns the default telemetry configuration
func DefaultConfig() Config {
	return Config{
		ServiceName:    "sipbox",
		ServiceVersion: getEnvOrDefault("SIPBOX_VERSION", "dev"),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Debug:          os.Getenv("SIPBOX_TRACE_DEBUG") == "1",
	}
}

// Init initializes the telemetry system. Call early in main(). If no OTLP
// endpoint is configured and debug is off, tracing stays noop.
func Init(cfg Config) error {
	var err error
	initOnce.Do(func() {
		err = initTracer(cfg)
	})
	return err
}

func initTracer(cfg Config) error {
	if cfg.OTLPEndpoint == "" && !cfg.Debug {
		tracer = noop.NewTracerProvider().Tracer(cfg.ServiceName)
		enabled = false
		return nil
	}

	enabled = true

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return err
	}

	var exporter sdktrace.SpanExporter

	if cfg.Debug {
		exporter, err = stdouttrace.New(
			stdouttrace.WithPrettyPrint(),
		)
		if err != nil {
			return err
		}
	} else if cfg.OTLPEndpoint != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)

		exporter, err = otlptrace.New(ctx, client)
		if err != nil {
			return err
		}
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()), // CLI tool, sample everything
	)

	otel.SetTracerProvider(tracerProvider)
	tracer = tracerProvider.Tracer(cfg.ServiceName)

	return nil
}

// Shutdown gracefully shuts down the tracer provider
func Shutdown(ctx context.Context) error {
	if tracerProvider != nil {
		return tracerProvider.Shutdown(ctx)
	}
	return nil
}

// IsEnabled returns true if tracing is enabled
func IsEnabled() bool {
	return enabled
}

// Tracer returns the global tracer instance
func Tracer() trace.Tracer {
	if tracer == nil {
		return noop.NewTracerProvider().Tracer("sipbox")
	}
	return tracer
}

// StartSpan starts a new span with the given name
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// TraceReconcile starts a span for one reconciliation cycle
func TraceReconcile(ctx context.Context, project string) (context.Context, trace.Span) {
	return StartSpan(ctx, "reconcile.cycle",
		trace.WithAttributes(
			attribute.String("reconcile.project", project),
		),
	)
}

// TracePhase starts a span for one phase of a cycle (detect, allocate,
// zone, cert, persist)
func TracePhase(ctx context.Context, phase string) (context.Context, trace.Span) {
	return StartSpan(ctx, "reconcile."+phase)
}

// RecordError records an error on the current span
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if span != nil {
		span.RecordError(err)
	}
}

// SetAttribute sets a string attribute on the current span
func SetAttribute(ctx context.Context, key, value string) {
	span := trace.SpanFromContext(ctx)
	if span != nil {
		span.SetAttributes(attribute.String(key, value))
	}
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
