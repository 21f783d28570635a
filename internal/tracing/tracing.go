package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultServiceName = "logscope"
	serviceVersion     = "0.1.0"
	instrumentation    = "github.com/therealutkarshpriyadarshi/logscope"
)

// Config holds tracing configuration
type Config struct {
	Enabled     bool
	Endpoint    string
	SampleRate  float64
	ServiceName string
}

// Provider wraps the OpenTelemetry tracer provider
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// NewProvider creates a new tracing provider. A disabled config yields the
// global no-op tracer.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{
			tracer: otel.Tracer(instrumentation),
		}, nil
	}

	name := cfg.ServiceName
	if name == "" {
		name = defaultServiceName
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", name),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter *otlptrace.Exporter
	if cfg.Endpoint != "" {
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
		exporter, err = otlptrace.New(ctx, client)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate > 0 && cfg.SampleRate < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(res),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{
		tp:     tp,
		tracer: tp.Tracer(instrumentation),
	}, nil
}

// Tracer returns the tracer
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Shutdown flushes and shuts down the tracer provider
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp != nil {
		return p.tp.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the package tracer from the global provider. Components
// call this rather than holding a Provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentation)
}

// RecordError marks the span in ctx as failed
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetAttributes sets attributes on the current span
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// TraceParse creates a span for parsing a whole source
func TraceParse(ctx context.Context, source string, size int64) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "stream.parse",
		trace.WithAttributes(
			attribute.String("source.name", source),
			attribute.Int64("source.size", size),
		),
	)
}

// TraceGeo creates a span for a geolocation batch lookup
func TraceGeo(ctx context.Context, ipCount int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "geo.lookup",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int("geo.ip_count", ipCount),
		),
	)
}

// TraceExport creates a span for writing results to a sink
func TraceExport(ctx context.Context, sink string, recordCount int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "export.write",
		trace.WithAttributes(
			attribute.String("export.sink", sink),
			attribute.Int("export.record_count", recordCount),
		),
	)
}
