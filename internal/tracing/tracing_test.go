package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	if p.Tracer() == nil {
		t.Error("Tracer() returned nil")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNewProvider_EnabledWithoutEndpoint(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	p, err := NewProvider(context.Background(), Config{Enabled: true, SampleRate: 0.5, ServiceName: "logscope-test"})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	defer p.Shutdown(context.Background())

	_, span := p.Tracer().Start(context.Background(), "test")
	span.End()
}

func TestSpanHelpers(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	ctx, span := TraceParse(context.Background(), "access.log", 1024)
	RecordError(ctx, errors.New("read failed"))
	span.End()

	_, geoSpan := TraceGeo(context.Background(), 12)
	geoSpan.End()

	_, exportSpan := TraceExport(context.Background(), "s3", 99)
	exportSpan.End()

	ended := recorder.Ended()
	if len(ended) != 3 {
		t.Fatalf("ended spans = %d, want 3", len(ended))
	}

	names := []string{"stream.parse", "geo.lookup", "export.write"}
	for i, s := range ended {
		if s.Name() != names[i] {
			t.Errorf("span[%d] = %s, want %s", i, s.Name(), names[i])
		}
	}
	if len(ended[0].Events()) == 0 {
		t.Error("expected recorded error event on parse span")
	}
}
