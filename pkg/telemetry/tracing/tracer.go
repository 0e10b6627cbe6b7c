// Package tracing sets up the OpenTelemetry tracer provider used by
// verification runs.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/daimatz/gomuzzle"

// Config contains configuration for New.
type Config struct {
	Enabled     bool
	ServiceName string

	// Writer receives the exported spans (defaults to os.Stderr).
	Writer io.Writer

	// Exporter replaces the stdout exporter when set.
	Exporter sdktrace.SpanExporter
}

// Tracer owns a tracer provider. When tracing is disabled every span is a
// noop and Shutdown does nothing.
type Tracer struct {
	provider trace.TracerProvider
	sdk      *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// New creates a Tracer. The returned tracer must be shut down to flush
// pending spans:
//
//	defer tracer.Shutdown(context.Background())
func New(cfg Config) (*Tracer, error) {
	if !cfg.Enabled {
		provider := noop.NewTracerProvider()
		return &Tracer{provider: provider, tracer: provider.Tracer(instrumentationName)}, nil
	}

	exporter := cfg.Exporter
	if exporter == nil {
		writer := cfg.Writer
		if writer == nil {
			writer = os.Stderr
		}
		var err error
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(writer), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create exporter: %w", err)
		}
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "gomuzzle"
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	sdk := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	return &Tracer{provider: sdk, sdk: sdk, tracer: sdk.Tracer(instrumentationName)}, nil
}

// Start creates a span as a child of the span in ctx, if any.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// TracerProvider returns the provider to hand to instrumented code.
func (t *Tracer) TracerProvider() trace.TracerProvider { return t.provider }

// Enabled returns whether spans are recorded.
func (t *Tracer) Enabled() bool { return t.sdk != nil }

// ForceFlush exports every ended span that is still buffered.
func (t *Tracer) ForceFlush(ctx context.Context) error {
	if t.sdk == nil {
		return nil
	}
	return t.sdk.ForceFlush(ctx)
}

// Shutdown flushes pending spans and shuts the provider down.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.sdk == nil {
		return nil
	}
	return t.sdk.Shutdown(ctx)
}
