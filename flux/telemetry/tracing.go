package telemetry

import (
	"context"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

var (
	providerOnce sync.Once
	providerErr  error
)

// InitTracing installs a stdouttrace-backed TracerProvider as the global
// provider. Idempotent — only the first call takes effect. Pass an empty
// outputFile to write spans to stdout.
func InitTracing(serviceName, serviceVersion, outputFile string) error {
	var w io.Writer = os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return err
		}
		w = f
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return err
	}

	providerOnce.Do(func() {
		res, rerr := resource.New(context.Background(),
			resource.WithAttributes(
				attribute.String("service.name", serviceName),
				attribute.String("service.version", serviceVersion),
			),
		)
		if rerr != nil {
			providerErr = rerr
			return
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
	})

	return providerErr
}

// Span wraps trace.Span so executor code doesn't need to import
// go.opentelemetry.io/otel/trace directly.
type Span struct {
	span trace.Span
}

// StartSpan starts a child span named for the flow node being executed
// (SPEC_FULL.md §12.2 node-execution tracing).
func StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, *Span) {
	tracer := otel.Tracer("fluxcore")

	kv := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kv = append(kv, attribute.String(k, v))
	}

	ctx, span := tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal))
	if len(kv) > 0 {
		span.SetAttributes(kv...)
	}
	return ctx, &Span{span: span}
}

// EndSpan finalises the span, recording an error status when err != nil.
func EndSpan(sp *Span, err error) {
	if sp == nil {
		return
	}
	if err != nil {
		sp.span.RecordError(err)
		sp.span.SetStatus(codes.Error, err.Error())
	} else {
		sp.span.SetStatus(codes.Ok, "")
	}
	sp.span.End()
}
