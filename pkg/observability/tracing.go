package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// StartSpanFunc mirrors the teacher's tracer function type: every
// repository and core-component method opens a span with this signature
// and defers span.End(), rather than threading a *Tracer struct around.
type StartSpanFunc func(ctx context.Context, name string) (context.Context, trace.Span)

// NewTracer returns a StartSpanFunc bound to the named OpenTelemetry tracer.
func NewTracer(instrumentationName string) StartSpanFunc {
	tracer := otel.Tracer(instrumentationName)
	return func(ctx context.Context, name string) (context.Context, trace.Span) {
		return tracer.Start(ctx, name)
	}
}

// NoopTracer never records; used in tests where a real span would be noise.
func NoopTracer() StartSpanFunc {
	tracer := trace.NewNoopTracerProvider().Tracer("noop")
	return func(ctx context.Context, name string) (context.Context, trace.Span) {
		return tracer.Start(ctx, name)
	}
}
