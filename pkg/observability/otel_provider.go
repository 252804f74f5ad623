package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TracerProviderConfig configures the OTLP/gRPC exporter the server
// connects to, mirroring the teacher's observability bootstrap that wires a
// real exporter in production and falls back to a no-op tracer otherwise.
type TracerProviderConfig struct {
	ServiceName string
	Endpoint    string
	Insecure    bool
}

// NewOTLPTracerProvider dials the configured collector and registers it as
// the global tracer provider, returning a shutdown func the caller must
// invoke during graceful shutdown.
func NewOTLPTracerProvider(ctx context.Context, cfg TracerProviderConfig) (func(context.Context) error, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
