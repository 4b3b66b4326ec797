package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry TracerProvider scoped to this process.
// No component in this module starts spans on its own; callers choose
// the span boundaries, as in the usage below.
//
// Usage:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{ServiceName: "aiwhisperer"})
//	defer shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "ai_loop.iteration")
//	defer span.End()
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// TraceConfig configures the tracer.
type TraceConfig struct {
	ServiceName    string
	ServiceVersion string
}

// NewTracer builds a process-local TracerProvider. Spans are batched and
// processed in-process; this system is explicitly single-process
// (spec.md §5/§9 Non-goals), so no network exporter is wired — a consumer
// that needs one can register an additional span processor on the
// returned provider.
func NewTracer(cfg TraceConfig) (*Tracer, func(context.Context) error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "aiwhisperer"
	}

	res, _ := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)

	provider := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(provider)

	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(cfg.ServiceName),
	}, provider.Shutdown
}

// Start begins a span named name, returning the derived context and span.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError marks span as errored and records err, mirroring the
// propagation policy of spec.md §7 (no raw error is swallowed silently).
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
