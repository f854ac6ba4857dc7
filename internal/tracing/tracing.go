package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const defaultServiceName = "offers-function"

// Span attributes recorded for offer invocations.
const (
	AttrInvocationID = attribute.Key("faas.invocation_id")
	AttrTrigger      = attribute.Key("faas.trigger")
	AttrOfferID      = attribute.Key("offer.id")
	AttrOfferCount   = attribute.Key("offer.count")
	AttrCacheHit     = attribute.Key("offer.cache_hit")
	AttrDBDialect    = attribute.Key("db.system")
)

// Config holds tracing configuration.
type Config struct {
	Enabled     bool
	Endpoint    string // Jaeger collector, e.g. "http://localhost:14268/api/traces"
	ServiceName string
	Environment string
	// Backend behind DATABASE_URL, recorded on the resource
	Dialect string
}

// Tracer wraps OpenTelemetry tracer functionality.
type Tracer struct {
	tracer trace.Tracer
}

var globalTracer *Tracer

// InitTracing installs the global tracer provider. With tracing disabled a
// no-op tracer is installed.
func InitTracing(cfg Config) (*Tracer, error) {
	if !cfg.Enabled {
		globalTracer = &Tracer{tracer: noop.NewTracerProvider().Tracer("noop")}
		return globalTracer, nil
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}

	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
			AttrDBDialect.String(cfg.Dialect),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	globalTracer = &Tracer{tracer: otel.Tracer(cfg.ServiceName)}
	return globalTracer, nil
}

// StartInvocation starts the server span for one gateway invocation.
func (t *Tracer) StartInvocation(ctx context.Context, method, invocationID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "offers "+method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.method", method),
			AttrInvocationID.String(invocationID),
			AttrTrigger.String("http"),
		),
	)
}

// SetOfferID records the offer an invocation acted on.
func SetOfferID(ctx context.Context, id int64) {
	trace.SpanFromContext(ctx).SetAttributes(AttrOfferID.Int64(id))
}

// SetListing records how a listing was produced.
func SetListing(ctx context.Context, count int, cacheHit bool) {
	trace.SpanFromContext(ctx).SetAttributes(AttrOfferCount.Int(count), AttrCacheHit.Bool(cacheHit))
}

// GetTracer returns the global tracer, or a no-op tracer before InitTracing.
func GetTracer() *Tracer {
	if globalTracer == nil {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer("noop")}
	}
	return globalTracer
}

// Shutdown flushes and stops the tracer provider.
func Shutdown(ctx context.Context) error {
	if tp, ok := otel.GetTracerProvider().(*tracesdk.TracerProvider); ok {
		return tp.Shutdown(ctx)
	}
	return nil
}
