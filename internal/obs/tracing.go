package obs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultServiceName is reported when TracingConfig.ServiceName is empty.
const DefaultServiceName = "payment-mock"

// TracingConfig controls tracer provider initialisation.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	// Exporter is "otlp" (default) or "none".
	Exporter         string
	SamplingRatio    float64
	Environment      string
	StageDelay       time.Duration
	IdempotencyStore string
}

// InitTracer installs the global tracer provider and propagators and returns
// its shutdown function. The "none" exporter leaves the no-op provider alone.
func InitTracer(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	exporter, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if exporter == nil {
		return func(context.Context) error { return nil }, nil
	}
	tp, err := newTracerProvider(ctx, cfg, sdktrace.WithBatcher(exporter))
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return nil, err
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

func newSpanExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch kind := strings.ToLower(strings.TrimSpace(cfg.Exporter)); kind {
	case "none":
		return nil, nil
	case "", "otlp":
		var opts []otlptracehttp.Option
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpointURL(endpoint))
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", kind)
	}
}

func newTracerProvider(ctx context.Context, cfg TracingConfig, opts ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, error) {
	res, err := serviceResource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	opts = append([]sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sampler(cfg.SamplingRatio)),
		sdktrace.WithResource(res),
	}, opts...)
	return sdktrace.NewTracerProvider(opts...), nil
}

// sampler follows the caller's sampling decision and samples root spans at
// ratio. Ratios outside (0, 1] sample everything.
func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

func serviceResource(ctx context.Context, cfg TracingConfig) (*resource.Resource, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = DefaultServiceName
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(name),
		semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		attribute.Int64("paymock.job.stage_delay_ms", cfg.StageDelay.Milliseconds()),
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(cfg.ServiceVersion))
	}
	if cfg.IdempotencyStore != "" {
		attrs = append(attrs, attribute.String("paymock.idempotency.store", cfg.IdempotencyStore))
	}
	return resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(attrs...),
	)
}
