// Package instrumentation wires OpenTelemetry tracing and metrics for the
// grant engine. With telemetry disabled every provider is a no-op.
package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "git.sr.ht/~jakintosh/codeflow"

type Config struct {
	ServiceName    string
	ServiceVersion string
	Enabled        bool

	// SpanProcessors receive finished spans when Enabled.
	SpanProcessors []sdktrace.SpanProcessor

	// MeterProvider replaces the no-op meter provider when set.
	MeterProvider metric.MeterProvider
}

type Instrumentation struct {
	resource       *resource.Resource
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	sdkProvider    *sdktrace.TracerProvider

	tracer  trace.Tracer
	metrics *Metrics
}

func New(cfg Config) (*Instrumentation, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "codeflow"
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "unknown"
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	inst := &Instrumentation{resource: res}

	if cfg.Enabled {
		opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
		for _, p := range cfg.SpanProcessors {
			opts = append(opts, sdktrace.WithSpanProcessor(p))
		}
		inst.sdkProvider = sdktrace.NewTracerProvider(opts...)
		inst.tracerProvider = inst.sdkProvider
	} else {
		inst.tracerProvider = tracenoop.NewTracerProvider()
	}

	if cfg.MeterProvider != nil {
		inst.meterProvider = cfg.MeterProvider
	} else {
		inst.meterProvider = metricnoop.NewMeterProvider()
	}

	inst.tracer = inst.tracerProvider.Tracer(instrumentationName)
	inst.metrics, err = newMetrics(inst.meterProvider.Meter(instrumentationName))
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return inst, nil
}

// Noop returns instrumentation that records nothing.
func Noop() *Instrumentation {
	inst, err := New(Config{})
	if err != nil {
		panic(fmt.Sprintf("instrumentation: noop setup failed: %v", err))
	}
	return inst
}

func (i *Instrumentation) Tracer() trace.Tracer {
	return i.tracer
}

func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

func (i *Instrumentation) Resource() *resource.Resource {
	return i.resource
}

// StartSpan opens a span named name carrying attrs.
func (i *Instrumentation) StartSpan(
	ctx context.Context,
	name string,
	attrs ...attribute.KeyValue,
) (
	context.Context,
	trace.Span,
) {
	return i.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (i *Instrumentation) Shutdown(ctx context.Context) error {
	if i.sdkProvider == nil {
		return nil
	}
	if err := i.sdkProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down tracer provider: %w", err)
	}
	return nil
}
