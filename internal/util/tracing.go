package util

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultServiceName names spans and log lines until InitTracer is called
const DefaultServiceName = "checkout-service"

var (
	tracerMu    sync.RWMutex
	tracerName  = DefaultServiceName
	tracerCache trace.Tracer
)

// InitTracer exports spans to Jaeger under serviceName. Spans started before
// this call go to the no-op provider.
func InitTracer(serviceName, jaegerEndpoint string) (*sdktrace.TracerProvider, error) {
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	exporter, err := jaeger.New(
		jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)

	tracerMu.Lock()
	tracerName = serviceName
	tracerCache = tp.Tracer(serviceName)
	tracerMu.Unlock()

	GetLogger().Info("Tracer initialized",
		zap.String("tracer", serviceName),
		zap.String("endpoint", jaegerEndpoint))
	return tp, nil
}

// TracerName is the instrumentation name spans are recorded under
func TracerName() string {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	return tracerName
}

// GetTracer returns the service tracer
func GetTracer() trace.Tracer {
	tracerMu.RLock()
	t := tracerCache
	tracerMu.RUnlock()
	if t != nil {
		return t
	}

	tracerMu.Lock()
	defer tracerMu.Unlock()
	if tracerCache == nil {
		tracerCache = otel.Tracer(tracerName)
	}
	return tracerCache
}

// StartSpan starts a new span
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, spanName)
}
