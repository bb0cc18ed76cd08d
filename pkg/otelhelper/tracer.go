// Package otelhelper provides distributed tracing functionality for workflow monitoring.
package otelhelper

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Common attribute keys.
	WorkflowIDKey    = "orchestrix.workflow.id"
	WorkflowNameKey  = "orchestrix.workflow.name"
	ExecutionIDKey   = "orchestrix.execution.id"
	NodeIDKey        = "orchestrix.node.id"
	NodeTypeKey      = "orchestrix.node.type"
	TriggerSourceKey = "orchestrix.trigger.source"
	UserIDKey        = "orchestrix.user.id"
	ServiceIDKey     = "orchestrix.service.id"
	WorkerIDKey      = "orchestrix.worker.id"
)

const tracerName = "orchestrix"

// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewTracer(ctx context.Context, serviceName string) (trace.Tracer, error) {
	provider, err := newTracerProvider(ctx, serviceName)
	if err != nil {
		return nil, err
	}

	return provider.Tracer(serviceName), nil
}

// nolint:ireturn,spancheck // Returning interface is intentional for OpenTelemetry tracing
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartExecutionSpan starts a span for a full workflow run using the globally
// registered tracer provider.
// nolint:spancheck // Span is closed by the caller
func StartExecutionSpan(ctx context.Context, workflowID, executionID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "workflow.execute", trace.WithAttributes(
		attribute.String(WorkflowIDKey, workflowID),
		attribute.String(ExecutionIDKey, executionID),
	))
}

// StartNodeSpan starts a span for a single node execution.
// nolint:spancheck // Span is closed by the caller
func StartNodeSpan(ctx context.Context, nodeType, nodeID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "node.execute", trace.WithAttributes(
		attribute.String(NodeTypeKey, nodeType),
		attribute.String(NodeIDKey, nodeID),
	))
}

func newTracerProvider(ctx context.Context, serviceName string) (*sdktrace.TracerProvider, error) {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	return tp, nil
}
