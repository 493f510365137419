package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Tracer struct {
	tracer trace.Tracer
}

func NewTracer(serviceName string) *Tracer {
	return &Tracer{
		tracer: otel.Tracer(serviceName),
	}
}

func (t *Tracer) Start(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// StartAgentSpan opens a span tagged with the employee it acts for.
func (t *Tracer) StartAgentSpan(ctx context.Context, spanName, employeeNumber string) (context.Context, trace.Span) {
	return t.Start(ctx, spanName, attribute.String("employee_number", employeeNumber))
}
