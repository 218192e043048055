package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rasidhq/rasid/internal/interp"
)

// Interpreter matches the interpreter surface the gateways consume.
type Interpreter interface {
	Interpret(ctx context.Context, message string) (*interp.Plan, error)
}

// InstrumentedInterpreter wraps an interpreter with metrics and tracing.
// Nil metrics or tracer are skipped.
type InstrumentedInterpreter struct {
	inner   Interpreter
	metrics *MetricsCollector
	tracer  trace.Tracer
}

// InstrumentInterpreter wraps ip. Returns ip unchanged when there is
// nothing to record.
func InstrumentInterpreter(ip Interpreter, metrics *MetricsCollector, tracer trace.Tracer) Interpreter {
	if metrics == nil && tracer == nil {
		return ip
	}
	return &InstrumentedInterpreter{inner: ip, metrics: metrics, tracer: tracer}
}

func (i *InstrumentedInterpreter) Interpret(ctx context.Context, message string) (*interp.Plan, error) {
	if i.tracer != nil {
		var span trace.Span
		ctx, span = i.tracer.Start(ctx, "interp.interpret")
		defer span.End()
	}

	start := time.Now()
	plan, err := i.inner.Interpret(ctx, message)
	duration := time.Since(start).Seconds()

	if i.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		i.metrics.InterpRequestsTotal.WithLabelValues(status).Inc()
		i.metrics.InterpRequestDuration.Observe(duration)
	}
	if i.tracer != nil && plan != nil {
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.Int("interp.operations", len(plan.Operations)),
		)
	}
	return plan, err
}

// OperationObserver records per-operation execution metrics. The
// executor reports each operation by name so batches stay accurate.
type OperationObserver struct {
	metrics *MetricsCollector
}

// NewOperationObserver creates an observer; nil-safe.
func NewOperationObserver(metrics *MetricsCollector) *OperationObserver {
	return &OperationObserver{metrics: metrics}
}

// Observe records one operation execution.
func (o *OperationObserver) Observe(operation string, duration time.Duration, err error) {
	if o == nil || o.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	o.metrics.OperationsTotal.WithLabelValues(operation, status).Inc()
	o.metrics.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
