package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Operation tracks one request handled by an exposed route.
type Operation struct {
	Route         string
	CorrelationID string
	StartTime     time.Time
	Metrics       *Metrics
}

// NewOperation creates an operation starting now. If metrics is nil, metric
// recording is skipped.
func NewOperation(route, correlationID string, metrics *Metrics) *Operation {
	return &Operation{
		Route:         route,
		CorrelationID: correlationID,
		StartTime:     time.Now(),
		Metrics:       metrics,
	}
}

type operationKey struct{}

// WithOperation stores op in ctx.
func WithOperation(ctx context.Context, op *Operation) context.Context {
	return context.WithValue(ctx, operationKey{}, op)
}

// OperationFromContext returns the Operation stored in ctx, or nil.
func OperationFromContext(ctx context.Context) *Operation {
	if op, ok := ctx.Value(operationKey{}).(*Operation); ok {
		return op
	}
	return nil
}

// Start opens a span for the operation and records the request start.
// The returned context carries both the span and op.
func (op *Operation) Start(ctx context.Context, spanName string) (context.Context, trace.Span) {
	ctx, span := StartSpan(ctx, spanName)
	span.SetAttributes(
		attribute.String(AttrRoute, op.Route),
		attribute.String(AttrCorrelationID, op.CorrelationID),
	)
	if op.Metrics != nil {
		op.Metrics.RecordRequestStart(ctx, op.Route)
	}
	return WithOperation(ctx, op), span
}

// End closes span and records the outcome.
func (op *Operation) End(ctx context.Context, span trace.Span, status string, err error) {
	duration := op.Duration()

	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String(AttrErrorMessage, err.Error()))
	}
	span.SetAttributes(
		attribute.String(AttrStatus, status),
		attribute.Int64(AttrDurationMs, duration.Milliseconds()),
	)
	span.End()

	if op.Metrics != nil {
		op.Metrics.RecordRequestEnd(ctx, op.Route, status, duration)
	}
}

// Duration returns the time elapsed since the operation started.
func (op *Operation) Duration() time.Duration {
	return time.Since(op.StartTime)
}
