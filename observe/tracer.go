package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/llmops/llm"
)

// Operation names used in CallMeta.
const (
	OperationComplete = "complete"
	OperationStream   = "stream"
)

// CallMeta describes one provider call for telemetry purposes.
type CallMeta struct {
	Provider  string // Provider name (required)
	Model     string // Model that served the call (optional)
	Operation string // OperationComplete or OperationStream
	CallID    string // Correlates attempts of one logical call (optional)
}

// SpanName returns the deterministic span name for this call.
// Format: llm.<operation>.<provider>
func (m CallMeta) SpanName() string {
	op := m.Operation
	if op == "" {
		op = OperationComplete
	}
	return "llm." + op + "." + m.Provider
}

func (m CallMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("llm.provider", m.Provider),
		attribute.String("llm.operation", m.Operation),
	}
	if m.Model != "" {
		attrs = append(attrs, attribute.String("llm.model", m.Model))
	}
	return attrs
}

// errorAttributes describes a failed call by its classified error.
func errorAttributes(err error) []attribute.KeyValue {
	e := llm.Classify(err)
	return []attribute.KeyValue{
		attribute.String("llm.error.kind", string(e.Kind)),
		attribute.String("llm.error.severity", e.Severity().String()),
		attribute.Bool("llm.error.retryable", e.IsRetryable()),
	}
}

// Tracer wraps OpenTelemetry tracing with provider call span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for a provider call.
	StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer wrapping the given OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

// StartSpan starts a client span with call metadata as attributes.
func (t *tracerImpl) StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span) {
	attrs := append(meta.attributes(), attribute.Bool("llm.error", false))
	if meta.CallID != "" {
		attrs = append(attrs, attribute.String("llm.call_id", meta.CallID))
	}

	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("llm.error", true))
		span.SetAttributes(errorAttributes(err)...)
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

// NewNoopTracer creates a Tracer whose spans are never recorded.
func NewNoopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
