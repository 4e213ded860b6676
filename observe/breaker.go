package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jonwraymond/llmops/resilience"
)

// BreakerSource lists breaker snapshots. *resilience.Registry satisfies it.
type BreakerSource interface {
	AllMetrics() []resilience.CircuitBreakerMetrics
}

// RegisterBreakerMetrics publishes the state of every breaker in src as
// observable gauges, read on each collection:
//
//	llm.circuit.state              0 closed, 1 open, 2 half-open
//	llm.circuit.failure_rate       percent failed in the window
//	llm.circuit.requests_in_window outcomes currently in the window
//
// Each observation carries the llm.circuit.service attribute. Unregister the
// returned registration to stop reporting.
func RegisterBreakerMetrics(meter metric.Meter, src BreakerSource) (metric.Registration, error) {
	if src == nil {
		return nil, ErrNilBreakerSource
	}

	state, err := meter.Int64ObservableGauge(
		"llm.circuit.state",
		metric.WithDescription("Circuit breaker state (0 closed, 1 open, 2 half-open)"),
		metric.WithUnit("{state}"),
	)
	if err != nil {
		return nil, err
	}

	failureRate, err := meter.Float64ObservableGauge(
		"llm.circuit.failure_rate",
		metric.WithDescription("Percentage of failed requests in the measurement window"),
		metric.WithUnit("%"),
	)
	if err != nil {
		return nil, err
	}

	inWindow, err := meter.Int64ObservableGauge(
		"llm.circuit.requests_in_window",
		metric.WithDescription("Requests recorded in the measurement window"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for _, m := range src.AllMetrics() {
			opt := metric.WithAttributes(attribute.String("llm.circuit.service", m.ServiceName))
			o.ObserveInt64(state, int64(m.State), opt)
			o.ObserveFloat64(failureRate, m.FailureRate, opt)
			o.ObserveInt64(inWindow, int64(m.RequestsInWindow), opt)
		}
		return nil
	}, state, failureRate, inWindow)
}
