package health

import (
	"context"
	"fmt"

	"github.com/jonwraymond/llmops/resilience"
)

// BreakerChecker reports the state of one circuit breaker: closed is
// healthy, half-open is degraded and open is unhealthy.
type BreakerChecker struct {
	cb *resilience.CircuitBreaker
}

// NewBreakerChecker creates a checker for cb.
func NewBreakerChecker(cb *resilience.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{cb: cb}
}

// Name returns "circuit:" followed by the breaker's service name.
func (c *BreakerChecker) Name() string {
	return "circuit:" + c.cb.Name()
}

// Check reads the breaker's metrics. It never calls through the breaker.
func (c *BreakerChecker) Check(context.Context) Result {
	return breakerResult(c.cb.Metrics())
}

func breakerResult(m resilience.CircuitBreakerMetrics) Result {
	var r Result
	switch m.State {
	case resilience.StateClosed:
		r = Healthy("circuit closed")
	case resilience.StateHalfOpen:
		r = Degraded("circuit half-open, probing")
	default:
		r = Unhealthy(fmt.Sprintf("circuit open (failure rate %.1f%%)", m.FailureRate), resilience.ErrCircuitOpen)
	}
	return r.WithDetails(breakerDetails(m))
}

func breakerDetails(m resilience.CircuitBreakerMetrics) map[string]any {
	return map[string]any{
		"state":               m.State.String(),
		"failure_rate":        m.FailureRate,
		"requests_in_window":  m.RequestsInWindow,
		"successful_requests": m.SuccessfulRequests,
		"failed_requests":     m.FailedRequests,
	}
}

// BreakerSource lists breaker metrics. *resilience.Registry implements it.
type BreakerSource interface {
	AllMetrics() []resilience.CircuitBreakerMetrics
}

// RegistryChecker reports the worst state across every breaker of a
// source. A source with no breakers is healthy.
type RegistryChecker struct {
	name string
	src  BreakerSource
}

// NewRegistryChecker creates a checker named name over src.
func NewRegistryChecker(name string, src BreakerSource) *RegistryChecker {
	return &RegistryChecker{name: name, src: src}
}

// Name returns the checker name.
func (c *RegistryChecker) Name() string {
	return c.name
}

// Check evaluates every breaker. Details map each service name to the
// breaker's state, failure rate and window counts.
func (c *RegistryChecker) Check(context.Context) Result {
	all := c.src.AllMetrics()
	if len(all) == 0 {
		return Healthy("no circuit breakers registered")
	}

	results := make(map[string]Result, len(all))
	details := make(map[string]any, len(all))
	var open []string
	for _, m := range all {
		results[m.ServiceName] = breakerResult(m)
		details[m.ServiceName] = breakerDetails(m)
		if m.State == resilience.StateOpen {
			open = append(open, m.ServiceName)
		}
	}

	var r Result
	switch worst(results) {
	case StatusHealthy:
		r = Healthy(fmt.Sprintf("%d circuits closed", len(all)))
	case StatusDegraded:
		r = Degraded("some circuits half-open")
	default:
		r = Unhealthy(fmt.Sprintf("%d of %d circuits open: %v", len(open), len(all), open), resilience.ErrCircuitOpen)
	}
	return r.WithDetails(details)
}

// RegisterBreakers adds a BreakerChecker to agg for every breaker currently
// in reg, under the checker's name.
func RegisterBreakers(agg *Aggregator, reg *resilience.Registry) {
	for _, name := range reg.Names() {
		cb, ok := reg.Get(name)
		if !ok {
			continue
		}
		c := NewBreakerChecker(cb)
		agg.Register(c.Name(), c)
	}
}
