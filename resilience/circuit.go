package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonwraymond/llmops/llm"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is blocking all requests.
	StateOpen
	// StateHalfOpen means the circuit is testing if the service recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitState is a snapshot of the state machine.
// OpenedAt is set for StateOpen and StateHalfOpen; Attempts and Successes
// count completed probes while half-open.
type CircuitState struct {
	State     State
	OpenedAt  time.Time
	Attempts  int
	Successes int
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the failure rate, in percent, at or above which
	// a closed circuit opens.
	// Default: 50
	FailureThreshold float64

	// MinimumRequestCount is the number of outcomes the window must hold
	// before the failure rate is considered.
	// Default: 10
	MinimumRequestCount int

	// MeasurementWindow is the age beyond which outcomes are discarded.
	// Default: 60 seconds
	MeasurementWindow time.Duration

	// RecoveryTimeout is how long the circuit stays open before probing.
	// It is also the retry-after hint of rejections.
	// Default: 30 seconds
	RecoveryTimeout time.Duration

	// HalfOpenMaxRequests is the number of probes decided on in half-open state.
	// Default: 3
	HalfOpenMaxRequests int

	// SuccessThreshold is the probe success rate, in percent, required to close.
	// Default: 60
	SuccessThreshold float64

	// OnStateChange is called when the circuit state changes. It runs while
	// the breaker lock is held and must not call back into the breaker.
	OnStateChange func(name string, from, to State)

	// IsFailure determines if an error should count as a failure.
	// Default: all non-nil errors except context.Canceled are failures.
	// A canceled call is never recorded, whatever IsFailure returns.
	IsFailure func(err error) bool
}

// DefaultCircuitBreakerConfig returns a config with every default applied.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{}.withDefaults()
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 50
	}
	if c.MinimumRequestCount <= 0 {
		c.MinimumRequestCount = 10
	}
	if c.MeasurementWindow <= 0 {
		c.MeasurementWindow = 60 * time.Second
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxRequests <= 0 {
		c.HalfOpenMaxRequests = 3
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 60
	}
	if c.IsFailure == nil {
		c.IsFailure = func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}
	}
	return c
}

type outcome struct {
	at     time.Time
	failed bool
}

// CircuitBreaker implements the circuit breaker pattern over a sliding
// failure-rate window.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	now    func() time.Time

	mu         sync.Mutex
	state      CircuitState
	history    []outcome
	generation uint64
	inFlight   int // half-open probes admitted but not yet completed
}

// NewCircuitBreaker creates a new circuit breaker for the named service.
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:   name,
		config: config.withDefaults(),
		now:    time.Now,
		state:  CircuitState{State: StateClosed},
	}
}

// Execute runs the operation through the circuit breaker. While the circuit
// rejects calls, op is not invoked and a circuit_open *llm.Error wrapping
// ErrCircuitOpen is returned.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	gen, err := cb.beforeRequest()
	if err != nil {
		return err
	}

	err = op(ctx)
	cb.afterRequest(gen, err)
	return err
}

// Name returns the service name the breaker protects.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Config returns the effective configuration.
func (cb *CircuitBreaker) Config() CircuitBreakerConfig {
	return cb.config
}

// State returns the current circuit state. Reading the state never
// transitions it; an open circuit moves to half-open only when a call arrives.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.State
}

// Snapshot returns the full state machine snapshot.
func (cb *CircuitBreaker) Snapshot() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the circuit and clears the outcome history.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.history = cb.history[:0]
	cb.setStateLocked(CircuitState{State: StateClosed})
}

// ForceOpen opens the circuit now, regardless of the failure rate.
func (cb *CircuitBreaker) ForceOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.setStateLocked(CircuitState{State: StateOpen, OpenedAt: cb.now()})
}

// ForceClose closes the circuit and clears the outcome history.
func (cb *CircuitBreaker) ForceClose() {
	cb.Reset()
}

func (cb *CircuitBreaker) beforeRequest() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()

	switch cb.state.State {
	case StateOpen:
		if now.Sub(cb.state.OpenedAt) < cb.config.RecoveryTimeout {
			return 0, cb.rejectLocked(now)
		}
		// The call that triggers the transition is the first probe.
		cb.setStateLocked(CircuitState{State: StateHalfOpen, OpenedAt: cb.state.OpenedAt})
		cb.inFlight++
	case StateHalfOpen:
		if cb.state.Attempts+cb.inFlight >= cb.config.HalfOpenMaxRequests {
			return 0, cb.rejectLocked(now)
		}
		cb.inFlight++
	}

	return cb.generation, nil
}

func (cb *CircuitBreaker) afterRequest(gen uint64, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// The caller gave up; the outcome says nothing about the service.
	if errors.Is(err, context.Canceled) {
		if gen == cb.generation && cb.state.State == StateHalfOpen {
			cb.inFlight--
		}
		return
	}

	now := cb.now()
	failed := cb.config.IsFailure(err)
	cb.recordLocked(now, failed)

	// A probe admitted under an earlier state only feeds the history.
	if gen != cb.generation {
		return
	}

	switch cb.state.State {
	case StateClosed:
		if failed && cb.shouldOpenLocked() {
			cb.setStateLocked(CircuitState{State: StateOpen, OpenedAt: now})
		}

	case StateHalfOpen:
		cb.inFlight--
		if failed {
			cb.setStateLocked(CircuitState{State: StateOpen, OpenedAt: now})
			return
		}

		cb.state.Attempts++
		cb.state.Successes++
		if cb.state.Attempts < cb.config.HalfOpenMaxRequests {
			return
		}

		rate := float64(cb.state.Successes) / float64(cb.state.Attempts) * 100
		if rate >= cb.config.SuccessThreshold {
			cb.history = cb.history[:0]
			cb.setStateLocked(CircuitState{State: StateClosed})
		} else {
			cb.setStateLocked(CircuitState{State: StateOpen, OpenedAt: now})
		}
	}
}

func (cb *CircuitBreaker) rejectLocked(now time.Time) error {
	cb.pruneLocked(now)
	return llm.NewCircuitOpenError(cb.name, cb.failureRateLocked(), cb.config.RecoveryTimeout, ErrCircuitOpen)
}

func (cb *CircuitBreaker) setStateLocked(next CircuitState) {
	prev := cb.state.State
	cb.state = next
	cb.generation++
	cb.inFlight = 0
	if prev != next.State && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, prev, next.State)
	}
}

func (cb *CircuitBreaker) recordLocked(now time.Time, failed bool) {
	cb.pruneLocked(now)
	cb.history = append(cb.history, outcome{at: now, failed: failed})
}

// pruneLocked drops outcomes older than the measurement window.
func (cb *CircuitBreaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-cb.config.MeasurementWindow)
	i := 0
	for i < len(cb.history) && cb.history[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		cb.history = append(cb.history[:0], cb.history[i:]...)
	}
}

func (cb *CircuitBreaker) shouldOpenLocked() bool {
	if len(cb.history) < cb.config.MinimumRequestCount {
		return false
	}
	return cb.failureRateLocked() >= cb.config.FailureThreshold
}

func (cb *CircuitBreaker) failureRateLocked() float64 {
	if len(cb.history) == 0 {
		return 0
	}
	failures := 0
	for _, o := range cb.history {
		if o.failed {
			failures++
		}
	}
	return float64(failures) / float64(len(cb.history)) * 100
}

// Metrics returns current circuit breaker metrics.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.pruneLocked(cb.now())

	m := CircuitBreakerMetrics{
		ServiceName:      cb.name,
		State:            cb.state.State,
		RequestsInWindow: len(cb.history),
	}
	for _, o := range cb.history {
		if o.failed {
			m.FailedRequests++
		} else {
			m.SuccessfulRequests++
		}
	}
	m.TotalRequests = m.SuccessfulRequests + m.FailedRequests
	m.FailureRate = cb.failureRateLocked()
	return m
}

// CircuitBreakerMetrics contains circuit breaker statistics computed from
// the current window.
type CircuitBreakerMetrics struct {
	ServiceName        string
	State              State
	TotalRequests      int
	SuccessfulRequests int
	FailedRequests     int
	FailureRate        float64
	RequestsInWindow   int
}
