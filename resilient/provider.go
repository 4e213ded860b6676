package resilient

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/llmops/llm"
	"github.com/jonwraymond/llmops/observe"
	"github.com/jonwraymond/llmops/resilience"
)

// Provider is an llm.Provider that retries failed completions and stops
// calling the inner provider while its circuit is open.
//
// Contract:
//   - Concurrency: safe for concurrent use when the inner provider is.
//   - Context: every call carries a call id (see observe.EnsureCallID) that
//     is shared by all of its attempts.
//   - Errors: failures are *llm.Error values attributed to the inner
//     provider, or rejections from the breaker (circuit_open), rate limiter
//     (rate_limit) or bulkhead (resilience.ErrBulkheadFull).
//   - Ownership: each attempt sends its own copy of the request.
type Provider struct {
	inner    llm.Provider
	executor *resilience.Executor
	breaker  *resilience.CircuitBreaker
	logger   observe.Logger
}

// New wraps inner with the default policies.
func New(inner llm.Provider) (*Provider, error) {
	return NewBuilder().Build(inner)
}

// NewWithConfig wraps inner with the given retry policy and breaker config.
func NewWithConfig(inner llm.Provider, retry resilience.RetryPolicy, breaker resilience.CircuitBreakerConfig) (*Provider, error) {
	return NewBuilder().RetryPolicy(retry).CircuitBreakerConfig(breaker).Build(inner)
}

// Complete sends req through the breaker and the retry loop.
func (p *Provider) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	ctx, _ = observe.EnsureCallID(ctx)
	start := time.Now()

	var (
		attempts atomic.Int32
		result   atomic.Pointer[llm.Response]
	)
	err := p.executor.Execute(ctx, func(ctx context.Context) error {
		attempts.Add(1)
		resp, err := p.inner.Complete(ctx, req.Clone())
		if err != nil {
			return Attribute(err, p.inner.Name())
		}
		// An attempt abandoned by its timeout may still finish; keep the first.
		result.CompareAndSwap(nil, resp)
		return nil
	})
	if err != nil {
		// Attempt timeouts and backoff cancellation surface outside the attempt.
		if !rejected(err) {
			err = Attribute(err, p.inner.Name())
		}
		p.logFailure(ctx, observe.OperationComplete, err, int(attempts.Load()), time.Since(start))
		return nil, err
	}
	return result.Load(), nil
}

// CompleteStream opens a stream through the breaker. It makes a single
// attempt; the stream's terminal error is attributed like Complete errors.
func (p *Provider) CompleteStream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	ctx, _ = observe.EnsureCallID(ctx)
	start := time.Now()

	var stream llm.Stream
	err := p.executor.ExecuteOnce(ctx, func(ctx context.Context) error {
		s, err := p.inner.CompleteStream(ctx, req.Clone())
		if err != nil {
			return Attribute(err, p.inner.Name())
		}
		stream = s
		return nil
	})
	if err != nil {
		p.logFailure(ctx, observe.OperationStream, err, 1, time.Since(start))
		return nil, err
	}
	return &attributedStream{Stream: stream, provider: p.inner.Name()}, nil
}

func (p *Provider) logFailure(ctx context.Context, op string, err error, attempts int, elapsed time.Duration) {
	fields := []observe.Field{
		{Key: "llm.operation", Value: op},
		{Key: "attempts", Value: attempts},
		{Key: "elapsed_ms", Value: elapsed.Milliseconds()},
		{Key: "error", Value: err},
		{Key: "error_kind", Value: string(llm.KindOf(err))},
	}

	if rejected(err) {
		if d, ok := llm.RetryAfter(err); ok {
			fields = append(fields, observe.Field{Key: "retry_after_ms", Value: d.Milliseconds()})
		}
		p.logger.Warn(ctx, "provider call rejected", fields...)
		return
	}
	p.logger.Error(ctx, "provider call failed", fields...)
}

// rejected reports whether err came from an admission layer rather than
// the inner provider.
func rejected(err error) bool {
	return errors.Is(err, resilience.ErrCircuitOpen) ||
		errors.Is(err, resilience.ErrRateLimitExceeded) ||
		errors.Is(err, resilience.ErrBulkheadFull)
}

// Name returns the inner provider's name.
func (p *Provider) Name() string { return p.inner.Name() }

// DefaultModel returns the inner provider's default model.
func (p *Provider) DefaultModel() string { return p.inner.DefaultModel() }

// AvailableModels returns the inner provider's models.
func (p *Provider) AvailableModels() []string { return p.inner.AvailableModels() }

// Inner returns the wrapped provider.
func (p *Provider) Inner() llm.Provider { return p.inner }

// CircuitBreaker returns the breaker guarding the inner provider.
func (p *Provider) CircuitBreaker() *resilience.CircuitBreaker { return p.breaker }

// CircuitBreakerMetrics returns a snapshot of the breaker.
func (p *Provider) CircuitBreakerMetrics() resilience.CircuitBreakerMetrics {
	return p.breaker.Metrics()
}

// ResetCircuitBreaker closes the circuit and clears its history.
func (p *Provider) ResetCircuitBreaker() { p.breaker.Reset() }

// OpenCircuitBreaker opens the circuit until the recovery timeout elapses.
func (p *Provider) OpenCircuitBreaker() { p.breaker.ForceOpen() }

// CloseCircuitBreaker closes the circuit.
func (p *Provider) CloseCircuitBreaker() { p.breaker.ForceClose() }

// Ensure Provider implements llm.Provider
var _ llm.Provider = (*Provider)(nil)
