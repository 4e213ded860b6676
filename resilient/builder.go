package resilient

import (
	"context"
	"time"

	"github.com/jonwraymond/llmops/llm"
	"github.com/jonwraymond/llmops/observe"
	"github.com/jonwraymond/llmops/resilience"
)

// Builder collects the policy knobs of a Provider. The zero policies are
// resilience.DefaultRetryPolicy and resilience.DefaultCircuitBreakerConfig:
// 3 attempts, exponential x2 backoff with full jitter, and a breaker that
// opens at 50% failures over 60s and probes again after 30s.
//
// Builder methods return the builder for chaining. A Builder may be reused;
// every Build call creates a new Provider.
type Builder struct {
	retry          resilience.RetryPolicy
	breaker        resilience.CircuitBreakerConfig
	registry       *resilience.Registry
	rateLimiter    *resilience.RateLimiter
	bulkhead       *resilience.Bulkhead
	attemptTimeout time.Duration
	logger         observe.Logger
	metrics        observe.Metrics
	serviceName    string
}

// NewBuilder returns a builder holding the default policies.
func NewBuilder() *Builder {
	return &Builder{
		retry:   resilience.DefaultRetryPolicy(),
		breaker: resilience.DefaultCircuitBreakerConfig(),
	}
}

// MaxRetries sets the total number of attempts, including the first.
func (b *Builder) MaxRetries(attempts int) *Builder {
	b.retry.MaxAttempts = attempts
	return b
}

// FailureThreshold sets the failure rate, in percent, that opens the circuit.
func (b *Builder) FailureThreshold(pct float64) *Builder {
	b.breaker.FailureThreshold = pct
	return b
}

// RecoveryTimeout sets how long the circuit stays open before probing.
func (b *Builder) RecoveryTimeout(d time.Duration) *Builder {
	b.breaker.RecoveryTimeout = d
	return b
}

// RetryPolicy replaces the whole retry policy.
func (b *Builder) RetryPolicy(p resilience.RetryPolicy) *Builder {
	b.retry = p
	return b
}

// CircuitBreakerConfig replaces the whole breaker configuration.
func (b *Builder) CircuitBreakerConfig(c resilience.CircuitBreakerConfig) *Builder {
	b.breaker = c
	return b
}

// Registry makes the provider take its breaker from r, so providers built
// with the same service name share one breaker. The breaker config is used
// only if r has no breaker under that name yet.
func (b *Builder) Registry(r *resilience.Registry) *Builder {
	b.registry = r
	return b
}

// RateLimiter limits the rate of calls before they reach the breaker.
func (b *Builder) RateLimiter(rl *resilience.RateLimiter) *Builder {
	b.rateLimiter = rl
	return b
}

// Bulkhead limits the number of concurrent calls.
func (b *Builder) Bulkhead(bh *resilience.Bulkhead) *Builder {
	b.bulkhead = bh
	return b
}

// AttemptTimeout bounds every Complete attempt. Zero disables it.
func (b *Builder) AttemptTimeout(d time.Duration) *Builder {
	b.attemptTimeout = d
	return b
}

// Logger receives retry, breaker transition and failure entries.
// Default: no logging
func (b *Builder) Logger(l observe.Logger) *Builder {
	b.logger = l
	return b
}

// Metrics receives a count of every retried attempt.
// Default: no metrics
func (b *Builder) Metrics(m observe.Metrics) *Builder {
	b.metrics = m
	return b
}

// ServiceName names the breaker.
// Default: "provider_" + inner.Name()
func (b *Builder) ServiceName(name string) *Builder {
	b.serviceName = name
	return b
}

// Build wraps inner. It fails when inner is nil or the retry policy is
// malformed.
func (b *Builder) Build(inner llm.Provider) (*Provider, error) {
	if inner == nil {
		return nil, ErrNilProvider
	}
	if err := b.retry.Validate(); err != nil {
		return nil, err
	}

	name := inner.Name()
	service := b.serviceName
	if service == "" {
		service = "provider_" + name
	}

	logger := b.logger
	if logger == nil {
		logger = observe.NewNoopLogger()
	}
	logger = logger.WithProvider(name)

	metrics := b.metrics
	if metrics == nil {
		metrics = observe.NewNoopMetrics()
	}

	breakerCfg := b.breaker
	breakerCfg.OnStateChange = logTransitions(logger, b.breaker.OnStateChange)

	var cb *resilience.CircuitBreaker
	if b.registry != nil {
		cb = b.registry.GetOrCreateWithConfig(service, breakerCfg)
	} else {
		cb = resilience.NewCircuitBreaker(service, breakerCfg)
	}

	policy := b.retry
	policy.OnRetry = logRetries(name, logger, metrics, b.retry.OnRetry)

	opts := []resilience.ExecutorOption{
		resilience.WithCircuitBreaker(cb),
		resilience.WithRetry(resilience.NewRetry(policy)),
	}
	if b.rateLimiter != nil {
		opts = append(opts, resilience.WithRateLimiter(b.rateLimiter))
	}
	if b.bulkhead != nil {
		opts = append(opts, resilience.WithBulkhead(b.bulkhead))
	}
	if b.attemptTimeout > 0 {
		opts = append(opts, resilience.WithTimeout(b.attemptTimeout))
	}

	return &Provider{
		inner:    inner,
		executor: resilience.NewExecutor(opts...),
		breaker:  cb,
		logger:   logger,
	}, nil
}

func logTransitions(logger observe.Logger, next func(name string, from, to resilience.State)) func(name string, from, to resilience.State) {
	return func(name string, from, to resilience.State) {
		if next != nil {
			next(name, from, to)
		}

		fields := []observe.Field{
			{Key: "llm.circuit.service", Value: name},
			{Key: "from", Value: from.String()},
			{Key: "to", Value: to.String()},
		}
		// Transitions are not tied to a single call.
		ctx := context.Background()
		if to == resilience.StateOpen {
			logger.Warn(ctx, "circuit opened", fields...)
			return
		}
		logger.Info(ctx, "circuit state changed", fields...)
	}
}

func logRetries(provider string, logger observe.Logger, metrics observe.Metrics, next func(ctx context.Context, attempt int, err error, delay time.Duration)) func(ctx context.Context, attempt int, err error, delay time.Duration) {
	return func(ctx context.Context, attempt int, err error, delay time.Duration) {
		if next != nil {
			next(ctx, attempt, err, delay)
		}

		logger.Warn(ctx, "retrying provider call",
			observe.Field{Key: "attempt", Value: attempt},
			observe.Field{Key: "delay_ms", Value: delay.Milliseconds()},
			observe.Field{Key: "error", Value: err},
			observe.Field{Key: "error_kind", Value: string(llm.KindOf(err))},
		)
		metrics.RecordRetry(ctx, observe.CallMeta{
			Provider:  provider,
			Operation: observe.OperationComplete,
			CallID:    observe.CallIDFromContext(ctx),
		}, attempt, err)
	}
}
