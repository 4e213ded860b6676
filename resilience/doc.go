// Package resilience provides resilience patterns for calls to text-generation
// providers.
//
// The patterns understand the llm error taxonomy: retry decisions use
// llm.IsRetryable and honor retry-after hints, and every rejection a pattern
// produces is an *llm.Error, so callers classify failures the same way
// whether they came from the provider or from this package.
//
// # Patterns
//
//   - Retry: retries failed attempts under a RetryPolicy with exponential,
//     linear, fixed or custom backoff, five jitter strategies, a retry
//     condition and a total-time budget.
//
//   - Circuit Breaker: tracks outcomes in a sliding time window and opens
//     when the failure rate crosses a threshold. After a recovery timeout it
//     admits a bounded number of probes and closes again if enough succeed.
//
//   - Registry: shares one Circuit Breaker per service name across callers.
//
//   - Rate Limiter: client-side token bucket backed by golang.org/x/time/rate.
//
//   - Bulkhead: concurrency limit backed by golang.org/x/sync/semaphore.
//
//   - Timeout: bounds a single attempt.
//
// # Usage
//
// Each pattern can be used independently or composed together:
//
//	registry := resilience.NewRegistry(resilience.DefaultCircuitBreakerConfig())
//
//	policy := resilience.DefaultRetryPolicy()
//	policy.MaxAttempts = 5
//
//	executor := resilience.NewExecutor(
//	    resilience.WithCircuitBreaker(registry.GetOrCreate("provider_openai")),
//	    resilience.WithRetry(resilience.NewRetry(policy)),
//	    resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{Rate: 50})),
//	    resilience.WithTimeout(30*time.Second),
//	)
//
//	err := executor.Execute(ctx, func(ctx context.Context) error {
//	    resp, err = provider.Complete(ctx, req)
//	    return err
//	})
//
// A rejected call can be recognized without unwrapping:
//
//	if llm.KindOf(err) == llm.KindCircuitOpen {
//	    wait, _ := llm.RetryAfter(err)
//	}
package resilience
