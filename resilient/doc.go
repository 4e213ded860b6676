// Package resilient decorates an llm.Provider with retries and a circuit
// breaker.
//
// A Provider is itself an llm.Provider. For Complete the breaker is the outer
// gate and retries run inside it, so an open circuit stops even the first
// attempt and a call that succeeds on a retry counts as one success:
//
//	rate limiter -> bulkhead -> circuit breaker -> retry -> attempt timeout -> inner
//
// CompleteStream passes the breaker (and the optional rate limiter and
// bulkhead) exactly once and is never retried: a stream may already have
// delivered part of its output to the caller.
//
// Errors from the inner provider are classified into *llm.Error values and
// attributed to the inner provider's name before the retry and breaker
// layers see them.
//
// Basic usage:
//
//	p, err := resilient.NewBuilder().
//		MaxRetries(5).
//		FailureThreshold(75).
//		RecoveryTimeout(45 * time.Second).
//		Build(openaiProvider)
//	if err != nil {
//		return err
//	}
//	resp, err := p.Complete(ctx, req)
//	if wait, ok := llm.RetryAfter(err); ok {
//		// the breaker is open or the provider asked us to back off
//	}
package resilient
