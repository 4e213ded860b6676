package resilience

import "errors"

// Sentinel errors for resilience operations. Most rejections are returned
// as *llm.Error values that wrap these, so both errors.Is and llm.KindOf
// work. ErrBulkheadFull is returned as is.
var (
	// ErrCircuitOpen is wrapped by the error returned while a circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrRateLimitExceeded is wrapped when the client-side rate limit is exceeded.
	ErrRateLimitExceeded = errors.New("resilience: rate limit exceeded")

	// ErrBulkheadFull is wrapped when the bulkhead is at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is wrapped when an attempt exceeds its deadline.
	ErrTimeout = errors.New("resilience: operation timed out")

	// ErrInvalidPolicy is returned by Validate for malformed policies.
	ErrInvalidPolicy = errors.New("resilience: invalid policy")
)
