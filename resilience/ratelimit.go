package resilience

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/jonwraymond/llmops/llm"
)

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// Rate is the number of operations allowed per second.
	// Default: 100
	Rate float64

	// Burst is the maximum burst size.
	// Default: 10
	Burst int

	// WaitOnLimit waits for a token instead of returning error.
	// Default: false
	WaitOnLimit bool

	// MaxWait is the maximum time to wait for a token.
	// Default: 1 second
	MaxWait time.Duration
}

// RateLimiter is a client-side token bucket in front of a provider.
type RateLimiter struct {
	config  RateLimiterConfig
	limiter *rate.Limiter
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	// Apply defaults
	if config.Rate <= 0 {
		config.Rate = 100
	}
	if config.Burst <= 0 {
		config.Burst = 10
	}
	if config.MaxWait <= 0 {
		config.MaxWait = time.Second
	}

	return &RateLimiter{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.Rate), config.Burst),
	}
}

// Allow checks if a request is allowed under the rate limit.
func (rl *RateLimiter) Allow() bool {
	return rl.AllowN(1)
}

// AllowN checks if n requests are allowed.
func (rl *RateLimiter) AllowN(n int) bool {
	return rl.limiter.AllowN(time.Now(), n)
}

// Wait blocks until a token is available, MaxWait elapses or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.WaitN(ctx, 1)
}

// WaitN blocks until n tokens are available. A wait longer than MaxWait
// fails immediately with a rate_limit error.
func (rl *RateLimiter) WaitN(ctx context.Context, n int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, rl.config.MaxWait)
	defer cancel()

	if err := rl.limiter.WaitN(waitCtx, n); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return rl.rejection(rl.delayFor(n))
	}
	return nil
}

// Execute runs the operation if allowed by rate limit. Rejections are
// rate_limit *llm.Error values wrapping ErrRateLimitExceeded whose
// retry-after hint is the time until a token frees up.
func (rl *RateLimiter) Execute(ctx context.Context, op func(context.Context) error) error {
	if rl.config.WaitOnLimit {
		if err := rl.Wait(ctx); err != nil {
			return err
		}
		return op(ctx)
	}

	r := rl.limiter.Reserve()
	if !r.OK() {
		return rl.rejection(0)
	}
	if d := r.Delay(); d > 0 {
		r.Cancel()
		return rl.rejection(d)
	}

	return op(ctx)
}

// Tokens returns the current number of available tokens.
func (rl *RateLimiter) Tokens() float64 {
	return rl.limiter.Tokens()
}

// Config returns the rate limiter configuration.
func (rl *RateLimiter) Config() RateLimiterConfig {
	return rl.config
}

func (rl *RateLimiter) delayFor(n int) time.Duration {
	r := rl.limiter.ReserveN(time.Now(), n)
	if !r.OK() {
		return 0
	}
	d := r.Delay()
	r.Cancel()
	return d
}

func (rl *RateLimiter) rejection(retryAfter time.Duration) error {
	var hint *time.Duration
	if retryAfter > 0 {
		hint = &retryAfter
	}
	e := llm.NewRateLimitError("client-side rate limit exceeded", hint)
	e.Err = ErrRateLimitExceeded
	return e
}

// IsRateLimited reports whether err is a client-side rate limit rejection.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded)
}
