package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/jonwraymond/llmops/llm"
)

// BackoffKind selects how the base delay grows between attempts.
type BackoffKind int

const (
	// BackoffExponential multiplies the delay by Multiplier each attempt.
	BackoffExponential BackoffKind = iota
	// BackoffFixed uses InitialDelay for every attempt.
	BackoffFixed
	// BackoffLinear uses InitialDelay * attempt.
	BackoffLinear
	// BackoffCustom reads the delay for each attempt from a list.
	BackoffCustom
)

// String returns the string representation of the backoff kind.
func (k BackoffKind) String() string {
	switch k {
	case BackoffExponential:
		return "exponential"
	case BackoffFixed:
		return "fixed"
	case BackoffLinear:
		return "linear"
	case BackoffCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Backoff describes the pre-jitter delay for each attempt.
type Backoff struct {
	Kind BackoffKind

	// Multiplier applies to BackoffExponential.
	// Default: 2.0
	Multiplier float64

	// Delays applies to BackoffCustom. Attempts past the end of the list
	// use the policy's MaxDelay.
	Delays []time.Duration
}

// FixedBackoff waits InitialDelay before every retry.
func FixedBackoff() Backoff { return Backoff{Kind: BackoffFixed} }

// LinearBackoff waits InitialDelay * attempt.
func LinearBackoff() Backoff { return Backoff{Kind: BackoffLinear} }

// ExponentialBackoff waits InitialDelay * multiplier^(attempt-1).
func ExponentialBackoff(multiplier float64) Backoff {
	return Backoff{Kind: BackoffExponential, Multiplier: multiplier}
}

// CustomBackoff waits delays[attempt-1].
func CustomBackoff(delays ...time.Duration) Backoff {
	return Backoff{Kind: BackoffCustom, Delays: slices.Clone(delays)}
}

// JitterKind selects how a base delay is randomized.
type JitterKind int

const (
	// JitterNone leaves the base delay unchanged.
	JitterNone JitterKind = iota
	// JitterFull picks uniformly from [0, base].
	JitterFull
	// JitterHalf picks uniformly from [base/2, base].
	JitterHalf
	// JitterFixed adds a uniform amount from [0, Amount].
	JitterFixed
	// JitterDecorrelated picks uniformly from [base, max(3*previous, base)].
	JitterDecorrelated
)

// String returns the string representation of the jitter kind.
func (k JitterKind) String() string {
	switch k {
	case JitterNone:
		return "none"
	case JitterFull:
		return "full"
	case JitterHalf:
		return "half"
	case JitterFixed:
		return "fixed"
	case JitterDecorrelated:
		return "decorrelated"
	default:
		return "unknown"
	}
}

// Jitter describes the randomization applied to a base delay.
type Jitter struct {
	Kind JitterKind

	// Amount applies to JitterFixed.
	Amount time.Duration
}

// NoJitter disables randomization.
func NoJitter() Jitter { return Jitter{Kind: JitterNone} }

// FullJitter randomizes over the whole base delay.
func FullJitter() Jitter { return Jitter{Kind: JitterFull} }

// HalfJitter keeps half the base delay and randomizes the rest.
func HalfJitter() Jitter { return Jitter{Kind: JitterHalf} }

// FixedJitter adds up to amount to the base delay.
func FixedJitter(amount time.Duration) Jitter { return Jitter{Kind: JitterFixed, Amount: amount} }

// DecorrelatedJitter randomizes relative to the previous delay of the same call.
func DecorrelatedJitter() Jitter { return Jitter{Kind: JitterDecorrelated} }

// ConditionKind selects which failures are retried.
type ConditionKind int

const (
	// ConditionDefault retries errors the classifier marks retryable.
	ConditionDefault ConditionKind = iota
	// ConditionAlways retries every error.
	ConditionAlways
	// ConditionNever retries nothing.
	ConditionNever
	// ConditionKinds retries errors whose kind is listed.
	ConditionKinds
	// ConditionCustom delegates to a function.
	ConditionCustom
)

// RetryCondition decides whether a failed attempt is retried.
// circuit_open errors are never retried regardless of the condition.
type RetryCondition struct {
	Kind  ConditionKind
	Kinds []llm.Kind
	Func  func(err error) bool
}

// DefaultCondition retries errors llm.IsRetryable accepts.
func DefaultCondition() RetryCondition { return RetryCondition{Kind: ConditionDefault} }

// AlwaysRetry retries every error.
func AlwaysRetry() RetryCondition { return RetryCondition{Kind: ConditionAlways} }

// NeverRetry disables retries.
func NeverRetry() RetryCondition { return RetryCondition{Kind: ConditionNever} }

// RetryOnKinds retries only the listed error kinds.
func RetryOnKinds(kinds ...llm.Kind) RetryCondition {
	return RetryCondition{Kind: ConditionKinds, Kinds: slices.Clone(kinds)}
}

// CustomCondition retries when fn returns true. A nil fn behaves like
// DefaultCondition.
func CustomCondition(fn func(err error) bool) RetryCondition {
	return RetryCondition{Kind: ConditionCustom, Func: fn}
}

// RetryPolicy configures the retry behavior.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 3
	MaxAttempts int

	// InitialDelay is the base delay of the first retry.
	// Default: 1 second
	InitialDelay time.Duration

	// MaxDelay caps every computed delay.
	// Default: 60 seconds
	MaxDelay time.Duration

	// Backoff shapes the base delay.
	// Default: exponential with multiplier 2.0
	Backoff Backoff

	// Jitter randomizes the base delay.
	// Default: none
	Jitter Jitter

	// RespectRetryAfter uses an error's retry-after hint, capped by MaxDelay,
	// in place of the backoff computation.
	// Default: false (DefaultRetryPolicy enables it)
	RespectRetryAfter bool

	// MaxTotalTime bounds the whole retry loop. Zero means unbounded.
	// An attempt already in flight is not interrupted.
	MaxTotalTime time.Duration

	// Condition decides which errors are retried.
	// Default: DefaultCondition
	Condition RetryCondition

	// OnRetry is called before sleeping ahead of each retry, with the
	// context of the Execute call.
	OnRetry func(ctx context.Context, attempt int, err error, delay time.Duration)
}

// DefaultRetryPolicy returns the policy used when none is configured:
// 3 attempts, 1s initial delay, 60s cap, exponential x2 backoff, full jitter,
// retry-after respected and a 5 minute budget.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		MaxDelay:          60 * time.Second,
		Backoff:           ExponentialBackoff(2.0),
		Jitter:            FullJitter(),
		RespectRetryAfter: true,
		MaxTotalTime:      5 * time.Minute,
		Condition:         DefaultCondition(),
	}
}

// Validate reports malformed policy values. Zero values are valid and are
// replaced by defaults in NewRetry.
func (p RetryPolicy) Validate() error {
	switch {
	case p.MaxAttempts < 0:
		return fmt.Errorf("%w: max attempts must not be negative, got %d", ErrInvalidPolicy, p.MaxAttempts)
	case p.InitialDelay < 0:
		return fmt.Errorf("%w: initial delay must not be negative, got %v", ErrInvalidPolicy, p.InitialDelay)
	case p.MaxDelay < 0:
		return fmt.Errorf("%w: max delay must not be negative, got %v", ErrInvalidPolicy, p.MaxDelay)
	case p.MaxTotalTime < 0:
		return fmt.Errorf("%w: max total time must not be negative, got %v", ErrInvalidPolicy, p.MaxTotalTime)
	case p.Backoff.Multiplier < 0:
		return fmt.Errorf("%w: backoff multiplier must not be negative, got %v", ErrInvalidPolicy, p.Backoff.Multiplier)
	case p.Jitter.Amount < 0:
		return fmt.Errorf("%w: jitter amount must not be negative, got %v", ErrInvalidPolicy, p.Jitter.Amount)
	}
	for i, d := range p.Backoff.Delays {
		if d < 0 {
			return fmt.Errorf("%w: custom delay %d is negative", ErrInvalidPolicy, i)
		}
	}
	return nil
}

// RetryContext is the per-call state of one Execute invocation.
type RetryContext struct {
	// Attempt is the 1-based number of the current attempt.
	Attempt int

	// TotalElapsed is the time since the call started, measured at the
	// beginning of the current attempt.
	TotalElapsed time.Duration

	// LastError is the most recent failure.
	LastError error

	// DelayHistory lists every delay chosen so far, in order.
	DelayHistory []time.Duration
}

// Retry implements retry with backoff and jitter.
type Retry struct {
	policy RetryPolicy

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	randN func(n int64) int64
}

// NewRetry creates a new retry handler.
func NewRetry(policy RetryPolicy) *Retry {
	// Apply defaults
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 60 * time.Second
	}
	if policy.Backoff.Kind == BackoffExponential && policy.Backoff.Multiplier <= 0 {
		policy.Backoff.Multiplier = 2.0
	}
	policy.Backoff.Delays = slices.Clone(policy.Backoff.Delays)
	policy.Condition.Kinds = slices.Clone(policy.Condition.Kinds)

	return &Retry{
		policy: policy,
		now:    time.Now,
		sleep:  sleepContext,
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		randN: rand.Int64N,
	}
}

// Execute runs the operation with retry logic. It returns nil on the first
// success, otherwise the last error observed. Cancellation of ctx while
// waiting between attempts returns ctx.Err().
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	p := r.policy
	rc := &RetryContext{}
	start := r.now()

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		rc.Attempt = attempt
		rc.TotalElapsed = r.now().Sub(start)

		if p.MaxTotalTime > 0 && rc.TotalElapsed >= p.MaxTotalTime {
			if rc.LastError != nil {
				return rc.LastError
			}
			return llm.NewTimeoutError(p.MaxTotalTime, false)
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		rc.LastError = err

		if !r.shouldRetry(err) || attempt >= p.MaxAttempts {
			return err
		}

		delay := r.NextDelay(rc, err)
		rc.DelayHistory = append(rc.DelayHistory, delay)

		if p.MaxTotalTime > 0 && r.now().Sub(start)+delay >= p.MaxTotalTime {
			return err
		}

		if p.OnRetry != nil {
			p.OnRetry(ctx, attempt, err, delay)
		}

		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return rc.LastError
}

// NextDelay computes the wait after attempt rc.Attempt failed with err.
// The result never exceeds MaxDelay.
func (r *Retry) NextDelay(rc *RetryContext, err error) time.Duration {
	p := r.policy

	if p.RespectRetryAfter {
		if d, ok := llm.RetryAfter(err); ok {
			return min(d, p.MaxDelay)
		}
	}

	base := r.baseDelay(max(rc.Attempt, 1))
	return min(r.applyJitter(base, rc), p.MaxDelay)
}

func (r *Retry) baseDelay(attempt int) time.Duration {
	p := r.policy

	switch p.Backoff.Kind {
	case BackoffFixed:
		return p.InitialDelay
	case BackoffLinear:
		return scale(p.InitialDelay, float64(attempt))
	case BackoffCustom:
		if attempt-1 < len(p.Backoff.Delays) {
			return p.Backoff.Delays[attempt-1]
		}
		return p.MaxDelay
	default:
		return scale(p.InitialDelay, math.Pow(p.Backoff.Multiplier, float64(attempt-1)))
	}
}

func (r *Retry) applyJitter(base time.Duration, rc *RetryContext) time.Duration {
	switch r.policy.Jitter.Kind {
	case JitterFull:
		return r.between(0, base)
	case JitterHalf:
		half := base / 2
		return half + r.between(0, half)
	case JitterFixed:
		return saturatingAdd(base, r.between(0, r.policy.Jitter.Amount))
	case JitterDecorrelated:
		last := r.policy.InitialDelay
		if n := len(rc.DelayHistory); n > 0 {
			last = rc.DelayHistory[n-1]
		}
		return r.between(base, max(scale(last, 3), base))
	default:
		return base
	}
}

// between returns a uniform duration in [lo, hi].
func (r *Retry) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	span := int64(hi - lo)
	if span == math.MaxInt64 {
		return lo + time.Duration(r.randN(span))
	}
	return lo + time.Duration(r.randN(span+1))
}

func (r *Retry) shouldRetry(err error) bool {
	if llm.KindOf(err) == llm.KindCircuitOpen {
		return false
	}

	c := r.policy.Condition
	switch c.Kind {
	case ConditionAlways:
		return true
	case ConditionNever:
		return false
	case ConditionKinds:
		return slices.Contains(c.Kinds, llm.KindOf(err))
	case ConditionCustom:
		if c.Func != nil {
			return c.Func(err)
		}
	}
	return llm.IsRetryable(err)
}

// Policy returns the effective policy, defaults applied.
func (r *Retry) Policy() RetryPolicy {
	return r.policy
}

// Do runs op under r and returns its value from the first successful attempt.
func Do[T any](ctx context.Context, r *Retry, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := r.Execute(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// RetryWithDefault runs op under DefaultRetryPolicy.
func RetryWithDefault(ctx context.Context, op func(context.Context) error) error {
	return NewRetry(DefaultRetryPolicy()).Execute(ctx, op)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// scale multiplies d by f, saturating at the largest representable duration.
func scale(d time.Duration, f float64) time.Duration {
	v := float64(d) * f
	if v >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	if v <= 0 {
		return 0
	}
	return time.Duration(v)
}

func saturatingAdd(a, b time.Duration) time.Duration {
	if a > time.Duration(math.MaxInt64)-b {
		return time.Duration(math.MaxInt64)
	}
	return a + b
}
