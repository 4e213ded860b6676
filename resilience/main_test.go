package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(config CircuitBreakerConfig) (*CircuitBreaker, *fakeClock) {
	clock := newFakeClock()
	cb := NewCircuitBreaker("test", config)
	cb.now = clock.Now
	return cb, clock
}

// sleepRecorder replaces Retry.sleep: it records each delay and advances the
// clock instead of blocking.
type sleepRecorder struct {
	clock *fakeClock

	mu    sync.Mutex
	slept []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.slept = append(s.slept, d)
	s.mu.Unlock()
	s.clock.Advance(d)
	return nil
}

func (s *sleepRecorder) delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.slept...)
}

func newTestRetry(policy RetryPolicy) (*Retry, *sleepRecorder) {
	clock := newFakeClock()
	rec := &sleepRecorder{clock: clock}
	r := NewRetry(policy)
	r.now = clock.Now
	r.sleep = rec.sleep
	return r, rec
}

var errTest = errors.New("test error")

// randMin and randMax pin jitter to the bottom and top of its range.
func randMin(int64) int64   { return 0 }
func randMax(n int64) int64 { return n - 1 }

func fail(ctx context.Context) error { return errTest }

func succeed(ctx context.Context) error { return nil }
