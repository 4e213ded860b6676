package resilient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/llmops/llm"
	"github.com/jonwraymond/llmops/resilience"
)

func TestBuilder_Defaults(t *testing.T) {
	p, err := New(&fakeProvider{name: "openai"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	cb := p.CircuitBreaker()
	if got := cb.Name(); got != "provider_openai" {
		t.Errorf("breaker name = %q, want %q", got, "provider_openai")
	}
	cfg := cb.Config()
	want := resilience.DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold != want.FailureThreshold {
		t.Errorf("FailureThreshold = %v, want %v", cfg.FailureThreshold, want.FailureThreshold)
	}
	if cfg.RecoveryTimeout != want.RecoveryTimeout {
		t.Errorf("RecoveryTimeout = %v, want %v", cfg.RecoveryTimeout, want.RecoveryTimeout)
	}
	if cfg.MinimumRequestCount != want.MinimumRequestCount {
		t.Errorf("MinimumRequestCount = %v, want %v", cfg.MinimumRequestCount, want.MinimumRequestCount)
	}

	policy := p.executor.Retry().Policy()
	if policy.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", policy.MaxAttempts)
	}
	if policy.Jitter.Kind != resilience.JitterFull {
		t.Errorf("Jitter = %v, want %v", policy.Jitter.Kind, resilience.JitterFull)
	}
}

func TestBuilder_Knobs(t *testing.T) {
	p := mustBuild(t, NewBuilder().
		MaxRetries(5).
		FailureThreshold(25).
		RecoveryTimeout(10*time.Second).
		ServiceName("primary"), &fakeProvider{})

	if got := p.executor.Retry().Policy().MaxAttempts; got != 5 {
		t.Errorf("MaxAttempts = %d, want 5", got)
	}
	cfg := p.CircuitBreaker().Config()
	if cfg.FailureThreshold != 25 {
		t.Errorf("FailureThreshold = %v, want 25", cfg.FailureThreshold)
	}
	if cfg.RecoveryTimeout != 10*time.Second {
		t.Errorf("RecoveryTimeout = %v, want 10s", cfg.RecoveryTimeout)
	}
	if got := p.CircuitBreaker().Name(); got != "primary" {
		t.Errorf("breaker name = %q, want %q", got, "primary")
	}
}

func TestNewWithConfig(t *testing.T) {
	policy := fastPolicy(4)
	cfg := resilience.CircuitBreakerConfig{FailureThreshold: 80, MinimumRequestCount: 2}

	p, err := NewWithConfig(&fakeProvider{}, policy, cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}
	if got := p.executor.Retry().Policy().MaxAttempts; got != 4 {
		t.Errorf("MaxAttempts = %d, want 4", got)
	}
	got := p.CircuitBreaker().Config()
	if got.FailureThreshold != 80 || got.MinimumRequestCount != 2 {
		t.Errorf("breaker config = %+v", got)
	}
}

func TestBuilder_NilProvider(t *testing.T) {
	_, err := NewBuilder().Build(nil)
	if !errors.Is(err, ErrNilProvider) {
		t.Errorf("Build(nil) error = %v, want %v", err, ErrNilProvider)
	}
}

func TestBuilder_InvalidPolicy(t *testing.T) {
	_, err := NewBuilder().MaxRetries(-1).Build(&fakeProvider{})
	if !errors.Is(err, resilience.ErrInvalidPolicy) {
		t.Errorf("Build() error = %v, want %v", err, resilience.ErrInvalidPolicy)
	}
}

func TestBuilder_RegistrySharesBreaker(t *testing.T) {
	reg := resilience.NewRegistry(resilience.DefaultCircuitBreakerConfig())
	b := NewBuilder().Registry(reg).MaxRetries(1)

	first := mustBuild(t, b, &fakeProvider{name: "openai"})
	second := mustBuild(t, b, &fakeProvider{name: "openai"})
	other := mustBuild(t, b, &fakeProvider{name: "anthropic"})

	if first.CircuitBreaker() != second.CircuitBreaker() {
		t.Error("providers with one service name should share a breaker")
	}
	if first.CircuitBreaker() == other.CircuitBreaker() {
		t.Error("providers with different service names should not share a breaker")
	}
	if cb, ok := reg.Get("provider_openai"); !ok || cb != first.CircuitBreaker() {
		t.Error("registry does not hold the provider's breaker")
	}

	first.OpenCircuitBreaker()
	_, err := second.Complete(context.Background(), userRequest("hi"))
	if got := llm.KindOf(err); got != llm.KindCircuitOpen {
		t.Errorf("KindOf() = %v, want %v", got, llm.KindCircuitOpen)
	}
}

func TestBuilder_Reusable(t *testing.T) {
	b := NewBuilder().MaxRetries(2)
	first := mustBuild(t, b, &fakeProvider{})
	second := mustBuild(t, b, &fakeProvider{})

	if first.CircuitBreaker() == second.CircuitBreaker() {
		t.Error("each Build without a registry should create its own breaker")
	}
}
