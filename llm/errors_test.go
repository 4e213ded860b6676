package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

func durPtr(d time.Duration) *time.Duration { return &d }

func TestError_IsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want bool
	}{
		{"network default", NewNetworkError("reset", nil), true},
		{"network flagged off", &Error{Kind: KindNetwork}, false},
		{"timeout retryable", NewTimeoutError(time.Second, true), true},
		{"timeout not retryable", NewTimeoutError(time.Second, false), false},
		{"rate limit", NewRateLimitError("slow down", nil), true},
		{"service unavailable", NewServiceUnavailableError("openai", nil), true},
		{"stream interrupted", NewStreamInterruptedError(3), true},
		{"internal", NewInternalError("boom", nil), true},
		{"provider retryable", NewProviderError("openai", "overloaded", true), true},
		{"provider fatal", NewProviderError("openai", "bad", false), false},
		{"stream retryable", NewStreamError("eof", true), true},
		{"tool retryable", NewToolExecutionError("search", "flaky", true), true},
		{"auth", NewAuthError("openai", "bad key"), false},
		{"quota", NewQuotaError("openai", "monthly"), false},
		{"validation", NewValidationError("missing model"), false},
		{"content filtered", NewContentFilteredError("unsafe"), false},
		{"size limit", NewSizeLimitError(10, 5), false},
		{"token limit", NewTokenLimitError(9000, 8192), false},
		{"serialization", NewSerializationError("bad json", nil), false},
		{"memory", NewMemoryError("store", "full"), false},
		{"configuration", NewConfigurationError("api_key", "missing"), false},
		{"circuit open", NewCircuitOpenError("svc", 60, time.Second, nil), false},
		{"custom unmarked", NewCustomError("x", "thing"), false},
		{"custom marked", NewCustomError("x", "thing").WithMetadata("retryable", "true"), true},
		{"custom marked false", NewCustomError("x", "thing").WithMetadata("retryable", "yes"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.IsRetryable(); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_RetryAfterHint(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		want   time.Duration
		wantOK bool
	}{
		{"rate limit with hint", NewRateLimitError("x", durPtr(2*time.Second)), 2 * time.Second, true},
		{"rate limit without hint", NewRateLimitError("x", nil), 0, false},
		{"service unavailable", NewServiceUnavailableError("p", durPtr(time.Second)), time.Second, true},
		{"circuit open", NewCircuitOpenError("svc", 50, 30*time.Second, nil), 30 * time.Second, true},
		{"network ignores hint", &Error{Kind: KindNetwork, RetryAfter: durPtr(time.Second)}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.err.RetryAfterHint()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("RetryAfterHint() = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestError_Severity(t *testing.T) {
	tests := []struct {
		err  *Error
		want Severity
	}{
		{NewInternalError("x", nil), SeverityCritical},
		{NewMemoryError("op", "x"), SeverityCritical},
		{NewAuthError("p", "x"), SeverityHigh},
		{NewQuotaError("p", "daily"), SeverityHigh},
		{NewConfigurationError("f", "x"), SeverityHigh},
		{NewNetworkError("x", nil), SeverityMedium},
		{NewRateLimitError("x", nil), SeverityMedium},
		{NewCircuitOpenError("s", 1, time.Second, nil), SeverityMedium},
		{NewValidationError("x"), SeverityLow},
		{NewContentFilteredError("x"), SeverityLow},
		{NewCustomError("x", "y"), SeverityLow},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Kind), func(t *testing.T) {
			if got := tt.err.Severity(); got != tt.want {
				t.Errorf("Severity() = %v, want %v", got, tt.want)
			}
		})
	}

	if !(SeverityLow < SeverityMedium && SeverityMedium < SeverityHigh && SeverityHigh < SeverityCritical) {
		t.Error("severity levels are not ordered")
	}
}

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		s    Severity
		want string
	}{
		{SeverityLow, "low"},
		{SeverityMedium, "medium"},
		{SeverityHigh, "high"},
		{SeverityCritical, "critical"},
		{Severity(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("Severity(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestError_WithProvider(t *testing.T) {
	orig := NewNetworkError("reset", nil)
	attributed := orig.WithProvider("anthropic")

	if attributed.ProviderName() != "anthropic" {
		t.Errorf("ProviderName() = %q, want anthropic", attributed.ProviderName())
	}
	if orig.Provider != "" {
		t.Error("WithProvider mutated the original")
	}

	custom := NewCustomError("x", "y").WithProvider("ollama")
	if custom.Metadata["provider"] != "ollama" {
		t.Errorf("Metadata[provider] = %q, want ollama", custom.Metadata["provider"])
	}
}

func TestError_ErrorString(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewNetworkError("request failed", cause).WithProvider("openai")

	got := err.Error()
	for _, want := range []string{"network", "[openai]", "request failed", "connection reset"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestClassify(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewAuthError("p", "nope"))

	tests := []struct {
		name          string
		err           error
		wantKind      Kind
		wantRetryable bool
	}{
		{"llm error passes through", wrapped, KindAuth, false},
		{"deadline", context.DeadlineExceeded, KindTimeout, true},
		{"canceled", context.Canceled, KindCustom, false},
		{"net timeout", &net.DNSError{Err: "slow", IsTimeout: true}, KindTimeout, true},
		{"net error", &net.OpError{Op: "dial", Err: errors.New("refused")}, KindNetwork, true},
		{"json syntax", json.Unmarshal([]byte("{"), &struct{}{}), KindSerialization, false},
		{"unknown", errors.New("mystery"), KindInternal, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got == nil {
				t.Fatal("Classify() = nil")
			}
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.IsRetryable() != tt.wantRetryable {
				t.Errorf("IsRetryable() = %v, want %v", got.IsRetryable(), tt.wantRetryable)
			}
		})
	}

	if Classify(nil) != nil {
		t.Error("Classify(nil) should be nil")
	}
}

func TestHelpers(t *testing.T) {
	err := fmt.Errorf("ctx: %w", NewServiceUnavailableError("gemini", durPtr(3*time.Second)))

	if KindOf(err) != KindServiceUnavailable {
		t.Errorf("KindOf() = %v", KindOf(err))
	}
	if !IsRetryable(err) {
		t.Error("IsRetryable() = false, want true")
	}
	if d, ok := RetryAfter(err); !ok || d != 3*time.Second {
		t.Errorf("RetryAfter() = (%v, %v), want (3s, true)", d, ok)
	}
	if SeverityOf(err) != SeverityMedium {
		t.Errorf("SeverityOf() = %v", SeverityOf(err))
	}
	if ProviderOf(err) != "gemini" {
		t.Errorf("ProviderOf() = %q", ProviderOf(err))
	}
	if KindOf(nil) != "" || IsRetryable(nil) || SeverityOf(nil) != SeverityLow {
		t.Error("nil error helpers returned non-zero values")
	}
}

func TestNewHTTPError(t *testing.T) {
	tests := []struct {
		status        int
		wantKind      Kind
		wantRetryable bool
	}{
		{401, KindAuth, false},
		{403, KindAuth, false},
		{408, KindTimeout, true},
		{413, KindSizeLimit, false},
		{429, KindRateLimit, true},
		{400, KindValidation, false},
		{404, KindValidation, false},
		{500, KindProvider, true},
		{502, KindProvider, true},
		{503, KindServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := NewHTTPError("openai", tt.status, "msg", nil)
			if err.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", err.Kind, tt.wantKind)
			}
			if err.IsRetryable() != tt.wantRetryable {
				t.Errorf("IsRetryable() = %v, want %v", err.IsRetryable(), tt.wantRetryable)
			}
			if err.StatusCode != tt.status {
				t.Errorf("StatusCode = %d", err.StatusCode)
			}
			if err.Provider != "openai" {
				t.Errorf("Provider = %q", err.Provider)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		value  string
		want   time.Duration
		wantOK bool
	}{
		{"", 0, false},
		{"5", 5 * time.Second, true},
		{"0.5", 500 * time.Millisecond, true},
		{"-1", 0, false},
		{"Wed, 01 Jan 2025 12:00:30 GMT", 30 * time.Second, true},
		{"Wed, 01 Jan 2025 11:00:00 GMT", 0, true},
		{"soon", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, ok := ParseRetryAfter(tt.value, now)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseRetryAfter(%q) = (%v, %v), want (%v, %v)", tt.value, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
