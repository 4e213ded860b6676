package llm

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind tags an Error with its failure category.
type Kind string

const (
	KindNetwork            Kind = "network"
	KindTimeout            Kind = "timeout"
	KindAuth               Kind = "auth"
	KindRateLimit          Kind = "rate_limit"
	KindQuota              Kind = "quota"
	KindValidation         Kind = "validation"
	KindProvider           Kind = "provider"
	KindServiceUnavailable Kind = "service_unavailable"
	KindContentFiltered    Kind = "content_filtered"
	KindSizeLimit          Kind = "size_limit"
	KindTokenLimit         Kind = "token_limit"
	KindSerialization      Kind = "serialization"
	KindStream             Kind = "stream"
	KindStreamInterrupted  Kind = "stream_interrupted"
	KindToolExecution      Kind = "tool_execution"
	KindMemory             Kind = "memory"
	KindConfiguration      Kind = "configuration"
	KindCircuitOpen        Kind = "circuit_open"
	KindInternal           Kind = "internal"
	KindCustom             Kind = "custom"
)

// Severity ranks errors for observability. It never drives control flow.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Error is a classified failure from a provider or from the layers that
// wrap one.
type Error struct {
	Kind    Kind
	Message string

	// Provider attributes the error to a provider name.
	Provider string

	// Retryable is consulted only by kinds whose retryability varies per
	// instance: network, timeout, provider, stream and tool_execution.
	Retryable bool

	// RetryAfter is a server or breaker supplied wait hint. Only reported
	// for rate_limit, service_unavailable and circuit_open.
	RetryAfter *time.Duration

	// StatusCode is the HTTP status, when one was received.
	StatusCode int

	// Code is a vendor error code, or the error type of a custom error.
	Code string

	// Service and FailureRate describe the breaker behind a circuit_open error.
	Service     string
	FailureRate float64

	// Metadata carries free-form facts. For custom errors the "retryable"
	// key set to "true" marks the error retryable.
	Metadata map[string]string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if p := e.ProviderName(); p != "" {
		b.WriteString(" [")
		b.WriteString(p)
		b.WriteString("]")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether repeating the failed operation may succeed.
func (e *Error) IsRetryable() bool {
	switch e.Kind {
	case KindRateLimit, KindServiceUnavailable, KindStreamInterrupted, KindInternal:
		return true
	case KindNetwork, KindTimeout, KindProvider, KindStream, KindToolExecution:
		return e.Retryable
	case KindCustom:
		return e.Metadata["retryable"] == "true"
	default:
		return false
	}
}

// RetryAfterHint returns the wait hint carried by rate_limit,
// service_unavailable and circuit_open errors.
func (e *Error) RetryAfterHint() (time.Duration, bool) {
	switch e.Kind {
	case KindRateLimit, KindServiceUnavailable, KindCircuitOpen:
		if e.RetryAfter != nil {
			return *e.RetryAfter, true
		}
	}
	return 0, false
}

// Severity returns the observability rank of the error.
func (e *Error) Severity() Severity {
	switch e.Kind {
	case KindInternal, KindMemory:
		return SeverityCritical
	case KindAuth, KindQuota, KindConfiguration:
		return SeverityHigh
	case KindNetwork, KindTimeout, KindRateLimit, KindServiceUnavailable,
		KindCircuitOpen, KindStream, KindStreamInterrupted:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ProviderName returns the provider the error is attributed to, if any.
func (e *Error) ProviderName() string {
	if e.Provider != "" {
		return e.Provider
	}
	if e.Kind == KindCustom {
		return e.Metadata["provider"]
	}
	return ""
}

// WithProvider returns a copy attributed to provider. Custom errors record
// the attribution in Metadata["provider"] as well.
func (e *Error) WithProvider(provider string) *Error {
	c := e.clone()
	c.Provider = provider
	if c.Kind == KindCustom {
		c.Metadata["provider"] = provider
	}
	return c
}

// WithMetadata returns a copy with key set to value.
func (e *Error) WithMetadata(key, value string) *Error {
	c := e.clone()
	c.Metadata[key] = value
	return c
}

func (e *Error) clone() *Error {
	c := *e
	c.Metadata = make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		c.Metadata[k] = v
	}
	if e.RetryAfter != nil {
		d := *e.RetryAfter
		c.RetryAfter = &d
	}
	return &c
}

// NewNetworkError creates a retryable network error.
func NewNetworkError(message string, err error) *Error {
	return &Error{Kind: KindNetwork, Message: message, Retryable: true, Err: err}
}

// NewTimeoutError creates a timeout error for an operation bounded by timeout.
func NewTimeoutError(timeout time.Duration, retryable bool) *Error {
	return &Error{
		Kind:      KindTimeout,
		Message:   "timed out after " + timeout.String(),
		Retryable: retryable,
	}
}

// NewAuthError creates an authentication or authorization error.
func NewAuthError(provider, reason string) *Error {
	return &Error{Kind: KindAuth, Provider: provider, Message: reason}
}

// NewRateLimitError creates a rate limit error with an optional wait hint.
func NewRateLimitError(message string, retryAfter *time.Duration) *Error {
	return &Error{Kind: KindRateLimit, Message: message, RetryAfter: retryAfter}
}

// NewQuotaError creates a quota exhaustion error. quotaType is e.g.
// "monthly", "daily", "requests" or "tokens".
func NewQuotaError(provider, quotaType string) *Error {
	return &Error{Kind: KindQuota, Provider: provider, Message: quotaType + " quota exceeded", Code: quotaType}
}

// NewValidationError creates an invalid request error.
func NewValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// NewUnsupportedModelError reports a model the provider does not serve.
func NewUnsupportedModelError(provider, model string) *Error {
	return &Error{Kind: KindValidation, Provider: provider, Message: "unsupported model " + strconv.Quote(model)}
}

// NewProviderError creates a vendor-specific error.
func NewProviderError(provider, message string, retryable bool) *Error {
	return &Error{Kind: KindProvider, Provider: provider, Message: message, Retryable: retryable}
}

// NewServiceUnavailableError creates a service unavailable error with an
// optional wait hint.
func NewServiceUnavailableError(provider string, retryAfter *time.Duration) *Error {
	return &Error{
		Kind:       KindServiceUnavailable,
		Provider:   provider,
		Message:    "service unavailable",
		RetryAfter: retryAfter,
		StatusCode: 503,
	}
}

// NewContentFilteredError creates a safety filter rejection.
func NewContentFilteredError(reason string) *Error {
	return &Error{Kind: KindContentFiltered, Message: reason}
}

// NewSizeLimitError reports a request or response larger than allowed.
func NewSizeLimitError(size, maxSize int) *Error {
	return &Error{Kind: KindSizeLimit, Message: fmt.Sprintf("%d bytes exceeds limit of %d", size, maxSize)}
}

// NewTokenLimitError reports a token count over the model limit.
func NewTokenLimitError(tokens, maxTokens int) *Error {
	return &Error{Kind: KindTokenLimit, Message: fmt.Sprintf("%d tokens exceeds limit of %d", tokens, maxTokens)}
}

// NewSerializationError creates an encoding or decoding error.
func NewSerializationError(message string, err error) *Error {
	return &Error{Kind: KindSerialization, Message: message, Err: err}
}

// NewStreamError creates a stream failure.
func NewStreamError(message string, retryable bool) *Error {
	return &Error{Kind: KindStream, Message: message, Retryable: retryable}
}

// NewStreamInterruptedError reports a stream cut off after chunksReceived chunks.
func NewStreamInterruptedError(chunksReceived int) *Error {
	return &Error{Kind: KindStreamInterrupted, Message: fmt.Sprintf("interrupted after %d chunks", chunksReceived)}
}

// NewToolExecutionError reports a failed tool invocation.
func NewToolExecutionError(tool, message string, retryable bool) *Error {
	return &Error{Kind: KindToolExecution, Message: tool + ": " + message, Retryable: retryable}
}

// NewMemoryError reports a failed memory or context operation.
func NewMemoryError(operation, message string) *Error {
	return &Error{Kind: KindMemory, Message: operation + ": " + message}
}

// NewConfigurationError reports an invalid or missing configuration field.
func NewConfigurationError(field, message string) *Error {
	return &Error{Kind: KindConfiguration, Message: field + ": " + message}
}

// NewCircuitOpenError creates the rejection returned while a breaker is open.
// failureRate is a percentage; retryAfter is the breaker's recovery timeout.
func NewCircuitOpenError(service string, failureRate float64, retryAfter time.Duration, cause error) *Error {
	return &Error{
		Kind:        KindCircuitOpen,
		Message:     fmt.Sprintf("circuit breaker open for %s (failure rate %.2f%%)", service, failureRate),
		Service:     service,
		FailureRate: failureRate,
		RetryAfter:  &retryAfter,
		Err:         cause,
	}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// NewCustomError creates an extensible error. Mark it retryable with
// WithMetadata("retryable", "true").
func NewCustomError(message, errorType string) *Error {
	return &Error{Kind: KindCustom, Message: message, Code: errorType, Metadata: map[string]string{}}
}

// NewHTTPError maps an HTTP status code to the matching kind. 5xx statuses
// other than 503 are retryable provider errors.
func NewHTTPError(provider string, statusCode int, message string, retryAfter *time.Duration) *Error {
	var e *Error
	switch {
	case statusCode == 401 || statusCode == 403:
		e = NewAuthError(provider, message)
	case statusCode == 408:
		e = &Error{Kind: KindTimeout, Message: message, Retryable: true}
	case statusCode == 413:
		e = &Error{Kind: KindSizeLimit, Message: message}
	case statusCode == 429:
		e = NewRateLimitError(message, retryAfter)
	case statusCode == 503:
		e = NewServiceUnavailableError(provider, retryAfter)
		if message != "" {
			e.Message = message
		}
	case statusCode >= 500:
		e = NewProviderError(provider, message, true)
	case statusCode >= 400:
		e = NewValidationError(message)
	default:
		e = NewProviderError(provider, message, false)
	}
	e.Provider = provider
	e.StatusCode = statusCode
	return e
}
