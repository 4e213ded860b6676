package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Classify maps any error into the taxonomy. A *Error found anywhere in the
// chain is returned unchanged; nil yields nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Message: "deadline exceeded", Retryable: true, Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindCustom, Message: "canceled", Code: "canceled", Metadata: map[string]string{}, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &Error{Kind: KindTimeout, Message: "network timeout", Retryable: true, Err: err}
		}
		return NewNetworkError("network failure", err)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return NewSerializationError("invalid JSON", err)
	}

	return NewInternalError("unclassified error", err)
}

// KindOf returns the kind of err, or "" for nil.
func KindOf(err error) Kind {
	if e := Classify(err); e != nil {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if e := Classify(err); e != nil {
		return e.IsRetryable()
	}
	return false
}

// RetryAfter returns the wait hint carried by err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	if e := Classify(err); e != nil {
		return e.RetryAfterHint()
	}
	return 0, false
}

// SeverityOf returns the severity of err. Nil errors are low.
func SeverityOf(err error) Severity {
	if e := Classify(err); e != nil {
		return e.Severity()
	}
	return SeverityLow
}

// ProviderOf returns the provider err is attributed to, if any.
func ProviderOf(err error) string {
	if e := Classify(err); e != nil {
		return e.ProviderName()
	}
	return ""
}

// ParseRetryAfter parses an HTTP Retry-After header value, which is either
// a number of seconds or an HTTP date. Dates in the past yield zero.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs * float64(time.Second)), true
	}

	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	if d := at.Sub(now); d > 0 {
		return d, true
	}
	return 0, true
}
