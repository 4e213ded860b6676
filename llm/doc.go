// Package llm defines the provider-neutral contract for text-generation
// services and the error taxonomy shared by every layer above it.
//
// # Provider
//
// A Provider issues completion requests against one remote service:
//
//	type Provider interface {
//	    Complete(ctx context.Context, req *Request) (*Response, error)
//	    CompleteStream(ctx context.Context, req *Request) (Stream, error)
//	    Name() string
//	    DefaultModel() string
//	    AvailableModels() []string
//	}
//
// Vendor adapters implement Provider and translate Request/Response into
// their own wire formats. Decorators such as the resilient provider wrap a
// Provider and expose the same interface.
//
// # Errors
//
// Failures are reported as *Error values tagged with a Kind. The Kind decides
// retryability, severity and whether a retry-after hint is meaningful:
//
//	err := llm.NewRateLimitError("slow down", ptr(2*time.Second))
//	llm.IsRetryable(err)  // true
//	llm.RetryAfter(err)   // 2s, true
//	llm.SeverityOf(err)   // medium
//
// Errors that did not originate from this package are mapped into the
// taxonomy by Classify.
package llm
