package llm

import "context"

// Provider issues completion requests to one text-generation service.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Complete and CompleteStream must honor cancellation/deadlines.
// - Errors: failures should be returned as *Error where the kind is known;
//   other errors are mapped by Classify.
// - Ownership: implementations must not retain or mutate req after returning.
type Provider interface {
	// Complete sends a request and returns the complete response.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// CompleteStream sends a request and returns a stream of chunks.
	// The caller must Close the stream.
	CompleteStream(ctx context.Context, req *Request) (Stream, error)

	// Name returns the provider identifier, e.g. "openai".
	Name() string

	// DefaultModel returns the model used when Request.Model is empty.
	DefaultModel() string

	// AvailableModels lists the models this provider can serve.
	AvailableModels() []string
}

// Stream is a pull-style sequence of response chunks.
//
// Typical use:
//
//	for s.Next() {
//	    chunk := s.Chunk()
//	    ...
//	}
//	if err := s.Err(); err != nil { ... }
type Stream interface {
	// Next advances to the next chunk.
	// Returns false when the stream is exhausted or failed.
	Next() bool

	// Chunk returns the current chunk. Only valid after Next returns true.
	Chunk() *Chunk

	// Err returns the error that terminated the stream, if any.
	Err() error

	// Close releases resources held by the stream. Idempotent.
	Close() error
}
