package resilient

import "github.com/jonwraymond/llmops/llm"

// Attribute classifies err and attributes it to provider. The kind,
// retryability and hints of an *llm.Error are kept; an error that already
// names a provider keeps that name. Attribute returns nil for nil.
func Attribute(err error, provider string) error {
	if err == nil {
		return nil
	}
	e := llm.Classify(err)
	if e.ProviderName() != "" {
		return e
	}
	return e.WithProvider(provider)
}

// attributedStream reports the terminal error of a stream with provider
// attribution.
type attributedStream struct {
	llm.Stream
	provider string
}

func (s *attributedStream) Err() error {
	return Attribute(s.Stream.Err(), s.provider)
}
