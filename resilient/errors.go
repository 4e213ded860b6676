package resilient

import "errors"

var (
	// ErrNilProvider is returned when no inner provider is given.
	ErrNilProvider = errors.New("resilient: inner provider is nil")
)
