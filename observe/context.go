package observe

import (
	"context"

	"github.com/google/uuid"
)

type callIDKey struct{}

// WithCallID returns a context carrying the call id. Loggers, spans and the
// provider middleware read it back with CallIDFromContext.
func WithCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callIDKey{}, id)
}

// CallIDFromContext returns the call id carried by ctx, or "".
func CallIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(callIDKey{}).(string)
	return id
}

// EnsureCallID returns ctx unchanged when it already carries a call id and
// otherwise attaches a new random one.
func EnsureCallID(ctx context.Context) (context.Context, string) {
	if id := CallIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return WithCallID(ctx, id), id
}
