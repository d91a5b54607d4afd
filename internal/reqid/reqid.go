// Package reqid stores a per-request correlation ID in the context so
// telemetry subscribers can stitch events from one request together.
package reqid

import (
	"context"
	"math/rand/v2"
)

type key struct{}

// NewContext returns a copy of parent carrying a fresh random request ID,
// along with the ID itself.
func NewContext(parent context.Context) (context.Context, int64) {
	id := rand.Int64()
	return context.WithValue(parent, key{}, id), id
}

// FromContext extracts the request ID, reporting whether one was present.
func FromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(key{}).(int64)
	return id, ok
}
