// Package cachecontrol maps a GraphQL operation to the Cache-Control
// directive its response should carry. The mapping is a pure function of
// operation type and name and runs regardless of the admission outcome;
// the transport forces NoStore onto error responses.
package cachecontrol

import (
	language "github.com/classhub/gqlgate/internal/language"
)

const (
	// NoStore is attached to mutations and error responses. Writes are
	// never cached.
	NoStore = "no-store, no-cache, must-revalidate"

	// PublicLongLived is attached to allow-listed queries whose results
	// are global and user-independent, so shared caches may serve them.
	PublicLongLived = "public, max-age=300, s-maxage=300"

	// PrivateShortLived is the default for queries: most return
	// user-scoped data unsafe to share across users via an intermediary.
	PrivateShortLived = "private, max-age=60"
)

// DefaultPublicQueries lists the globally-public, non-user-scoped lookups
// eligible for shared caching out of the box.
func DefaultPublicQueries() []string {
	return []string{"checkUsername", "checkEmail", "getInvitePreview"}
}

// Selector resolves operations to directives against a fixed allow-list.
type Selector struct {
	public map[string]struct{}
}

// NewSelector builds a Selector admitting the named queries to the shared
// directive. Names are matched case-sensitively.
func NewSelector(publicQueries []string) *Selector {
	s := &Selector{public: make(map[string]struct{}, len(publicQueries))}
	for _, name := range publicQueries {
		s.public[name] = struct{}{}
	}
	return s
}

// ForOperation returns the directive for the given operation type and name.
// The type check runs first: a mutation named like a public query still gets
// NoStore. Anything that is not a query (mutations, subscriptions, unknown
// types) is treated as uncacheable.
func (s *Selector) ForOperation(opType language.Operation, name string) string {
	if opType != language.Query {
		return NoStore
	}
	if _, ok := s.public[name]; ok {
		return PublicLongLived
	}
	return PrivateShortLived
}
