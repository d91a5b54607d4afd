// Package admission decides whether a parsed GraphQL operation may execute.
// The gate compares a statically computed complexity score and nesting depth
// against policy thresholds and returns a tagged Decision; it never panics
// and never produces internal errors.
package admission

import (
	language "github.com/classhub/gqlgate/internal/language"
)

// Policy holds the admission thresholds. Loaded once at startup, read-only
// afterwards.
type Policy struct {
	MaxComplexity float64
	MaxDepth      int
}

// DefaultPolicy returns the stock thresholds.
func DefaultPolicy() Policy {
	return Policy{MaxComplexity: 500, MaxDepth: 10}
}

// RejectionCode identifies which threshold a rejected query exceeded.
type RejectionCode string

const (
	CodeTooComplex RejectionCode = "QUERY_TOO_COMPLEX"
	CodeTooDeep    RejectionCode = "QUERY_TOO_DEEP"
)

// Rejection reports the violated threshold. Only the fields relevant to
// Code carry meaning: Complexity/MaxComplexity for CodeTooComplex,
// Depth/MaxDepth for CodeTooDeep.
type Rejection struct {
	Code          RejectionCode
	Complexity    float64
	MaxComplexity float64
	Depth         int
	MaxDepth      int
}

// Decision is the gate's verdict. Rejection is nil iff Allowed.
type Decision struct {
	Allowed   bool
	Rejection *Rejection
}

var allow = Decision{Allowed: true}

// Gate evaluates operations against a fixed policy.
type Gate struct {
	policy Policy
}

func NewGate(policy Policy) *Gate {
	if policy.MaxComplexity <= 0 {
		policy.MaxComplexity = DefaultPolicy().MaxComplexity
	}
	if policy.MaxDepth <= 0 {
		policy.MaxDepth = DefaultPolicy().MaxDepth
	}
	return &Gate{policy: policy}
}

func (g *Gate) Policy() Policy { return g.policy }

// Evaluate admits or rejects an operation given its measured complexity and
// depth. A nil operation is a no-op and always admitted. Complexity is
// checked strictly before depth; only the first violated threshold is
// reported.
func (g *Gate) Evaluate(op *language.OperationDefinition, complexity float64, depth int) Decision {
	if op == nil {
		return allow
	}
	if complexity > g.policy.MaxComplexity {
		return Decision{Rejection: &Rejection{
			Code:          CodeTooComplex,
			Complexity:    complexity,
			MaxComplexity: g.policy.MaxComplexity,
		}}
	}
	if depth > g.policy.MaxDepth {
		return Decision{Rejection: &Rejection{
			Code:     CodeTooDeep,
			Depth:    depth,
			MaxDepth: g.policy.MaxDepth,
		}}
	}
	return allow
}
