// Package complexity statically estimates the execution cost of a GraphQL
// operation before any resolver runs. The scorer walks a selection set
// accumulating per-field weights; the depth calculator reports the longest
// nesting chain. Both are pure functions of the document and run to
// completion without I/O, so concurrent requests can be measured in
// parallel with no shared state.
package complexity

import (
	"strconv"

	language "github.com/classhub/gqlgate/internal/language"
)

// DefaultFieldCost is charged for any field not present in the cost table.
const DefaultFieldCost = 1

// DefaultMaxRecursion bounds the scorer's own traversal. Selections nested
// deeper contribute nothing; this caps per-request CPU against adversarial
// nesting independently of any configured depth policy, so it must stay at
// or below every sane maxDepth.
const DefaultMaxRecursion = 7

// limitClamp caps the pagination surcharge so arbitrarily large
// client-supplied limits cannot inflate their own budget.
const limitClamp = 50

// limitCostPerItem approximates the cost of one list item fanned out by a
// limit argument.
const limitCostPerItem = 0.5

// CostTable maps field names to base costs. Lookups are case-sensitive
// exact matches.
type CostTable map[string]float64

// Scorer computes a weighted complexity score for selection sets.
// The zero value is not usable; construct with NewScorer.
type Scorer struct {
	costs        CostTable
	defaultCost  float64
	maxRecursion int
}

// ScorerOptions configures a Scorer. Zero fields fall back to defaults;
// an explicit zero default cost is expressed by leaving Costs entries at 0.
type ScorerOptions struct {
	// Costs assigns per-field base costs. Fields absent from the table
	// are charged DefaultCost.
	Costs CostTable

	// DefaultCost is the fallback cost for unlisted fields.
	// 0 means DefaultFieldCost.
	DefaultCost float64

	// MaxRecursion is the hard traversal cutoff.
	// 0 means DefaultMaxRecursion.
	MaxRecursion int
}

func NewScorer(opts ScorerOptions) *Scorer {
	s := &Scorer{
		costs:        opts.Costs,
		defaultCost:  opts.DefaultCost,
		maxRecursion: opts.MaxRecursion,
	}
	if s.defaultCost <= 0 {
		s.defaultCost = DefaultFieldCost
	}
	if s.maxRecursion <= 0 {
		s.maxRecursion = DefaultMaxRecursion
	}
	return s
}

// Score walks sel and returns its accumulated cost. The document is needed
// to resolve fragment spreads against their definitions; spreads naming a
// fragment the document does not define contribute nothing. Identical trees
// always score identically.
func (s *Scorer) Score(doc *language.QueryDocument, sel language.SelectionSet) float64 {
	return s.score(doc, sel, 0, make(map[string]bool))
}

// score carries the current nesting depth and the set of fragments on the
// active spread path. The path set breaks fragment cycles while still
// charging a fragment once per distinct spread site.
func (s *Scorer) score(doc *language.QueryDocument, sel language.SelectionSet, depth int, path map[string]bool) float64 {
	if len(sel) == 0 || depth > s.maxRecursion {
		return 0
	}
	var total float64
	for _, selection := range sel {
		switch n := selection.(type) {
		case *language.Field:
			cost, ok := s.costs[n.Name]
			if !ok {
				cost = s.defaultCost
			}
			total += cost
			total += limitSurcharge(n.Arguments)
			total += s.score(doc, n.SelectionSet, depth+1, path)

		case *language.InlineFragment:
			total += s.score(doc, n.SelectionSet, depth+1, path)

		case *language.FragmentSpread:
			if path[n.Name] {
				continue
			}
			def := language.FragmentForName(doc, n.Name)
			if def == nil {
				continue
			}
			path[n.Name] = true
			total += s.score(doc, def.SelectionSet, depth+1, path)
			delete(path, n.Name)
		}
	}
	return total
}

// limitSurcharge approximates list fan-out: every argument literally named
// "limit" with an integer literal adds min(limit, 50) * 0.5. Variables and
// non-integer literals are ignored; the static pass cannot see their values.
func limitSurcharge(args language.ArgumentList) float64 {
	var total float64
	for _, arg := range args {
		if arg.Name != "limit" || arg.Value == nil || arg.Value.Kind != language.IntValue {
			continue
		}
		n, err := strconv.ParseInt(arg.Value.Raw, 10, 64)
		if err != nil || n <= 0 {
			continue
		}
		if n > limitClamp {
			n = limitClamp
		}
		total += float64(n) * limitCostPerItem
	}
	return total
}
