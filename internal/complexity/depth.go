package complexity

import (
	language "github.com/classhub/gqlgate/internal/language"
)

// DefaultDepthCeiling bounds the depth calculator's recursion. It sits far
// above any sane depth policy so real violations are still observed, while
// pathological nesting cannot exhaust the stack. Reported depth saturates
// at the ceiling.
const DefaultDepthCeiling = 100

// DepthCalculator reports the maximum selection-set nesting of an
// operation. Construct with NewDepthCalculator.
type DepthCalculator struct {
	ceiling int
}

func NewDepthCalculator(ceiling int) *DepthCalculator {
	if ceiling <= 0 {
		ceiling = DefaultDepthCeiling
	}
	return &DepthCalculator{ceiling: ceiling}
}

// Depth returns the length of the longest chain of nested selections in
// sel, independent of sibling breadth. An empty or absent set is depth 0.
// Fragment spreads resolve against the document's fragment definitions, at
// one nesting level per spread like inline fragments.
func (d *DepthCalculator) Depth(doc *language.QueryDocument, sel language.SelectionSet) int {
	return d.depth(doc, sel, 0, make(map[string]bool))
}

func (d *DepthCalculator) depth(doc *language.QueryDocument, sel language.SelectionSet, depth int, path map[string]bool) int {
	if len(sel) == 0 || depth >= d.ceiling {
		return depth
	}
	max := depth
	for _, selection := range sel {
		var nested int
		switch n := selection.(type) {
		case *language.Field:
			nested = d.depth(doc, n.SelectionSet, depth+1, path)

		case *language.InlineFragment:
			nested = d.depth(doc, n.SelectionSet, depth+1, path)

		case *language.FragmentSpread:
			if path[n.Name] {
				continue
			}
			def := language.FragmentForName(doc, n.Name)
			if def == nil {
				continue
			}
			path[n.Name] = true
			nested = d.depth(doc, def.SelectionSet, depth+1, path)
			delete(path, n.Name)
		}
		if nested > max {
			max = nested
		}
	}
	return max
}
