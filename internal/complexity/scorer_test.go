package complexity

import (
	"fmt"
	"strings"
	"testing"

	language "github.com/classhub/gqlgate/internal/language"
)

func mustParseQuery(t *testing.T, src string) *language.QueryDocument {
	t.Helper()
	doc, err := language.ParseQuery(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func rootSet(t *testing.T, src string) (*language.QueryDocument, language.SelectionSet) {
	t.Helper()
	doc := mustParseQuery(t, src)
	return doc, doc.Operations[0].SelectionSet
}

func TestScoreEmptySelection(t *testing.T) {
	s := NewScorer(ScorerOptions{})
	if got := s.Score(nil, nil); got != 0 {
		t.Fatalf("empty selection scored %v, want 0", got)
	}
}

func TestScoreDefaultCost(t *testing.T) {
	s := NewScorer(ScorerOptions{})
	doc, sel := rootSet(t, `{ a b c }`)
	if got := s.Score(doc, sel); got != 3 {
		t.Fatalf("three unlisted fields scored %v, want 3", got)
	}
}

func TestScoreCostTable(t *testing.T) {
	s := NewScorer(ScorerOptions{
		Costs: CostTable{"members": 10, "artifacts": 10, "owner": 5, "createdBy": 5},
	})
	doc, sel := rootSet(t, `{ members { artifacts { owner { createdBy } } } }`)
	if got := s.Score(doc, sel); got != 30 {
		t.Fatalf("scored %v, want 30", got)
	}
}

func TestScoreCaseSensitiveLookup(t *testing.T) {
	s := NewScorer(ScorerOptions{Costs: CostTable{"members": 10}})
	doc, sel := rootSet(t, `{ Members }`)
	// "Members" is not "members"; it falls back to the default cost.
	if got := s.Score(doc, sel); got != 1 {
		t.Fatalf("scored %v, want 1", got)
	}
}

func TestScoreLimitSurcharge(t *testing.T) {
	s := NewScorer(ScorerOptions{})
	cases := []struct {
		query string
		want  float64
	}{
		{`{ items(limit: 10) }`, 1 + 5},
		{`{ items(limit: 200) }`, 1 + 25}, // clamped at 50
		{`{ items(limit: 50) }`, 1 + 25},
		{`{ items(limit: 0) }`, 1},
		{`{ items(limit: -5) }`, 1},
		{`{ items(first: 200) }`, 1},             // only "limit" is charged
		{`{ items(limit: $n) }`, 1},              // variables are invisible statically
		{`{ items(limit: 10) { nested } }`, 7},    // 1 + 5 + 1
		{`{ a(limit: 10) b(limit: 10) }`, 2 + 10}, // surcharge per field
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			doc, sel := rootSet(t, tc.query)
			if got := s.Score(doc, sel); got != tc.want {
				t.Fatalf("scored %v, want %v", got, tc.want)
			}
		})
	}
}

func TestScoreRecursionCutoff(t *testing.T) {
	s := NewScorer(ScorerOptions{})

	// f0 { f1 { ... { f10 } } }: levels past the cutoff contribute nothing.
	deep := nestedQuery(11)
	doc, sel := rootSet(t, deep)
	got := s.Score(doc, sel)

	shallow := nestedQuery(9)
	doc2, sel2 := rootSet(t, shallow)
	want := s.Score(doc2, sel2)

	if got != want {
		t.Fatalf("deep query scored %v, truncated query scored %v; cutoff not enforced", got, want)
	}
}

// nestedQuery builds { f0 { f1 { ... } } } with n fields on one chain.
func nestedQuery(n int) string {
	var b strings.Builder
	b.WriteString("{")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, " f%d {", i)
	}
	b.WriteString(" leaf")
	for i := 0; i < n; i++ {
		b.WriteString(" }")
	}
	b.WriteString(" }")
	return b.String()
}

func TestScoreMonotonicity(t *testing.T) {
	s := NewScorer(ScorerOptions{Costs: CostTable{"members": 10}})

	base := `{ members { name } }`
	grownLeaf := `{ members { name email } }`
	grownRoot := `{ members { name } notifications }`

	docA, selA := rootSet(t, base)
	docB, selB := rootSet(t, grownLeaf)
	docC, selC := rootSet(t, grownRoot)

	a, b, c := s.Score(docA, selA), s.Score(docB, selB), s.Score(docC, selC)
	if b <= a || c <= a {
		t.Fatalf("adding nodes must not decrease the score: base=%v leaf=%v root=%v", a, b, c)
	}
}

func TestScoreFragmentSpreadResolution(t *testing.T) {
	s := NewScorer(ScorerOptions{Costs: CostTable{"artifacts": 10}})

	spread := `
		query { members { ...ArtifactList } }
		fragment ArtifactList on Member { artifacts { title } }
	`
	inline := `{ members { artifacts { title } } }`

	docS := mustParseQuery(t, spread)
	docI, selI := rootSet(t, inline)

	got := s.Score(docS, docS.Operations[0].SelectionSet)
	want := s.Score(docI, selI)
	if got != want {
		t.Fatalf("spread scored %v, inlined equivalent scored %v", got, want)
	}
}

func TestScoreUndefinedFragmentContributesNothing(t *testing.T) {
	s := NewScorer(ScorerOptions{})
	doc, sel := rootSet(t, `{ a ...Ghost }`)
	if got := s.Score(doc, sel); got != 1 {
		t.Fatalf("scored %v, want 1", got)
	}
}

func TestScoreFragmentCycleTerminates(t *testing.T) {
	s := NewScorer(ScorerOptions{})
	doc := mustParseQuery(t, `
		query { ...A }
		fragment A on Query { x ...B }
		fragment B on Query { y ...A }
	`)
	got := s.Score(doc, doc.Operations[0].SelectionSet)
	if got <= 0 {
		t.Fatalf("cyclic fragments scored %v, want a finite positive score", got)
	}
}

func TestScoreFragmentReuseAcrossSiblings(t *testing.T) {
	s := NewScorer(ScorerOptions{})
	doc := mustParseQuery(t, `
		query { a { ...F } b { ...F } }
		fragment F on T { x }
	`)
	// F is charged at both spread sites: a, b, and x twice.
	if got := s.Score(doc, doc.Operations[0].SelectionSet); got != 4 {
		t.Fatalf("scored %v, want 4", got)
	}
}
