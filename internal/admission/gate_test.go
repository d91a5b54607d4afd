package admission

import (
	"testing"

	language "github.com/classhub/gqlgate/internal/language"
	"github.com/google/go-cmp/cmp"
)

func testOperation(t *testing.T) *language.OperationDefinition {
	t.Helper()
	doc, err := language.ParseQuery(`query Q { a }`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc.Operations[0]
}

func TestGateNilOperationAllows(t *testing.T) {
	g := NewGate(DefaultPolicy())
	// Measurements are irrelevant without an operation.
	d := g.Evaluate(nil, 1e9, 1000)
	if !d.Allowed || d.Rejection != nil {
		t.Fatalf("nil operation rejected: %+v", d)
	}
}

func TestGateComplexityThreshold(t *testing.T) {
	g := NewGate(Policy{MaxComplexity: 500, MaxDepth: 10})
	op := testOperation(t)

	t.Run("at the limit passes", func(t *testing.T) {
		if d := g.Evaluate(op, 500, 1); !d.Allowed {
			t.Fatalf("score 500 rejected: %+v", d.Rejection)
		}
	})

	t.Run("over the limit rejects", func(t *testing.T) {
		d := g.Evaluate(op, 501, 1)
		want := &Rejection{Code: CodeTooComplex, Complexity: 501, MaxComplexity: 500}
		if d.Allowed {
			t.Fatal("score 501 admitted")
		}
		if diff := cmp.Diff(want, d.Rejection); diff != "" {
			t.Fatalf("rejection mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestGateDepthThreshold(t *testing.T) {
	g := NewGate(Policy{MaxComplexity: 500, MaxDepth: 10})
	op := testOperation(t)

	t.Run("at the limit passes", func(t *testing.T) {
		if d := g.Evaluate(op, 1, 10); !d.Allowed {
			t.Fatalf("depth 10 rejected: %+v", d.Rejection)
		}
	})

	t.Run("over the limit rejects", func(t *testing.T) {
		d := g.Evaluate(op, 1, 11)
		want := &Rejection{Code: CodeTooDeep, Depth: 11, MaxDepth: 10}
		if d.Allowed {
			t.Fatal("depth 11 admitted")
		}
		if diff := cmp.Diff(want, d.Rejection); diff != "" {
			t.Fatalf("rejection mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestGateComplexityCheckedBeforeDepth(t *testing.T) {
	g := NewGate(Policy{MaxComplexity: 500, MaxDepth: 10})
	op := testOperation(t)

	// Both thresholds violated: only the complexity violation is reported.
	d := g.Evaluate(op, 501, 11)
	if d.Allowed {
		t.Fatal("admitted")
	}
	if d.Rejection.Code != CodeTooComplex {
		t.Fatalf("reported %s, want %s", d.Rejection.Code, CodeTooComplex)
	}
}

func TestGateZeroPolicyFallsBackToDefaults(t *testing.T) {
	g := NewGate(Policy{})
	if got := g.Policy(); got != DefaultPolicy() {
		t.Fatalf("policy %+v, want defaults", got)
	}
}
