// Package language wraps the gqlparser AST behind local aliases so the rest
// of the module never imports the parser directly.
package language

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// SelectOperation picks the target operation out of a multi-operation
// document: the first operation whose name matches, or, when name is empty,
// the first operation in document order. Returns nil when nothing matches.
//
// Note the empty-name case deliberately picks by document order; callers
// expecting the last-defined operation will be surprised.
func SelectOperation(doc *QueryDocument, name string) *OperationDefinition {
	if doc == nil {
		return nil
	}
	for _, op := range doc.Operations {
		if name == "" || op.Name == name {
			return op
		}
	}
	return nil
}

// FragmentForName finds a named fragment definition in the document, or nil.
func FragmentForName(doc *QueryDocument, name string) *FragmentDefinition {
	if doc == nil {
		return nil
	}
	return doc.Fragments.ForName(name)
}
