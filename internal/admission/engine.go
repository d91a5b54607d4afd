package admission

import (
	"log/slog"

	complexity "github.com/classhub/gqlgate/internal/complexity"
	language "github.com/classhub/gqlgate/internal/language"
)

// Report carries the measurements taken for one evaluated operation.
type Report struct {
	OperationType string
	OperationName string
	Complexity    float64
	Depth         int
}

// Engine wires the document selector, scorer, depth calculator and gate
// into a single pre-execution check. It is stateless across requests and
// safe for concurrent use.
type Engine struct {
	scorer *complexity.Scorer
	depth  *complexity.DepthCalculator
	gate   *Gate
	logger *slog.Logger
}

// EngineOptions configures an Engine. Nil or zero fields fall back to the
// package defaults.
type EngineOptions struct {
	Costs        complexity.CostTable
	DefaultCost  float64
	MaxRecursion int
	DepthCeiling int
	Policy       Policy

	// Logger receives one Debug record per evaluated operation, passing or
	// not, for threshold tuning. Nil disables decision logging; volume is
	// otherwise controlled by the handler's configured level.
	Logger *slog.Logger
}

func NewEngine(opts EngineOptions) *Engine {
	return &Engine{
		scorer: complexity.NewScorer(complexity.ScorerOptions{
			Costs:        opts.Costs,
			DefaultCost:  opts.DefaultCost,
			MaxRecursion: opts.MaxRecursion,
		}),
		depth:  complexity.NewDepthCalculator(opts.DepthCeiling),
		gate:   NewGate(opts.Policy),
		logger: opts.Logger,
	}
}

func (e *Engine) Policy() Policy { return e.gate.Policy() }

// Check selects the target operation from doc, measures it, and runs the
// gate. When no operation matches the report is zero-valued and the
// decision is Allow.
func (e *Engine) Check(doc *language.QueryDocument, operationName string) (Report, Decision) {
	op := language.SelectOperation(doc, operationName)
	if op == nil {
		return Report{}, e.gate.Evaluate(nil, 0, 0)
	}

	report := Report{
		OperationType: string(op.Operation),
		OperationName: op.Name,
		Complexity:    e.scorer.Score(doc, op.SelectionSet),
		Depth:         e.depth.Depth(doc, op.SelectionSet),
	}
	decision := e.gate.Evaluate(op, report.Complexity, report.Depth)

	if e.logger != nil {
		attrs := []any{
			slog.String("operation_type", report.OperationType),
			slog.String("operation_name", report.OperationName),
			slog.Float64("complexity", report.Complexity),
			slog.Int("depth", report.Depth),
			slog.Bool("allowed", decision.Allowed),
		}
		if decision.Rejection != nil {
			attrs = append(attrs, slog.String("code", string(decision.Rejection.Code)))
		}
		e.logger.Debug("admission evaluated", attrs...)
	}
	return report, decision
}
