package nodes

import (
	"fmt"

	. "github.com/cube2222/octoudf/execution"
	"github.com/cube2222/octoudf/execution/udf"
	"github.com/cube2222/octoudf/graph"
)

// ScalarFunction evaluates a scalar function over every record of the source,
// through the function runner of the operator.
type ScalarFunction struct {
	source   Node
	operator *udf.ScalarFunctionOperator
}

func NewScalarFunction(source Node, operator *udf.ScalarFunctionOperator) *ScalarFunction {
	return &ScalarFunction{
		source:   source,
		operator: operator,
	}
}

func (s *ScalarFunction) Run(ctx ExecutionContext, produce ProduceFn) error {
	if err := s.operator.Open(ctx, produce); err != nil {
		return fmt.Errorf("couldn't open scalar function: %w", err)
	}

	if err := s.source.Run(ctx, func(produceCtx ProduceContext, record Record) error {
		if err := s.operator.ProcessRecord(produceCtx, record); err != nil {
			return fmt.Errorf("couldn't process record: %w", err)
		}
		return nil
	}); err != nil {
		// A failure of the operator takes precedence over the error it caused in the source.
		if failure := s.operator.Abort(ctx); failure != nil {
			return fmt.Errorf("scalar function failed: %w", failure)
		}
		return fmt.Errorf("couldn't run source: %w", err)
	}

	if err := s.operator.Finish(ctx); err != nil {
		return fmt.Errorf("couldn't finish scalar function: %w", err)
	}
	return nil
}

func (s *ScalarFunction) Visualize() *graph.Node {
	n := s.operator.Visualize()
	if source, ok := s.source.(graph.Visualizer); ok {
		n.AddChild("source", source.Visualize())
	}
	return n
}
