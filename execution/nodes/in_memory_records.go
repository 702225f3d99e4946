package nodes

import (
	"fmt"

	"github.com/cube2222/octoudf/execution"
	"github.com/cube2222/octoudf/graph"
	"github.com/cube2222/octoudf/octosql"
)

type InMemoryRecords struct {
	records []execution.Record
}

func NewInMemoryRecords(records []execution.Record) *InMemoryRecords {
	return &InMemoryRecords{
		records: records,
	}
}

func (r *InMemoryRecords) Run(ctx execution.ExecutionContext, produce execution.ProduceFn) error {
	for i := 0; i < len(r.records); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		recordValues := make([]octosql.Value, len(r.records[i].Values))
		copy(recordValues, r.records[i].Values)

		if err := produce(
			execution.ProduceFromExecutionContext(ctx),
			execution.NewRecord(recordValues, r.records[i].ChangeKind),
		); err != nil {
			return fmt.Errorf("couldn't produce record: %w", err)
		}
	}
	return nil
}

func (r *InMemoryRecords) Visualize() *graph.Node {
	n := graph.NewNode("in-memory records")
	n.AddField("records", fmt.Sprint(len(r.records)))
	return n
}
