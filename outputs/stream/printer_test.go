package stream

import (
	"bytes"
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cube2222/octoudf/execution"
	"github.com/cube2222/octoudf/execution/nodes"
	"github.com/cube2222/octoudf/octosql"
	"github.com/cube2222/octoudf/outputs/formats"
	"github.com/cube2222/octoudf/physical"
)

func TestOutputPrinter(t *testing.T) {
	schema := physical.NewSchema([]physical.SchemaField{{Name: "x", Type: octosql.Int}})
	source := nodes.NewInMemoryRecords([]execution.Record{
		execution.NewRecord([]octosql.Value{octosql.NewInt(1)}, execution.ChangeKindInsert),
		execution.NewRecord([]octosql.Value{octosql.NewInt(1)}, execution.ChangeKindDelete),
	})

	var buf bytes.Buffer
	printer := NewOutputPrinter(source, schema, formats.NewJSONFormatter(&buf))
	require.NoError(t, printer.Run(execution.NewExecutionContext(context.Background(), nil)))
	assert.Equal(t, "{\"_kind\":\"+I\",\"x\":1}\n{\"_kind\":\"-D\",\"x\":1}\n", buf.String())
}

type failingNode struct {
	err error
}

func (n *failingNode) Run(ctx execution.ExecutionContext, produce execution.ProduceFn) error {
	return n.err
}

func TestOutputPrinterSourceError(t *testing.T) {
	errSource := errors.New("source failed")
	var buf bytes.Buffer
	printer := NewOutputPrinter(&failingNode{err: errSource}, physical.NewSchema(nil), formats.NewTableFormatter(&buf))
	err := printer.Run(execution.NewExecutionContext(context.Background(), nil))
	assert.ErrorIs(t, err, errSource)
	assert.Empty(t, buf.String())
}
