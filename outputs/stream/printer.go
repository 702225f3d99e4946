package stream

import (
	"github.com/pkg/errors"

	. "github.com/cube2222/octoudf/execution"
	"github.com/cube2222/octoudf/outputs/formats"
	"github.com/cube2222/octoudf/physical"
)

// OutputPrinter writes every record of the source to the formatter, in arrival order.
type OutputPrinter struct {
	source    Node
	schema    physical.Schema
	formatter formats.Formatter
}

func NewOutputPrinter(source Node, schema physical.Schema, formatter formats.Formatter) *OutputPrinter {
	return &OutputPrinter{
		source:    source,
		schema:    schema,
		formatter: formatter,
	}
}

func (o *OutputPrinter) Run(execCtx ExecutionContext) error {
	o.formatter.SetSchema(o.schema)
	if err := o.source.Run(execCtx, func(ctx ProduceContext, record Record) error {
		return o.formatter.Write(record)
	}); err != nil {
		return err
	}

	if err := o.formatter.Close(); err != nil {
		return errors.Wrap(err, "couldn't close output formatter")
	}
	return nil
}
