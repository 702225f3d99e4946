package formats

import (
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/cube2222/octoudf/execution"
	"github.com/cube2222/octoudf/physical"
)

// TableFormatter buffers all records and renders them as one table on Close.
type TableFormatter struct {
	table *tablewriter.Table
}

func NewTableFormatter(w io.Writer) *TableFormatter {
	table := tablewriter.NewWriter(w)
	table.SetColWidth(24)
	table.SetRowLine(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)

	return &TableFormatter{
		table: table,
	}
}

func (t *TableFormatter) SetSchema(schema physical.Schema) {
	header := make([]string, len(schema.Fields)+1)
	header[0] = ChangeKindField
	for i := range schema.Fields {
		header[i+1] = schema.Fields[i].Name
	}
	t.table.SetHeader(header)
	t.table.SetAutoFormatHeaders(false)
}

func (t *TableFormatter) Write(record execution.Record) error {
	row := make([]string, len(record.Values)+1)
	row[0] = record.ChangeKind.ShortString()
	for i := range record.Values {
		row[i+1] = record.Values[i].String()
	}
	t.table.Append(row)
	return nil
}

func (t *TableFormatter) Close() error {
	t.table.Render()
	return nil
}
