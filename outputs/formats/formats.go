package formats

import (
	"io"

	"github.com/pkg/errors"

	"github.com/cube2222/octoudf/execution"
	"github.com/cube2222/octoudf/physical"
)

// ChangeKindField is the name under which the change kind of a record is written.
const ChangeKindField = "_kind"

type Formatter interface {
	SetSchema(schema physical.Schema)
	Write(record execution.Record) error
	Close() error
}

func NewFormatter(name string, w io.Writer) (Formatter, error) {
	switch name {
	case "table":
		return NewTableFormatter(w), nil
	case "json":
		return NewJSONFormatter(w), nil
	default:
		return nil, errors.Errorf("invalid output format: '%s'", name)
	}
}
