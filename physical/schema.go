package physical

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/cube2222/octoudf/octosql"
)

// Schema is the row type of a stream: an ordered list of named, typed fields.
type Schema struct {
	Fields []SchemaField
}

func NewSchema(fields []SchemaField) Schema {
	return Schema{
		Fields: fields,
	}
}

type SchemaField struct {
	Name string
	Type octosql.Type
}

func (s Schema) Len() int {
	return len(s.Fields)
}

// Project returns the schema made of the fields at the given indices, in the given order.
func (s Schema) Project(indices []int) (Schema, error) {
	fields := make([]SchemaField, len(indices))
	for i, index := range indices {
		if index < 0 || index >= len(s.Fields) {
			return Schema{}, errors.Errorf("field index %d out of range for schema with %d fields", index, len(s.Fields))
		}
		fields[i] = s.Fields[index]
	}
	return NewSchema(fields), nil
}

// CheckValues verifies that the values fit the schema field by field.
func (s Schema) CheckValues(values []octosql.Value) error {
	if len(values) != len(s.Fields) {
		return errors.Errorf("expected %d fields, got %d", len(s.Fields), len(values))
	}
	for i := range values {
		if !s.Fields[i].Type.Accepts(values[i]) {
			return errors.Errorf("field '%s' (index %d) of type %s can't hold value %s of type %s", s.Fields[i].Name, i, s.Fields[i].Type, values[i], values[i].TypeID)
		}
	}
	return nil
}

func (s Schema) String() string {
	fields := make([]string, len(s.Fields))
	for i, field := range s.Fields {
		fields[i] = fmt.Sprintf("%s: %s", field.Name, field.Type)
	}
	return fmt.Sprintf("(%s)", strings.Join(fields, ", "))
}
