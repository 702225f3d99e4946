package physical

import (
	"github.com/apache/arrow/go/v13/arrow"
	"github.com/pkg/errors"

	"github.com/cube2222/octoudf/octosql"
)

var ErrUnsupportedArrowType = errors.New("type not supported in arrow")

func OctoSQLToArrowSchema(schema Schema) (*arrow.Schema, error) {
	fields := make([]arrow.Field, len(schema.Fields))
	for i, field := range schema.Fields {
		t, err := OctoSQLToArrowType(field.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "couldn't convert field '%s'", field.Name)
		}
		fields[i] = arrow.Field{
			Name:     field.Name,
			Nullable: OctoSQLTypeIsNullable(field.Type),
			Type:     t,
		}
	}
	return arrow.NewSchema(fields, nil), nil
}

func OctoSQLTypeIsNullable(t octosql.Type) bool {
	return octosql.Null.Is(t) == octosql.TypeRelationIs
}

// OctoSQLToArrowType maps scalar types, and nullable scalar types, to arrow.
// Lists, structs and wider unions are rejected.
func OctoSQLToArrowType(t octosql.Type) (arrow.DataType, error) {
	switch t.TypeID {
	case octosql.TypeIDNull:
		return arrow.Null, nil
	case octosql.TypeIDInt:
		return arrow.PrimitiveTypes.Int64, nil
	case octosql.TypeIDFloat:
		return arrow.PrimitiveTypes.Float64, nil
	case octosql.TypeIDBoolean:
		return arrow.FixedWidthTypes.Boolean, nil
	case octosql.TypeIDString:
		return arrow.BinaryTypes.String, nil
	case octosql.TypeIDTime:
		return arrow.FixedWidthTypes.Timestamp_ns, nil
	case octosql.TypeIDDuration:
		return arrow.FixedWidthTypes.Duration_ns, nil
	case octosql.TypeIDUnion:
		if concrete := t.Concrete(); concrete.TypeID != octosql.TypeIDUnion {
			return OctoSQLToArrowType(concrete)
		}
	}
	return nil, errors.Wrapf(ErrUnsupportedArrowType, "%s", t)
}

// ArrowToOctoSQLType is the inverse of OctoSQLToArrowType.
func ArrowToOctoSQLType(t arrow.DataType) (octosql.Type, error) {
	switch t.ID() {
	case arrow.NULL:
		return octosql.Null, nil
	case arrow.INT64:
		return octosql.Int, nil
	case arrow.FLOAT64:
		return octosql.Float, nil
	case arrow.BOOL:
		return octosql.Boolean, nil
	case arrow.STRING:
		return octosql.String, nil
	case arrow.TIMESTAMP:
		return octosql.Time, nil
	case arrow.DURATION:
		return octosql.Duration, nil
	}
	return octosql.Type{}, errors.Wrapf(ErrUnsupportedArrowType, "%s", t)
}
