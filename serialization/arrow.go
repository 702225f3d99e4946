package serialization

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/ipc"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/pkg/errors"

	"github.com/cube2222/octoudf/octosql"
	"github.com/cube2222/octoudf/physical"
)

// ArrowCodec encodes each row as an Arrow IPC stream holding a single one-row record batch.
type ArrowCodec struct {
	schema      physical.Schema
	arrowSchema *arrow.Schema
	allocator   memory.Allocator
}

func NewArrowCodec(schema physical.Schema) (*ArrowCodec, error) {
	arrowSchema, err := physical.OctoSQLToArrowSchema(schema)
	if err != nil {
		return nil, errors.Wrap(ErrUnsupportedType, err.Error())
	}
	return &ArrowCodec{
		schema:      schema,
		arrowSchema: arrowSchema,
		allocator:   memory.DefaultAllocator,
	}, nil
}

func (c *ArrowCodec) Schema() physical.Schema {
	return c.schema
}

func (c *ArrowCodec) Encode(values []octosql.Value) ([]byte, error) {
	if err := checkEncoded(c.schema, values); err != nil {
		return nil, err
	}

	// Columns are built one by one, so that a row without fields still has length 1.
	columns := make([]arrow.Array, len(values))
	for i := range values {
		builder := array.NewBuilder(c.allocator, c.arrowSchema.Field(i).Type)
		err := appendArrowValue(builder, values[i])
		if err == nil {
			columns[i] = builder.NewArray()
		}
		builder.Release()
		if err != nil {
			releaseAll(columns)
			return nil, errors.Wrapf(err, "couldn't append field '%s'", c.schema.Fields[i].Name)
		}
	}
	record := array.NewRecord(c.arrowSchema, columns, 1)
	releaseAll(columns)
	defer record.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(c.arrowSchema), ipc.WithAllocator(c.allocator))
	if err := w.Write(record); err != nil {
		return nil, errors.Wrap(err, "couldn't write arrow record")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "couldn't close arrow writer")
	}
	return buf.Bytes(), nil
}

func releaseAll(columns []arrow.Array) {
	for i := range columns {
		if columns[i] != nil {
			columns[i].Release()
		}
	}
}

func (c *ArrowCodec) Decode(data []byte) ([]octosql.Value, error) {
	values, err := decodeArrow(data)
	if err != nil {
		return nil, err
	}
	if err := checkDecoded(c.schema, values); err != nil {
		return nil, err
	}
	return values, nil
}

func appendArrowValue(builder array.Builder, value octosql.Value) error {
	if value.TypeID == octosql.TypeIDNull {
		builder.AppendNull()
		return nil
	}

	switch builder := builder.(type) {
	case *array.Int64Builder:
		if value.TypeID == octosql.TypeIDInt {
			builder.Append(int64(value.Int))
			return nil
		}
	case *array.Float64Builder:
		if value.TypeID == octosql.TypeIDFloat {
			builder.Append(value.Float)
			return nil
		}
	case *array.BooleanBuilder:
		if value.TypeID == octosql.TypeIDBoolean {
			builder.Append(value.Boolean)
			return nil
		}
	case *array.StringBuilder:
		if value.TypeID == octosql.TypeIDString {
			builder.Append(value.Str)
			return nil
		}
	case *array.TimestampBuilder:
		if value.TypeID == octosql.TypeIDTime {
			builder.Append(arrow.Timestamp(value.Time.UnixNano()))
			return nil
		}
	case *array.DurationBuilder:
		if value.TypeID == octosql.TypeIDDuration {
			builder.Append(arrow.Duration(value.Duration))
			return nil
		}
	}
	return errors.Wrapf(ErrUnsupportedType, "can't append %s value to %T", value.TypeID, builder)
}

// The IPC reader works on flatbuffers and may panic on corrupted input.
func decodeArrow(data []byte) (values []octosql.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			values = nil
			err = errors.Wrapf(ErrDecode, "corrupted arrow stream: %v", r)
		}
	}()

	reader, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "couldn't open arrow stream: %s", err)
	}
	defer reader.Release()

	if !reader.Next() {
		if reader.Err() != nil {
			return nil, errors.Wrapf(ErrDecode, "couldn't read arrow record: %s", reader.Err())
		}
		return nil, errors.Wrap(ErrDecode, "arrow stream holds no record batch")
	}
	record := reader.Record()
	if record.NumRows() != 1 {
		return nil, errors.Wrapf(ErrDecode, "expected a single row, got %d", record.NumRows())
	}

	values = make([]octosql.Value, record.NumCols())
	for i := range values {
		values[i], err = arrowValue(record.Column(i), 0)
		if err != nil {
			return nil, errors.Wrapf(err, "couldn't read column %d", i)
		}
	}

	if reader.Next() {
		return nil, errors.Wrap(ErrDecode, "arrow stream holds more than one record batch")
	}
	return values, nil
}

func arrowValue(arr arrow.Array, i int) (octosql.Value, error) {
	if arr.IsNull(i) {
		return octosql.NewNull(), nil
	}

	switch arr := arr.(type) {
	case *array.Null:
		return octosql.NewNull(), nil
	case *array.Int64:
		return octosql.NewInt(int(arr.Value(i))), nil
	case *array.Float64:
		return octosql.NewFloat(arr.Value(i)), nil
	case *array.Boolean:
		return octosql.NewBoolean(arr.Value(i)), nil
	case *array.String:
		return octosql.NewString(strings.Clone(arr.Value(i))), nil
	case *array.Timestamp:
		unit := arr.DataType().(*arrow.TimestampType).Unit
		return octosql.NewTime(time.Unix(0, int64(arr.Value(i))*int64(unitDuration(unit))).UTC()), nil
	case *array.Duration:
		unit := arr.DataType().(*arrow.DurationType).Unit
		return octosql.NewDuration(time.Duration(arr.Value(i)) * unitDuration(unit)), nil
	}
	return octosql.Value{}, errors.Wrapf(ErrDecode, "unsupported arrow column type %s", arr.DataType())
}

func unitDuration(unit arrow.TimeUnit) time.Duration {
	switch unit {
	case arrow.Second:
		return time.Second
	case arrow.Millisecond:
		return time.Millisecond
	case arrow.Microsecond:
		return time.Microsecond
	case arrow.Nanosecond:
		return time.Nanosecond
	}
	panic(fmt.Sprintf("invalid arrow time unit: %v", unit))
}
