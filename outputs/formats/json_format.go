package formats

import (
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fastjson"

	"github.com/cube2222/octoudf/execution"
	"github.com/cube2222/octoudf/octosql"
	"github.com/cube2222/octoudf/physical"
)

// JSONFormatter writes one json object per record, with the change kind under ChangeKindField.
type JSONFormatter struct {
	buf    []byte
	arena  *fastjson.Arena
	w      io.Writer
	fields []physical.SchemaField
}

func NewJSONFormatter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{
		buf:   make([]byte, 0, 1024),
		arena: new(fastjson.Arena),
		w:     w,
	}
}

func (t *JSONFormatter) SetSchema(schema physical.Schema) {
	t.fields = schema.Fields
}

func (t *JSONFormatter) Write(record execution.Record) error {
	if len(record.Values) != len(t.fields) {
		return errors.Errorf("record has %d fields, schema has %d", len(record.Values), len(t.fields))
	}
	obj := t.arena.NewObject()
	obj.Set(ChangeKindField, t.arena.NewString(record.ChangeKind.ShortString()))
	for i := range t.fields {
		obj.Set(t.fields[i].Name, ValueToJson(t.arena, t.fields[i].Type, record.Values[i]))
	}

	t.buf = obj.MarshalTo(t.buf)
	t.buf = append(t.buf, '\n')
	_, err := t.w.Write(t.buf)
	t.buf = t.buf[:0]
	t.arena.Reset()
	if err != nil {
		return errors.Wrap(err, "couldn't write record")
	}
	return nil
}

func ValueToJson(arena *fastjson.Arena, t octosql.Type, value octosql.Value) *fastjson.Value {
	switch t.TypeID {
	case octosql.TypeIDUnion:
		for i := range t.Union.Alternatives {
			if t.Union.Alternatives[i].TypeID == value.TypeID {
				return ValueToJson(arena, t.Union.Alternatives[i], value)
			}
		}
		return ValueToJson(arena, value.Type(), value)
	case octosql.TypeIDAny:
		return ValueToJson(arena, value.Type(), value)
	}

	switch value.TypeID {
	case octosql.TypeIDNull:
		return arena.NewNull()
	case octosql.TypeIDInt:
		return arena.NewNumberInt(value.Int)
	case octosql.TypeIDFloat:
		return arena.NewNumberFloat64(value.Float)
	case octosql.TypeIDBoolean:
		if value.Boolean {
			return arena.NewTrue()
		} else {
			return arena.NewFalse()
		}
	case octosql.TypeIDString:
		return arena.NewString(value.Str)
	case octosql.TypeIDTime:
		return arena.NewString(value.Time.Format(time.RFC3339Nano))
	case octosql.TypeIDDuration:
		return arena.NewString(value.Duration.String())
	case octosql.TypeIDList:
		element := octosql.Any
		if t.TypeID == octosql.TypeIDList && t.List.Element != nil {
			element = *t.List.Element
		}
		arr := arena.NewArray()
		for i := range value.List {
			arr.SetArrayItem(i, ValueToJson(arena, element, value.List[i]))
		}
		return arr
	case octosql.TypeIDStruct:
		if t.TypeID != octosql.TypeIDStruct || len(t.Struct.Fields) != len(value.Struct) {
			t = value.Type()
		}
		obj := arena.NewObject()
		for i := range value.Struct {
			obj.Set(t.Struct.Fields[i].Name, ValueToJson(arena, t.Struct.Fields[i].Type, value.Struct[i]))
		}
		return obj
	default:
		panic(fmt.Sprintf("invalid octosql value type to print: %s", value.TypeID.String()))
	}
}

func (t *JSONFormatter) Close() error {
	return nil
}
