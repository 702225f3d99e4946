package json

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/valyala/fastjson"

	. "github.com/cube2222/octoudf/execution"
	"github.com/cube2222/octoudf/graph"
	"github.com/cube2222/octoudf/octosql"
	"github.com/cube2222/octoudf/physical"
)

// ChangeKindField optionally holds the change kind of a line. Lines without it are inserts.
const ChangeKindField = "_kind"

// Datasource reads newline delimited json objects, one record per line.
// Fields are looked up by schema field name. Missing fields are null.
type Datasource struct {
	path   string
	open   func() (io.ReadCloser, error)
	fields []physical.SchemaField
}

// NewDatasource reads the file at path, or standard input if path is "-".
func NewDatasource(path string, schema physical.Schema) *Datasource {
	return &Datasource{
		path: path,
		open: func() (io.ReadCloser, error) {
			if path == "-" {
				return io.NopCloser(os.Stdin), nil
			}
			return os.Open(path)
		},
		fields: schema.Fields,
	}
}

func NewReaderDatasource(r io.Reader, schema physical.Schema) *Datasource {
	return &Datasource{
		path: "<reader>",
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(r), nil
		},
		fields: schema.Fields,
	}
}

func (d *Datasource) Visualize() *graph.Node {
	n := graph.NewNode("json")
	n.AddField("path", d.path)
	n.AddField("schema", physical.NewSchema(d.fields).String())
	return n
}

func (d *Datasource) Run(ctx ExecutionContext, produce ProduceFn) error {
	f, err := d.open()
	if err != nil {
		return fmt.Errorf("couldn't open file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(bufio.NewReaderSize(f, 4096*1024))
	sc.Buffer(nil, 1024*1024)

	var p fastjson.Parser
	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(sc.Bytes()) == 0 {
			continue
		}
		v, err := p.ParseBytes(sc.Bytes())
		if err != nil {
			return fmt.Errorf("couldn't parse json on line %d: %w", line, err)
		}
		o, err := v.Object()
		if err != nil {
			return fmt.Errorf("expected JSON object on line %d, got '%s'", line, sc.Text())
		}

		changeKind := ChangeKindInsert
		if kind := o.Get(ChangeKindField); kind != nil {
			text, err := kind.StringBytes()
			if err != nil {
				return fmt.Errorf("invalid %s on line %d: %w", ChangeKindField, line, err)
			}
			if changeKind, err = ParseChangeKind(string(text)); err != nil {
				return fmt.Errorf("invalid %s on line %d: %w", ChangeKindField, line, err)
			}
		}

		values := make([]octosql.Value, len(d.fields))
		for i := range values {
			var ok bool
			values[i], ok = getOctoSQLValue(d.fields[i].Type, o.Get(d.fields[i].Name))
			if !ok {
				return fmt.Errorf("line %d: field '%s' isn't a valid %s", line, d.fields[i].Name, d.fields[i].Type)
			}
		}

		if err := produce(ProduceFromExecutionContext(ctx), NewRecord(values, changeKind)); err != nil {
			return fmt.Errorf("couldn't produce record: %w", err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("couldn't read %s: %w", d.path, err)
	}
	return nil
}

func getOctoSQLValue(t octosql.Type, value *fastjson.Value) (out octosql.Value, ok bool) {
	if value == nil || value.Type() == fastjson.TypeNull {
		return octosql.NewNull(), true
	}

	switch t.TypeID {
	case octosql.TypeIDInt:
		if value.Type() == fastjson.TypeNumber {
			v, _ := value.Float64()
			if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
				return octosql.NewInt(int(v)), true
			}
		}
	case octosql.TypeIDFloat:
		if value.Type() == fastjson.TypeNumber {
			v, _ := value.Float64()
			return octosql.NewFloat(v), true
		}
	case octosql.TypeIDBoolean:
		if value.Type() == fastjson.TypeTrue {
			return octosql.NewBoolean(true), true
		} else if value.Type() == fastjson.TypeFalse {
			return octosql.NewBoolean(false), true
		}
	case octosql.TypeIDString:
		if value.Type() == fastjson.TypeString {
			v, _ := value.StringBytes()
			return octosql.NewString(string(v)), true
		}
	case octosql.TypeIDTime:
		if value.Type() == fastjson.TypeString {
			v, _ := value.StringBytes()
			if parsed, err := time.Parse(time.RFC3339Nano, string(v)); err == nil {
				return octosql.NewTime(parsed), true
			}
		}
	case octosql.TypeIDDuration:
		if value.Type() == fastjson.TypeString {
			v, _ := value.StringBytes()
			if parsed, err := time.ParseDuration(string(v)); err == nil {
				return octosql.NewDuration(parsed), true
			}
		}
	case octosql.TypeIDList:
		if value.Type() == fastjson.TypeArray {
			arr, _ := value.Array()
			values := make([]octosql.Value, len(arr))

			outOk := true
			for i := range arr {
				curValue, curOk := getOctoSQLValue(*t.List.Element, arr[i])
				values[i] = curValue
				outOk = outOk && curOk
			}
			return octosql.NewList(values), outOk
		}
	case octosql.TypeIDStruct:
		if value.Type() == fastjson.TypeObject {
			obj, _ := value.Object()
			values := make([]octosql.Value, len(t.Struct.Fields))

			outOk := true
			for i, field := range t.Struct.Fields {
				curValue, curOk := getOctoSQLValue(field.Type, obj.Get(field.Name))
				values[i] = curValue
				outOk = outOk && curOk
			}
			return octosql.NewStruct(values), outOk
		}
	case octosql.TypeIDUnion:
		for _, alternative := range t.Union.Alternatives {
			v, ok := getOctoSQLValue(alternative, value)
			if ok {
				return v, true
			}
		}
	case octosql.TypeIDAny:
		return inferValue(value), true
	}

	return octosql.ZeroValue, false
}

// inferValue picks the octosql type from the json type. Integral numbers become ints.
func inferValue(value *fastjson.Value) octosql.Value {
	switch value.Type() {
	case fastjson.TypeNumber:
		if v, err := value.Int(); err == nil {
			return octosql.NewInt(v)
		}
		v, _ := value.Float64()
		return octosql.NewFloat(v)
	case fastjson.TypeTrue:
		return octosql.NewBoolean(true)
	case fastjson.TypeFalse:
		return octosql.NewBoolean(false)
	case fastjson.TypeString:
		v, _ := value.StringBytes()
		return octosql.NewString(string(v))
	case fastjson.TypeArray:
		arr, _ := value.Array()
		values := make([]octosql.Value, len(arr))
		for i := range arr {
			values[i] = inferValue(arr[i])
		}
		return octosql.NewList(values)
	case fastjson.TypeObject:
		obj, _ := value.Object()
		var values []octosql.Value
		obj.Visit(func(key []byte, v *fastjson.Value) {
			values = append(values, inferValue(v))
		})
		return octosql.NewStruct(values)
	}
	return octosql.NewNull()
}
