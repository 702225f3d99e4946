package formats

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"

	"github.com/cube2222/octoudf/execution"
	"github.com/cube2222/octoudf/octosql"
	"github.com/cube2222/octoudf/physical"
)

var testSchema = physical.NewSchema([]physical.SchemaField{
	{Name: "name", Type: octosql.String},
	{Name: "age", Type: octosql.Nullable(octosql.Int)},
	{Name: "tags", Type: octosql.NewListType(octosql.String)},
})

var testRecords = []execution.Record{
	execution.NewRecord([]octosql.Value{
		octosql.NewString("kuba"),
		octosql.NewInt(23),
		octosql.NewList([]octosql.Value{octosql.NewString("a"), octosql.NewString("b")}),
	}, execution.ChangeKindInsert),
	execution.NewRecord([]octosql.Value{
		octosql.NewString("kuba"),
		octosql.NewNull(),
		octosql.NewList([]octosql.Value{}),
	}, execution.ChangeKindUpdateBefore),
}

func render(t *testing.T, format string) []byte {
	var buf bytes.Buffer
	formatter, err := NewFormatter(format, &buf)
	require.NoError(t, err)
	formatter.SetSchema(testSchema)
	for _, record := range testRecords {
		require.NoError(t, formatter.Write(record))
	}
	require.NoError(t, formatter.Close())
	return buf.Bytes()
}

func TestFormatters(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, format := range []string{"table", "json"} {
		t.Run(format, func(t *testing.T) {
			g.Assert(t, format, render(t, format))
		})
	}
}

func TestUnknownFormat(t *testing.T) {
	_, err := NewFormatter("csv", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestJSONArityMismatch(t *testing.T) {
	formatter := NewJSONFormatter(&bytes.Buffer{})
	formatter.SetSchema(testSchema)
	err := formatter.Write(execution.NewRecord([]octosql.Value{octosql.NewInt(1)}, execution.ChangeKindInsert))
	assert.Error(t, err)
}

func TestValueToJson(t *testing.T) {
	tests := []struct {
		name  string
		typ   octosql.Type
		value octosql.Value
		want  string
	}{
		{
			name:  "union picks matching alternative",
			typ:   octosql.TypeSum(octosql.Int, octosql.String),
			value: octosql.NewString("x"),
			want:  `"x"`,
		},
		{
			name:  "any",
			typ:   octosql.Any,
			value: octosql.NewFloat(1.5),
			want:  `1.5`,
		},
		{
			name: "struct",
			typ: octosql.NewStructType([]octosql.StructField{
				{Name: "a", Type: octosql.Int},
				{Name: "b", Type: octosql.Boolean},
			}),
			value: octosql.NewStruct([]octosql.Value{octosql.NewInt(1), octosql.NewBoolean(false)}),
			want:  `{"a":1,"b":false}`,
		},
		{
			name:  "untyped struct",
			typ:   octosql.Any,
			value: octosql.NewStruct([]octosql.Value{octosql.NewInt(1)}),
			want:  `{"_0":1}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var arena fastjson.Arena
			assert.Equal(t, tt.want, ValueToJson(&arena, tt.typ, tt.value).String())
		})
	}
}
