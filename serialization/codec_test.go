package serialization

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cube2222/octoudf/octosql"
	"github.com/cube2222/octoudf/physical"
)

func singleField(t octosql.Type) physical.Schema {
	return physical.NewSchema([]physical.SchemaField{{Name: "value", Type: t}})
}

func assertValuesEqual(t *testing.T, expected, actual []octosql.Value) {
	t.Helper()
	require.Len(t, actual, len(expected))
	for i := range expected {
		assert.True(t, expected[i].Equal(actual[i]), "field %d: expected %s, got %s", i, expected[i], actual[i])
	}
}

func scalarCases() []struct {
	typ    octosql.Type
	values []octosql.Value
} {
	now := time.Date(2021, 3, 14, 15, 9, 26, 535897932, time.UTC)
	return []struct {
		typ    octosql.Type
		values []octosql.Value
	}{
		{
			typ:    octosql.Int,
			values: []octosql.Value{octosql.NewInt(0), octosql.NewInt(-42), octosql.NewInt(math.MaxInt64), octosql.NewInt(math.MinInt64)},
		},
		{
			typ:    octosql.Float,
			values: []octosql.Value{octosql.NewFloat(0), octosql.NewFloat(math.Pi), octosql.NewFloat(-1e300), octosql.NewFloat(math.Inf(1))},
		},
		{
			typ:    octosql.Boolean,
			values: []octosql.Value{octosql.NewBoolean(true), octosql.NewBoolean(false)},
		},
		{
			typ:    octosql.String,
			values: []octosql.Value{octosql.NewString(""), octosql.NewString("Kuba"), octosql.NewString("zażółć gęślą jaźń")},
		},
		{
			typ:    octosql.Time,
			values: []octosql.Value{octosql.NewTime(now), octosql.NewTime(now.In(time.FixedZone("CET", 3600)))},
		},
		{
			typ:    octosql.Duration,
			values: []octosql.Value{octosql.NewDuration(0), octosql.NewDuration(time.Hour * 3), octosql.NewDuration(-time.Millisecond)},
		},
		{
			typ:    octosql.Null,
			values: []octosql.Value{octosql.NewNull()},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatRowBinary, FormatArrow} {
		for _, tt := range scalarCases() {
			for _, typ := range []octosql.Type{tt.typ, octosql.Nullable(tt.typ)} {
				values := append([]octosql.Value{}, tt.values...)
				if typ.TypeID == octosql.TypeIDUnion {
					values = append(values, octosql.NewNull())
				}
				t.Run(fmt.Sprintf("%s/%s", format, typ), func(t *testing.T) {
					codec, err := NewCodec(format, singleField(typ))
					require.NoError(t, err)

					for _, value := range values {
						data, err := codec.Encode([]octosql.Value{value})
						require.NoError(t, err)
						decoded, err := codec.Decode(data)
						require.NoError(t, err)
						assertValuesEqual(t, []octosql.Value{value}, decoded)
					}
				})
			}
		}
	}
}

func TestRowBinaryNestedRoundTrip(t *testing.T) {
	personType := octosql.NewStructType([]octosql.StructField{
		{Name: "name", Type: octosql.String},
		{Name: "tags", Type: octosql.NewListType(octosql.String)},
		{Name: "age", Type: octosql.Nullable(octosql.Int)},
	})
	schema := physical.NewSchema([]physical.SchemaField{
		{Name: "person", Type: personType},
		{Name: "scores", Type: octosql.NewListType(octosql.Nullable(octosql.Float))},
		{Name: "any", Type: octosql.Any},
	})
	codec := NewRowBinaryCodec(schema)

	rows := [][]octosql.Value{
		{
			octosql.NewStruct([]octosql.Value{
				octosql.NewString("red"),
				octosql.NewList([]octosql.Value{octosql.NewString("blue"), octosql.NewString("green")}),
				octosql.NewNull(),
			}),
			octosql.NewList([]octosql.Value{octosql.NewFloat(1.5), octosql.NewNull()}),
			octosql.NewDuration(time.Second),
		},
		{
			octosql.NewNull(),
			octosql.NewList([]octosql.Value{}),
			octosql.NewList([]octosql.Value{octosql.NewList([]octosql.Value{octosql.NewInt(1)})}),
		},
	}
	for _, row := range rows {
		data, err := codec.Encode(row)
		require.NoError(t, err)
		decoded, err := codec.Decode(data)
		require.NoError(t, err)
		assertValuesEqual(t, row, decoded)
	}
}

func TestEmptyRow(t *testing.T) {
	for _, format := range []Format{FormatRowBinary, FormatArrow} {
		t.Run(string(format), func(t *testing.T) {
			codec, err := NewCodec(format, physical.NewSchema(nil))
			require.NoError(t, err)
			data, err := codec.Encode(nil)
			require.NoError(t, err)
			assert.NotEmpty(t, data)
			decoded, err := codec.Decode(data)
			require.NoError(t, err)
			assert.Len(t, decoded, 0)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	schema := physical.NewSchema([]physical.SchemaField{
		{Name: "a", Type: octosql.Int},
		{Name: "b", Type: octosql.String},
	})

	for _, format := range []Format{FormatRowBinary, FormatArrow} {
		t.Run(string(format), func(t *testing.T) {
			codec, err := NewCodec(format, schema)
			require.NoError(t, err)

			for _, garbage := range [][]byte{nil, {0xff}, {0xff, 0xff, 0xff}, []byte("definitely not a row")} {
				_, err := codec.Decode(garbage)
				assert.ErrorIs(t, err, ErrDecode, "%v", garbage)
			}

			tooMany, err := EncodeUntyped(format, []octosql.Value{octosql.NewInt(1), octosql.NewString("x"), octosql.NewInt(3)})
			require.NoError(t, err)
			_, err = codec.Decode(tooMany)
			assert.ErrorIs(t, err, ErrArityMismatch)

			tooFew, err := EncodeUntyped(format, []octosql.Value{octosql.NewInt(1)})
			require.NoError(t, err)
			_, err = codec.Decode(tooFew)
			assert.ErrorIs(t, err, ErrArityMismatch)

			wrongType, err := EncodeUntyped(format, []octosql.Value{octosql.NewString("1"), octosql.NewString("x")})
			require.NoError(t, err)
			_, err = codec.Decode(wrongType)
			assert.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestEncodeRejectsValuesOutsideSchema(t *testing.T) {
	codec := NewRowBinaryCodec(singleField(octosql.Int))
	_, err := codec.Encode([]octosql.Value{octosql.NewString("x")})
	assert.Error(t, err)
	_, err = codec.Encode([]octosql.Value{octosql.NewInt(1), octosql.NewInt(2)})
	assert.Error(t, err)
}

func TestArrowRejectsNestedTypes(t *testing.T) {
	_, err := NewCodec(FormatArrow, singleField(octosql.NewListType(octosql.Int)))
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestUntypedRoundTrip(t *testing.T) {
	values := []octosql.Value{
		octosql.NewInt(5),
		octosql.NewString("a"),
		octosql.NewNull(),
		octosql.NewBoolean(true),
		octosql.NewTime(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	for _, format := range []Format{FormatRowBinary, FormatArrow} {
		data, err := EncodeUntyped(format, values)
		require.NoError(t, err)
		decoded, err := DecodeUntyped(format, data)
		require.NoError(t, err)
		assertValuesEqual(t, values, decoded)
	}
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatRowBinary, format)
	format, err = ParseFormat("arrow")
	require.NoError(t, err)
	assert.Equal(t, FormatArrow, format)
	_, err = ParseFormat("csv")
	assert.Error(t, err)
}
