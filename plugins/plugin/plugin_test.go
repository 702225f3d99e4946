package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cube2222/octoudf/octosql"
	"github.com/cube2222/octoudf/serialization"
)

func TestBuiltins(t *testing.T) {
	tests := []struct {
		function string
		input    []octosql.Value
		want     []octosql.Value
		wantErr  bool
	}{
		{
			function: "identity",
			input:    []octosql.Value{octosql.NewString("a"), octosql.NewInt(1)},
			want:     []octosql.Value{octosql.NewString("a"), octosql.NewInt(1)},
		},
		{
			function: "upper",
			input:    []octosql.Value{octosql.NewString("kuba"), octosql.NewInt(1), octosql.NewList([]octosql.Value{octosql.NewString("x")})},
			want:     []octosql.Value{octosql.NewString("KUBA"), octosql.NewInt(1), octosql.NewList([]octosql.Value{octosql.NewString("X")})},
		},
		{
			function: "increment",
			input:    []octosql.Value{octosql.NewInt(41), octosql.NewFloat(0.5), octosql.NewNull()},
			want:     []octosql.Value{octosql.NewInt(42), octosql.NewFloat(1.5), octosql.NewNull()},
		},
		{
			function: "increment",
			input:    []octosql.Value{octosql.NewString("a")},
			wantErr:  true,
		},
		{
			function: "length",
			input:    []octosql.Value{octosql.NewString("zażółć"), octosql.NewList([]octosql.Value{octosql.NewInt(1), octosql.NewInt(2)}), octosql.NewNull()},
			want:     []octosql.Value{octosql.NewInt(6), octosql.NewInt(2), octosql.NewNull()},
		},
		{
			function: "length",
			input:    []octosql.Value{octosql.NewBoolean(true)},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.function, func(t *testing.T) {
			fn, err := Builtin(tt.function, serialization.FormatRowBinary)
			require.NoError(t, err)

			input, err := serialization.EncodeUntyped(serialization.FormatRowBinary, tt.input)
			require.NoError(t, err)
			output, err := fn(input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			got, err := serialization.DecodeUntyped(serialization.FormatRowBinary, output)
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.True(t, tt.want[i].Equal(got[i]), "expected %s, got %s", tt.want[i], got[i])
			}
		})
	}
}

func TestBuiltinArrow(t *testing.T) {
	fn, err := Builtin("increment", serialization.FormatArrow)
	require.NoError(t, err)

	input, err := serialization.EncodeUntyped(serialization.FormatArrow, []octosql.Value{octosql.NewInt(1)})
	require.NoError(t, err)
	output, err := fn(input)
	require.NoError(t, err)
	got, err := serialization.DecodeUntyped(serialization.FormatArrow, output)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Int)
}

func TestUnknownBuiltin(t *testing.T) {
	_, err := Builtin("lower", serialization.FormatRowBinary)
	assert.Error(t, err)
	assert.Equal(t, []string{"identity", "increment", "length", "upper"}, BuiltinNames())
}
