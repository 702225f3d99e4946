package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cube2222/octoudf/execution/udf"
	"github.com/cube2222/octoudf/octosql"
	"github.com/cube2222/octoudf/physical"
	"github.com/cube2222/octoudf/serialization"
)

func TestReadConfig(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    *Config
		wantErr bool
	}{
		{
			name: "simple parse",
			path: "fixtures/example.yaml",
			want: &Config{
				Input: []FieldConfig{
					{Name: "name", Type: "String"},
					{Name: "age", Type: "Int?"},
					{Name: "tags", Type: "[String]"},
				},
				Output: []FieldConfig{
					{Name: "name", Type: "String"},
					{Name: "tags", Type: "[String]"},
					{Name: "age_next_year", Type: "Int?"},
				},
				UDF: UDFConfig{
					InputOffsets:    []int{1},
					ForwardedFields: []int{0, 2},
					OutputMapping:   []string{"forwarded:0", "forwarded:1", "udf:0"},
					Format:          "arrow",
				},
				Runner: RunnerConfig{
					Type: "grpc",
					Options: map[string]string{
						"executable":    "octoudf-runtime",
						"args":          "--function increment --format arrow",
						"max_in_flight": "64",
					},
				},
			},
		},
		{
			name: "defaults",
			path: "fixtures/minimal.yaml",
			want: &Config{
				Input:  []FieldConfig{{Name: "x", Type: "Int"}},
				Output: []FieldConfig{{Name: "x", Type: "Int"}, {Name: "y", Type: "Int"}},
				UDF: UDFConfig{
					InputOffsets:    []int{0},
					ForwardedFields: []int{0},
				},
				Runner: RunnerConfig{
					Type:    "passthrough",
					Options: map[string]string{},
				},
			},
		},
		{
			name:    "missing file",
			path:    "fixtures/nonexistent.yaml",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Read(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOperatorConfig(t *testing.T) {
	config, err := Read("fixtures/example.yaml")
	require.NoError(t, err)

	got, err := config.OperatorConfig()
	require.NoError(t, err)

	assert.Equal(t, physical.NewSchema([]physical.SchemaField{
		{Name: "name", Type: octosql.String},
		{Name: "age", Type: octosql.Nullable(octosql.Int)},
		{Name: "tags", Type: octosql.NewListType(octosql.String)},
	}), got.InputSchema)
	assert.Equal(t, serialization.FormatArrow, got.Format)
	assert.Equal(t, []udf.OutputField{
		{Source: udf.OutputSourceForwarded, Index: 0},
		{Source: udf.OutputSourceForwarded, Index: 1},
		{Source: udf.OutputSourceUDF, Index: 0},
	}, got.OutputMapping)
	assert.Equal(t, "64", got.RunnerOptions["max_in_flight"])

	_, err = udf.NewScalarFunctionOperator(got, func(map[string]string, udf.ResultReceiver) (udf.FunctionRunner, error) {
		return nil, nil
	})
	assert.NoError(t, err)
}

func TestOperatorConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "unknown type",
			yaml: "input: [{name: x, type: Integer}]",
		},
		{
			name: "unnamed field",
			yaml: "output: [{type: Int}]",
		},
		{
			name: "unknown format",
			yaml: "udf: {format: csv}",
		},
		{
			name: "bad mapping",
			yaml: "udf: {outputMapping: [\"input:0\"]}",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			_, err = config.OperatorConfig()
			assert.Error(t, err)
		})
	}
}

func TestParseInvalidYaml(t *testing.T) {
	_, err := Parse([]byte("input: {"))
	assert.Error(t, err)
}
