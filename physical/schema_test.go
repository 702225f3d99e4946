package physical

import (
	"testing"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cube2222/octoudf/octosql"
)

func testSchema() Schema {
	return NewSchema([]SchemaField{
		{Name: "f0", Type: octosql.String},
		{Name: "f1", Type: octosql.Nullable(octosql.Int)},
		{Name: "f2", Type: octosql.String},
	})
}

func TestSchemaProject(t *testing.T) {
	projected, err := testSchema().Project([]int{2, 0})
	require.NoError(t, err)
	assert.Equal(t, []SchemaField{{Name: "f2", Type: octosql.String}, {Name: "f0", Type: octosql.String}}, projected.Fields)

	empty, err := testSchema().Project(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())

	_, err = testSchema().Project([]int{3})
	assert.Error(t, err)
	_, err = testSchema().Project([]int{-1})
	assert.Error(t, err)
}

func TestSchemaCheckValues(t *testing.T) {
	s := testSchema()
	assert.NoError(t, s.CheckValues([]octosql.Value{octosql.NewString("a"), octosql.NewInt(10), octosql.NewString("b")}))
	assert.NoError(t, s.CheckValues([]octosql.Value{octosql.NewString("a"), octosql.NewNull(), octosql.NewString("b")}))
	assert.Error(t, s.CheckValues([]octosql.Value{octosql.NewString("a"), octosql.NewInt(10)}))
	assert.Error(t, s.CheckValues([]octosql.Value{octosql.NewInt(1), octosql.NewInt(10), octosql.NewString("b")}))
}

func TestOctoSQLToArrowSchema(t *testing.T) {
	schema, err := OctoSQLToArrowSchema(testSchema())
	require.NoError(t, err)
	require.Len(t, schema.Fields(), 3)
	assert.False(t, schema.Field(0).Nullable)
	assert.True(t, schema.Field(1).Nullable)
	assert.Equal(t, arrow.INT64, schema.Field(1).Type.ID())

	_, err = OctoSQLToArrowSchema(NewSchema([]SchemaField{{Name: "l", Type: octosql.NewListType(octosql.Int)}}))
	assert.ErrorIs(t, err, ErrUnsupportedArrowType)

	for _, typ := range []octosql.Type{octosql.Int, octosql.Float, octosql.Boolean, octosql.String, octosql.Time, octosql.Duration, octosql.Null} {
		arrowType, err := OctoSQLToArrowType(typ)
		require.NoError(t, err)
		back, err := ArrowToOctoSQLType(arrowType)
		require.NoError(t, err)
		assert.Equal(t, typ, back)
	}
}
