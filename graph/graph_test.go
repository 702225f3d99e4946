package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShow(t *testing.T) {
	source := NewNode("json")
	source.AddField("path", "people.json")
	source.AddField("schema", "(name: String, age: Int | NULL)")

	root := NewNode("scalar function")
	root.AddField("format", "row-binary")
	root.AddChild("source", source)

	g, err := Show(root)
	require.NoError(t, err)
	out := g.String()

	assert.True(t, strings.HasPrefix(out, "digraph dataflow"), out)
	assert.Contains(t, out, "rankdir=LR")
	assert.Contains(t, out, "scalar_function_0")
	assert.Contains(t, out, "json_0")
	assert.Contains(t, out, `schema: (name: String, age: Int \| NULL)`)
	assert.Contains(t, out, "->json_0")
}

func TestGetID(t *testing.T) {
	gb := &graphBuilder{nameCounters: map[string]int{}}
	assert.Equal(t, "in_memory_0", gb.getID("in-memory"))
	assert.Equal(t, "in_memory_1", gb.getID("in-memory"))
	assert.Equal(t, "a_b_0", gb.getID("a b"))
}
