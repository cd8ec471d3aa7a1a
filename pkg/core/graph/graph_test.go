package graph

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildSample 构建示例图：a(3)->c(2), b(4)->d(1), c->e(3), b->e
func buildSample(t *testing.T) *Graph {
	t.Helper()
	g, err := NewBuilder("sample").
		AddNode("a", 3).AddNode("b", 4).AddNode("c", 2).AddNode("d", 1).AddNode("e", 3).
		AddEdge("a", "c", 2).
		AddEdge("b", "d", 3).
		AddEdge("c", "e", 4).
		AddEdge("b", "e", 2).
		Build()
	require.NoError(t, err)
	return g
}

func TestBuilder_DenseIDs(t *testing.T) {
	g := buildSample(t)
	require.Equal(t, 5, g.Len())
	for i, n := range g.Nodes() {
		assert.Equal(t, i, n.ID)
		assert.Same(t, n, g.Node(i))
	}
	assert.Nil(t, g.Node(5))

	c, ok := g.NodeByLabel("c")
	require.True(t, ok)
	assert.Equal(t, 2, c.ID)
	assert.Equal(t, 13, g.TotalCost())
}

func TestBuilder_Adjacency(t *testing.T) {
	g := buildSample(t)
	b, _ := g.NodeByLabel("b")
	e, _ := g.NodeByLabel("e")

	assert.Len(t, g.Outgoing(b), 2)
	assert.Len(t, g.Incoming(e), 2)
	assert.Equal(t, 3, g.MaxOutgoingCost(b))
	assert.Equal(t, 0, g.MaxOutgoingCost(e))

	cost, ok := g.EdgeCost(b, e)
	assert.True(t, ok)
	assert.Equal(t, 2, cost)
	assert.False(t, g.HasEdge(e, b))

	entries := g.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Label)
	assert.Equal(t, "b", entries[1].Label)
}

func TestBuilder_TopologicalOrder(t *testing.T) {
	g := buildSample(t)
	pos := make(map[int]int)
	for i, n := range g.TopologicalOrder() {
		pos[n.ID] = i
	}
	require.Len(t, pos, g.Len())
	for _, e := range g.Edges() {
		assert.Less(t, pos[e.Origin.ID], pos[e.Destination.ID], "%s->%s", e.Origin.Label, e.Destination.Label)
	}
}

func TestBuilder_MultipleVertices(t *testing.T) {
	g, err := NewBuilder("pair").AddNode("a", 1).AddNode("b", 2).AddEdge("a", "b", 1).Build()
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())
	cost, ok := g.EdgeCost(g.Node(0), g.Node(1))
	require.True(t, ok)
	assert.Equal(t, 1, cost)

	// 无边的多节点图同样要通过 go-dag 校验
	b := NewBuilder("wide")
	for i := 0; i < 30; i++ {
		b.AddNode(fmt.Sprintf("n%d", i), i)
	}
	g, err = b.Build()
	require.NoError(t, err)
	assert.Len(t, g.Entries(), 30)
}

func TestBuilder_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		build   func() *Builder
		wantErr error
	}{
		{"空图", func() *Builder { return NewBuilder("empty") }, ErrEmptyGraph},
		{"负代价节点", func() *Builder { return NewBuilder("g").AddNode("a", -1) }, ErrInvalidGraph},
		{"负代价边", func() *Builder {
			return NewBuilder("g").AddNode("a", 1).AddNode("b", 1).AddEdge("a", "b", -2)
		}, ErrInvalidGraph},
		{"重复节点", func() *Builder { return NewBuilder("g").AddNode("a", 1).AddNode("a", 2) }, ErrInvalidGraph},
		{"未知端点", func() *Builder { return NewBuilder("g").AddNode("a", 1).AddEdge("a", "x", 0) }, ErrInvalidGraph},
		{"重复边", func() *Builder {
			return NewBuilder("g").AddNode("a", 1).AddNode("b", 1).AddEdge("a", "b", 1).AddEdge("a", "b", 2)
		}, ErrInvalidGraph},
		{"自环", func() *Builder { return NewBuilder("g").AddNode("a", 1).AddEdge("a", "a", 0) }, ErrCycle},
		{"循环", func() *Builder {
			return NewBuilder("g").AddNode("a", 1).AddNode("b", 1).AddNode("c", 1).
				AddEdge("a", "b", 0).AddEdge("b", "c", 0).AddEdge("c", "a", 0)
		}, ErrCycle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := tt.build().Build()
			assert.Nil(t, g)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "错误类型不符: %v", err)
		})
	}
}

func TestGraph_Fingerprint(t *testing.T) {
	g1 := buildSample(t)
	g2 := buildSample(t)
	assert.Equal(t, g1.Fingerprint(), g2.Fingerprint())

	g3, err := NewBuilder("other").AddNode("a", 3).Build()
	require.NoError(t, err)
	assert.NotEqual(t, g1.Fingerprint(), g3.Fingerprint())

	// 名称不参与指纹
	g4, err := NewBuilder("renamed").AddNode("a", 3).Build()
	require.NoError(t, err)
	assert.Equal(t, g3.Fingerprint(), g4.Fingerprint())
}
