package graph

import (
	"testing"

	"contractx/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// doc ── buyer ── seller ── obligation ── page
func chainGraph() ([]types.GraphNode, []types.GraphEdge) {
	nodes := []types.GraphNode{
		{ID: "doc", Type: types.NodeDocument, Seq: 0},
		{ID: "page1", Type: types.NodePage, Seq: 1},
		{ID: "buyer", Type: types.NodeEntity, Seq: 2},
		{ID: "seller", Type: types.NodeEntity, Seq: 3},
		{ID: "ob", Type: types.NodeEntity, Seq: 4},
	}
	edges := []types.GraphEdge{
		{From: "doc", To: "page1", Type: types.EdgeHasPage},
		{From: "doc", To: "buyer", Type: types.EdgeHasEntity},
		{From: "buyer", To: "seller", Type: types.EdgeContractsWith},
		{From: "seller", To: "ob", Type: types.EdgeHasObligation},
		{From: "ob", To: "page1", Type: types.EdgeStatedOn},
	}
	return nodes, edges
}

func ids(sub *types.Subgraph) []string {
	out := make([]string, 0, len(sub.Nodes))
	for _, n := range sub.Nodes {
		out = append(out, n.Node.ID)
	}
	return out
}

func TestTraverseDepthBound(t *testing.T) {
	nodes, edges := chainGraph()

	sub := Traverse(nodes, edges, []string{"buyer"}, 1)
	assert.Equal(t, []string{"buyer", "doc", "seller"}, ids(sub))
	assert.Equal(t, 0, sub.Nodes[0].Depth)
	assert.Equal(t, types.EdgeHasEntity, sub.Nodes[1].Relation)
	assert.Equal(t, "buyer", sub.Nodes[2].Parent)

	sub = Traverse(nodes, edges, []string{"buyer"}, 2)
	assert.Equal(t, []string{"buyer", "doc", "seller", "page1", "ob"}, ids(sub))
	assert.Equal(t, 2, sub.Nodes[3].Depth)
	assert.Equal(t, types.EdgeHasPage, sub.Nodes[3].Relation)
}

func TestTraverseShortestDepthWins(t *testing.T) {
	nodes, edges := chainGraph()
	sub := Traverse(nodes, edges, []string{"seller", "doc"}, 1)
	depth := map[string]int{}
	for _, n := range sub.Nodes {
		depth[n.Node.ID] = n.Depth
	}
	assert.Equal(t, 0, depth["doc"])
	assert.Equal(t, 0, depth["seller"])
	assert.Equal(t, 1, depth["buyer"])
	assert.Equal(t, 1, depth["page1"])
	assert.Equal(t, 1, depth["ob"])
	// 种子按 Seq 排序
	assert.Equal(t, "doc", sub.Nodes[0].Node.ID)
}

func TestTraverseIgnoresUnknownSeedsAndZeroDepth(t *testing.T) {
	nodes, edges := chainGraph()
	sub := Traverse(nodes, edges, []string{"nope", "buyer", "buyer"}, 0)
	require.Len(t, sub.Nodes, 1)
	assert.Equal(t, "buyer", sub.Nodes[0].Node.ID)
	assert.Empty(t, sub.Edges)

	empty := Traverse(nodes, edges, nil, 2)
	assert.Empty(t, empty.Nodes)
}

func TestTraverseEdgesWithinReachedSet(t *testing.T) {
	nodes, edges := chainGraph()
	sub := Traverse(nodes, edges, []string{"buyer"}, 1)
	assert.ElementsMatch(t, []types.GraphEdge{
		{From: "doc", To: "buyer", Type: types.EdgeHasEntity},
		{From: "buyer", To: "seller", Type: types.EdgeContractsWith},
	}, sub.Edges)
}
