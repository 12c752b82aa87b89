package retrieval

import (
	"testing"

	"contractx/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hit(id string, d float64) types.ChunkHit {
	return types.ChunkHit{Chunk: types.Chunk{ChunkID: id}, Distance: d}
}

func TestRankChunks(t *testing.T) {
	in := []types.ChunkHit{hit("c", 0.3), hit("b", 0.1), hit("a", 0.1), hit("b", 0.1), hit("d", 0.9)}
	out := RankChunks(in, 3)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].Chunk.ChunkID)
	assert.Equal(t, "b", out[1].Chunk.ChunkID)
	assert.Equal(t, "c", out[2].Chunk.ChunkID)
	for i, rc := range out {
		assert.Equal(t, i+1, rc.Rank)
		if i > 0 {
			assert.LessOrEqual(t, out[i-1].Distance, rc.Distance)
		}
	}
	// 输入不被修改
	assert.Equal(t, "c", in[0].Chunk.ChunkID)
	assert.Empty(t, RankChunks(nil, 3))
}

func TestRankNodes(t *testing.T) {
	sub := &types.Subgraph{Nodes: []types.TraversedNode{
		{Node: types.GraphNode{ID: "x", Seq: 9}, Depth: 2},
		{Node: types.GraphNode{ID: "seed", Seq: 4}, Depth: 0},
		{Node: types.GraphNode{ID: "late", Seq: 7}, Depth: 1, Relation: types.EdgeHasEntity},
		{Node: types.GraphNode{ID: "early", Seq: 2}, Depth: 1, Relation: types.EdgeContractsWith},
	}}
	out := RankNodes(sub)
	ids := []string{}
	for _, n := range out {
		ids = append(ids, n.Node.ID)
	}
	assert.Equal(t, []string{"seed", "early", "late", "x"}, ids)
	assert.Equal(t, types.EdgeContractsWith, out[1].Relation)
	assert.Equal(t, 4, out[3].Rank)
	assert.Empty(t, RankNodes(nil))
}
