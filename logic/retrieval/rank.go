package retrieval

import (
	"sort"

	"contractx/types"
)

// RankChunks 距离升序，同距离按 chunk_id 升序；重复 chunk 只保留最近的一条，截断到 k
func RankChunks(hits []types.ChunkHit, k int) []types.RankedChunk {
	sorted := make([]types.ChunkHit, len(hits))
	copy(sorted, hits)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Distance != sorted[j].Distance {
			return sorted[i].Distance < sorted[j].Distance
		}
		return sorted[i].Chunk.ChunkID < sorted[j].Chunk.ChunkID
	})

	out := make([]types.RankedChunk, 0, min(len(sorted), max(k, 0)))
	seen := map[string]bool{}
	for _, h := range sorted {
		if len(out) == k {
			break
		}
		if seen[h.Chunk.ChunkID] {
			continue
		}
		seen[h.Chunk.ChunkID] = true
		out = append(out, types.RankedChunk{Rank: len(out) + 1, Chunk: h.Chunk, Distance: h.Distance})
	}
	return out
}

// RankNodes 深度升序，同深度按节点创建顺序
func RankNodes(sub *types.Subgraph) []types.RankedNode {
	if sub == nil {
		return []types.RankedNode{}
	}
	nodes := make([]types.TraversedNode, len(sub.Nodes))
	copy(nodes, sub.Nodes)
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.Depth != b.Depth {
			return a.Depth < b.Depth
		}
		if a.Node.Seq != b.Node.Seq {
			return a.Node.Seq < b.Node.Seq
		}
		return a.Node.ID < b.Node.ID
	})

	out := make([]types.RankedNode, 0, len(nodes))
	seen := map[string]bool{}
	for _, n := range nodes {
		if seen[n.Node.ID] {
			continue
		}
		seen[n.Node.ID] = true
		out = append(out, types.RankedNode{Rank: len(out) + 1, Node: n.Node, Depth: n.Depth, Relation: n.Relation})
	}
	return out
}
