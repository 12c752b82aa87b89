// Package graph 图存储共用的有界广度优先遍历
package graph

import (
	"sort"

	"contractx/types"
)

type neighbour struct {
	id       string
	relation types.EdgeType
}

// Traverse 从种子出发做无向 BFS，最多 maxDepth 跳。
// 邻居按节点 Seq 访问，节点深度取最短路径，relation 是到达它的那条边。
// 不存在的种子直接忽略。
func Traverse(nodes []types.GraphNode, edges []types.GraphEdge, seedIDs []string, maxDepth int) *types.Subgraph {
	byID := make(map[string]types.GraphNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	adj := make(map[string][]neighbour, len(nodes))
	for _, e := range edges {
		if _, ok := byID[e.From]; !ok {
			continue
		}
		if _, ok := byID[e.To]; !ok {
			continue
		}
		adj[e.From] = append(adj[e.From], neighbour{id: e.To, relation: e.Type})
		adj[e.To] = append(adj[e.To], neighbour{id: e.From, relation: e.Type})
	}
	for id, ns := range adj {
		sort.SliceStable(ns, func(i, j int) bool {
			a, b := byID[ns[i].id], byID[ns[j].id]
			if a.Seq != b.Seq {
				return a.Seq < b.Seq
			}
			return a.ID < b.ID
		})
		adj[id] = ns
	}

	seeds := make([]types.GraphNode, 0, len(seedIDs))
	seen := map[string]bool{}
	for _, id := range seedIDs {
		if n, ok := byID[id]; ok && !seen[id] {
			seen[id] = true
			seeds = append(seeds, n)
		}
	}
	sort.Slice(seeds, func(i, j int) bool {
		if seeds[i].Seq != seeds[j].Seq {
			return seeds[i].Seq < seeds[j].Seq
		}
		return seeds[i].ID < seeds[j].ID
	})

	sub := &types.Subgraph{Nodes: []types.TraversedNode{}, Edges: []types.GraphEdge{}}
	queue := make([]types.TraversedNode, 0, len(seeds))
	for _, s := range seeds {
		tn := types.TraversedNode{Node: s, Depth: 0}
		sub.Nodes = append(sub.Nodes, tn)
		queue = append(queue, tn)
	}
	if maxDepth < 0 {
		maxDepth = 0
	}

	reached := make(map[string]bool, len(seen))
	for id := range seen {
		reached[id] = true
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.Depth >= maxDepth {
			continue
		}
		for _, nb := range adj[cur.Node.ID] {
			if reached[nb.id] {
				continue
			}
			reached[nb.id] = true
			tn := types.TraversedNode{
				Node:     byID[nb.id],
				Depth:    cur.Depth + 1,
				Relation: nb.relation,
				Parent:   cur.Node.ID,
			}
			sub.Nodes = append(sub.Nodes, tn)
			queue = append(queue, tn)
		}
	}

	for _, e := range edges {
		if reached[e.From] && reached[e.To] {
			sub.Edges = append(sub.Edges, e)
		}
	}
	return sub
}
