package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"contractx/storage/graph"
	"contractx/types"
)

type subgraph struct {
	nodes []types.GraphNode
	edges []types.GraphEdge
}

type GraphStore struct {
	mu   sync.RWMutex
	docs map[string]*subgraph
}

func NewGraphStore() *GraphStore {
	return &GraphStore{docs: map[string]*subgraph{}}
}

// UpsertSubgraph 同 ID 节点覆盖，边按 (from,to,type) 去重
func (s *GraphStore) UpsertSubgraph(_ context.Context, documentID string, nodes []types.GraphNode, edges []types.GraphEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sg, ok := s.docs[documentID]
	if !ok {
		sg = &subgraph{}
		s.docs[documentID] = sg
	}
	pos := make(map[string]int, len(sg.nodes))
	for i, n := range sg.nodes {
		pos[n.ID] = i
	}
	for _, n := range nodes {
		n.DocumentID = documentID
		if i, ok := pos[n.ID]; ok {
			sg.nodes[i] = n
			continue
		}
		pos[n.ID] = len(sg.nodes)
		sg.nodes = append(sg.nodes, n)
	}
	type edgeKey struct {
		from, to string
		typ      types.EdgeType
	}
	seen := make(map[edgeKey]bool, len(sg.edges))
	for _, e := range sg.edges {
		seen[edgeKey{e.From, e.To, e.Type}] = true
	}
	for _, e := range edges {
		k := edgeKey{e.From, e.To, e.Type}
		if seen[k] {
			continue
		}
		seen[k] = true
		e.DocumentID = documentID
		sg.edges = append(sg.edges, e)
	}
	return nil
}

func (s *GraphStore) EntityNodes(_ context.Context, documentID string) ([]types.GraphNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sg, ok := s.docs[documentID]
	if !ok || len(sg.nodes) == 0 {
		return nil, fmt.Errorf("%w: no graph for document %s", types.ErrNotFound, documentID)
	}
	var out []types.GraphNode
	for _, n := range sg.nodes {
		if n.Type == types.NodeEntity {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *GraphStore) Traverse(ctx context.Context, documentID string, seedNodeIDs []string, maxDepth int) (*types.Subgraph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sg, ok := s.docs[documentID]
	if !ok || len(sg.nodes) == 0 {
		return nil, fmt.Errorf("%w: no graph for document %s", types.ErrNotFound, documentID)
	}
	return graph.Traverse(sg.nodes, sg.edges, seedNodeIDs, maxDepth), nil
}

func (s *GraphStore) Delete(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, documentID)
	return nil
}

// Count 文档当前的节点数和边数
func (s *GraphStore) Count(documentID string) (nodes, edges int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sg, ok := s.docs[documentID]; ok {
		return len(sg.nodes), len(sg.edges)
	}
	return 0, 0
}

func (s *GraphStore) CountGraph(_ context.Context, documentID string) (nodes, edges int, err error) {
	nodes, edges = s.Count(documentID)
	return nodes, edges, nil
}
