// Package memory 进程内存储实现，用于本地开发和测试
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"contractx/types"

	"github.com/cloudwego/eino/components/embedding"
)

type vectorEntry struct {
	chunk  types.Chunk
	vector []float64
}

// VectorStore 暴力 L2 检索
type VectorStore struct {
	embedder embedding.Embedder
	mu       sync.RWMutex
	docs     map[string]map[string]vectorEntry // document_id -> chunk_id -> entry
}

func NewVectorStore(embedder embedding.Embedder) *VectorStore {
	return &VectorStore{embedder: embedder, docs: map[string]map[string]vectorEntry{}}
}

func (s *VectorStore) Upsert(ctx context.Context, documentID string, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.docs[documentID]
	if !ok {
		entries = map[string]vectorEntry{}
		s.docs[documentID] = entries
	}
	for i, c := range chunks {
		entries[c.ChunkID] = vectorEntry{chunk: c, vector: vectors[i]}
	}
	return nil
}

func (s *VectorStore) Query(ctx context.Context, documentID string, embedding []float64, k int) ([]types.ChunkHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.docs[documentID]
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no chunks indexed for document %s", types.ErrNotFound, documentID)
	}
	hits := make([]types.ChunkHit, 0, len(entries))
	for _, e := range entries {
		hits = append(hits, types.ChunkHit{Chunk: e.chunk, Distance: l2(embedding, e.vector)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Chunk.ChunkID < hits[j].Chunk.ChunkID
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *VectorStore) Delete(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, documentID)
	return nil
}

// Count 文档当前的 chunk 数
func (s *VectorStore) Count(documentID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs[documentID])
}

func (s *VectorStore) CountChunks(_ context.Context, documentID string) (int, error) {
	return s.Count(documentID), nil
}

// l2 维度不一致时按较短的一方计算，多出的维度按 0 补齐
func l2(a, b []float64) float64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		var x, y float64
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		sum += (x - y) * (x - y)
	}
	return math.Sqrt(sum)
}
