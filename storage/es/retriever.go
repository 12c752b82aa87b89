package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"

	"contractx/storage"
	"contractx/types"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string   `json:"_id"`
			Score  float64  `json:"_score"`
			Source chunkDoc `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// buildKNNQuery 文档内 kNN，多取 Overfetch(k) 条，候选数至少 100
func buildKNNQuery(documentID string, embedding []float64, k int) map[string]interface{} {
	k = storage.Overfetch(k)
	candidates := k * 10
	if candidates < 100 {
		candidates = 100
	}
	return map[string]interface{}{
		"size": k,
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   embedding,
			"k":              k,
			"num_candidates": candidates,
			"filter": map[string]interface{}{
				"term": map[string]interface{}{"doc_id": documentID},
			},
		},
		"_source": []string{"chunk_id", "doc_id", "content", "chunk_type", "page_number", "source_ref"},
	}
}

func (s *Store) Query(ctx context.Context, documentID string, embedding []float64, k int) ([]types.ChunkHit, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildKNNQuery(documentID, embedding, k)); err != nil {
		return nil, fmt.Errorf("error encoding query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  &buf,
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("error getting response: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("error response: %s", res.String())
	}

	hits, err := parseSearchResponse(res.Body)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, fmt.Errorf("%w: no chunks indexed for document %s", types.ErrNotFound, documentID)
	}
	return hits, nil
}

// CountChunks 走 _count 接口，索引里没有该文档时为 0
func (s *Store) CountChunks(ctx context.Context, documentID string) (int, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildDocQuery(documentID)); err != nil {
		return 0, fmt.Errorf("error encoding query: %w", err)
	}
	req := esapi.CountRequest{
		Index: []string{s.index},
		Body:  &buf,
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return 0, fmt.Errorf("error getting response: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("error response: %s", res.String())
	}
	var cr struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&cr); err != nil {
		return 0, fmt.Errorf("error parsing response body: %w", err)
	}
	return cr.Count, nil
}

// parseSearchResponse l2_norm 的分数是 1/(1+d²)，换回 L2 距离
func parseSearchResponse(body io.Reader) ([]types.ChunkHit, error) {
	var sr searchResponse
	if err := json.NewDecoder(body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("error parsing response body: %w", err)
	}
	hits := make([]types.ChunkHit, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		src := h.Source
		c := types.Chunk{
			ChunkID:    src.ChunkID,
			DocumentID: src.DocID,
			Content:    src.Content,
			ChunkType:  types.ChunkType(src.ChunkType),
			SourceRef:  src.SourceRef,
		}
		if c.ChunkID == "" {
			c.ChunkID = h.ID
		}
		if src.PageNumber >= 0 {
			page := src.PageNumber
			c.PageNumber = &page
		}
		hits = append(hits, types.ChunkHit{Chunk: c, Distance: scoreToDistance(h.Score)})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Chunk.ChunkID < hits[j].Chunk.ChunkID
	})
	return hits, nil
}

// scoreToDistance 非正分数给最大有限距离，Inf 无法写进 JSON
func scoreToDistance(score float64) float64 {
	if score <= 0 {
		return math.MaxFloat64
	}
	d2 := 1/score - 1
	if d2 < 0 {
		return 0
	}
	return math.Sqrt(d2)
}
