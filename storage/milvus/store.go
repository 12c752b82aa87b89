package milvus

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"contractx/logic/ingestion/transform"
	"contractx/storage"
	"contractx/types"

	"github.com/cloudwego/eino/components/indexer"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// Store 基于 Milvus 的 VectorStore，写入走 eino 索引器，查询和删除直接用 client
type Store struct {
	cli        client.Client
	indexer    indexer.Indexer
	collection string
	ef         int
}

func NewStore(cli client.Client, idx indexer.Indexer, collection string) *Store {
	return &Store{cli: cli, indexer: idx, collection: collection, ef: 64}
}

// Upsert Milvus 主键不去重，先删掉文档旧的 chunk 再写
func (s *Store) Upsert(ctx context.Context, documentID string, chunks []types.Chunk) error {
	if err := s.Delete(ctx, documentID); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	if _, err := s.indexer.Store(ctx, transform.ToSchemaDocuments(chunks)); err != nil {
		return fmt.Errorf("milvus store: %w", err)
	}
	if err := s.cli.Flush(ctx, s.collection, false); err != nil {
		return fmt.Errorf("milvus flush: %w", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, documentID string, embedding []float64, k int) ([]types.ChunkHit, error) {
	vec32 := make([]float32, len(embedding))
	for i, v := range embedding {
		vec32[i] = float32(v)
	}
	limit := storage.Overfetch(k)
	sp, err := entity.NewIndexHNSWSearchParam(maxInt(s.ef, limit))
	if err != nil {
		return nil, err
	}
	results, err := s.cli.Search(ctx, s.collection, nil, DocExpr(documentID), outputFields,
		[]entity.Vector{entity.FloatVector(vec32)}, fieldVector, entity.L2, limit, sp)
	if err != nil {
		return nil, fmt.Errorf("milvus search: %w", err)
	}
	if len(results) == 0 || results[0].ResultCount == 0 {
		return nil, fmt.Errorf("%w: no chunks indexed for document %s", types.ErrNotFound, documentID)
	}
	r := results[0]
	return parseHits(r.IDs, r.Scores, r.Fields)
}

func (s *Store) Delete(ctx context.Context, documentID string) error {
	if err := s.cli.Delete(ctx, s.collection, "", DocExpr(documentID)); err != nil {
		return fmt.Errorf("milvus delete: %w", err)
	}
	return nil
}

// CountChunks 用 count(*) 统计，不拉取向量
func (s *Store) CountChunks(ctx context.Context, documentID string) (int, error) {
	rs, err := s.cli.Query(ctx, s.collection, nil, DocExpr(documentID), []string{countField})
	if err != nil {
		return 0, fmt.Errorf("milvus count: %w", err)
	}
	col := rs.GetColumn(countField)
	if col == nil || col.Len() == 0 {
		return 0, nil
	}
	n, err := col.GetAsInt64(0)
	if err != nil {
		return 0, fmt.Errorf("milvus count: %w", err)
	}
	return int(n), nil
}

// DocExpr 按 doc_id 过滤的表达式
func DocExpr(documentID string) string {
	escaped := strings.ReplaceAll(documentID, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return fmt.Sprintf(`%s == "%s"`, fieldDocID, escaped)
}

// parseHits L2 分数即距离；同距离按 chunk_id 升序
func parseHits(ids entity.Column, scores []float32, fields []entity.Column) ([]types.ChunkHit, error) {
	if ids == nil {
		return nil, nil
	}
	hits := make([]types.ChunkHit, ids.Len())
	for i := 0; i < ids.Len(); i++ {
		id, err := ids.GetAsString(i)
		if err != nil {
			return nil, fmt.Errorf("failed to get id: %w", err)
		}
		hits[i].Chunk.ChunkID = id
		if i < len(scores) {
			hits[i].Distance = float64(scores[i])
		}
	}
	for _, field := range fields {
		for i := range hits {
			c := &hits[i].Chunk
			switch field.Name() {
			case fieldDocID:
				c.DocumentID, _ = field.GetAsString(i)
			case fieldContent:
				c.Content, _ = field.GetAsString(i)
			case fieldChunkType:
				t, _ := field.GetAsString(i)
				c.ChunkType = types.ChunkType(t)
			case fieldSourceRef:
				c.SourceRef, _ = field.GetAsString(i)
			case fieldPageNumber:
				if p, err := field.GetAsInt64(i); err == nil && p >= 0 {
					page := int(p)
					c.PageNumber = &page
				}
			}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Chunk.ChunkID < hits[j].Chunk.ChunkID
	})
	return hits, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
