// Package storage 定义三类外部存储的契约，具体实现在子包里
package storage

import (
	"context"
	"time"

	"contractx/types"
)

// DocumentStore 关系库，保存定稿后的 Document
type DocumentStore interface {
	// Save 同一 document_id 只能保存一次，重复返回 ErrConflict
	Save(ctx context.Context, doc *types.Document) error
	// Load 未知文档返回 ErrNotFound
	Load(ctx context.Context, documentID string) (*types.Document, error)
	List(ctx context.Context, filter DocumentFilter) ([]DocumentSummary, error)
	Delete(ctx context.Context, documentID string) error
}

// VectorStore 文档级隔离的向量索引；距离越小越相似
type VectorStore interface {
	Upsert(ctx context.Context, documentID string, chunks []types.Chunk) error
	// Query 文档没有任何 chunk 时返回 ErrNotFound；同距离按 chunk_id 升序。
	// 外部后端会多取 Overfetch(k) 条，由调用方去重后截断到 k
	Query(ctx context.Context, documentID string, embedding []float64, k int) ([]types.ChunkHit, error)
	Delete(ctx context.Context, documentID string) error
	// CountChunks 未索引的文档返回 0
	CountChunks(ctx context.Context, documentID string) (int, error)
}

// GraphStore 每个文档一张以 Document 节点为根的子图
type GraphStore interface {
	UpsertSubgraph(ctx context.Context, documentID string, nodes []types.GraphNode, edges []types.GraphEdge) error
	// EntityNodes 文档没有子图时返回 ErrNotFound
	EntityNodes(ctx context.Context, documentID string) ([]types.GraphNode, error)
	Traverse(ctx context.Context, documentID string, seedNodeIDs []string, maxDepth int) (*types.Subgraph, error)
	Delete(ctx context.Context, documentID string) error
	CountGraph(ctx context.Context, documentID string) (nodes, edges int, err error)
}

// DocumentFilter 列表查询条件，Party 同时匹配买方和卖方
type DocumentFilter struct {
	Party        string
	DocumentType string
	Limit        int
}

type DocumentSummary struct {
	DocumentID     string    `json:"document_id"`
	DocumentType   string    `json:"document_type"`
	BuyerName      string    `json:"buyer_name"`
	SellerName     string    `json:"seller_name"`
	PageCount      int       `json:"page_count"`
	OverallSummary string    `json:"overall_summary"`
	CreatedAt      time.Time `json:"created_at"`
}

// DefaultListLimit 列表默认返回条数
const DefaultListLimit = 20

// Overfetch 外部向量库多取的条数，去重后仍能凑够 k 条
func Overfetch(k int) int {
	if k <= 0 {
		return 0
	}
	return max(2*k, k+8)
}
