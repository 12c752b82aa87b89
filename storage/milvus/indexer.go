package milvus

import (
	"context"
	"fmt"
	"time"

	"contractx/logic/ingestion/transform"

	"github.com/cloudwego/eino-ext/components/indexer/milvus"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/schema"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/sirupsen/logrus"
)

// 集合字段
const (
	fieldID         = "id"
	fieldDocID      = "doc_id"
	fieldVector     = "vector"
	fieldContent    = "content"
	fieldChunkType  = "chunk_type"
	fieldPageNumber = "page_number"
	fieldSourceRef  = "source_ref"

	countField = "count(*)"
)

var outputFields = []string{fieldDocID, fieldContent, fieldChunkType, fieldPageNumber, fieldSourceRef}

func Connect(ctx context.Context, milvusAddr string) (client.Client, error) {
	logrus.WithField("addr", milvusAddr).Info("[Milvus] 正在连接")
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	cli, err := client.NewClient(connectCtx, client.Config{
		Address: milvusAddr,
	})
	if err != nil {
		return nil, fmt.Errorf("连接milvus失败: %w", err)
	}
	return cli, nil
}

func chunkFields(dim int) []*entity.Field {
	return []*entity.Field{
		{
			Name:       fieldID, // 主键，chunk_id
			DataType:   entity.FieldTypeVarChar,
			PrimaryKey: true,
			AutoID:     false,
			TypeParams: map[string]string{"max_length": "64"},
		},
		{
			Name:       fieldDocID,
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": "64"},
		},
		{
			Name:       fieldVector,
			DataType:   entity.FieldTypeFloatVector,
			TypeParams: map[string]string{"dim": fmt.Sprintf("%d", dim)},
		},
		{
			Name:       fieldContent,
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": "65535"},
		},
		{
			Name:       fieldChunkType,
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": "32"},
		},
		{
			Name:     fieldPageNumber, // 文档级 chunk 存 -1
			DataType: entity.FieldTypeInt64,
		},
		{
			Name:       fieldSourceRef,
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": "255"},
		},
	}
}

// convertDocuments eino 文档转 Milvus 行，向量 float64 -> float32
func convertDocuments(_ context.Context, docs []*schema.Document, vectors [][]float64) ([]interface{}, error) {
	if len(docs) != len(vectors) {
		return nil, fmt.Errorf("got %d vectors for %d documents", len(vectors), len(docs))
	}
	rows := make([]interface{}, len(docs))
	for i, doc := range docs {
		vec32 := make([]float32, len(vectors[i]))
		for j, v := range vectors[i] {
			vec32[j] = float32(v)
		}
		c := transform.FromSchemaDocument(doc)
		page := int64(-1)
		if c.PageNumber != nil {
			page = int64(*c.PageNumber)
		}
		rows[i] = map[string]interface{}{
			fieldID:         doc.ID,
			fieldDocID:      c.DocumentID,
			fieldVector:     vec32,
			fieldContent:    doc.Content,
			fieldChunkType:  string(c.ChunkType),
			fieldPageNumber: page,
			fieldSourceRef:  c.SourceRef,
		}
	}
	return rows, nil
}

// NewChunkIndexer 建集合、建 HNSW 索引并加载
func NewChunkIndexer(ctx context.Context, cli client.Client, embedder embedding.Embedder, collectionName string) (indexer.Indexer, error) {
	dim, err := transform.DetectDimension(ctx, embedder)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"collection": collectionName, "dim": dim}).Info("[Milvus] 初始化集合")

	idx, err := milvus.NewIndexer(ctx, &milvus.IndexerConfig{
		Client:            cli,
		Collection:        collectionName,
		Embedding:         embedder,
		Fields:            chunkFields(dim),
		DocumentConverter: convertDocuments,
		MetricType:        milvus.L2,
	})
	if err != nil {
		return nil, fmt.Errorf("[NewIndexer] 建表失败: %w", err)
	}

	// 先 Release 才能操作索引
	_ = cli.ReleaseCollection(ctx, collectionName)
	if err := cli.DropIndex(ctx, collectionName, fieldVector); err != nil {
		logrus.WithError(err).Debug("[Milvus] DropIndex 提示")
	}
	hnswIdx, err := entity.NewIndexHNSW(entity.L2, 16, 200)
	if err != nil {
		return nil, err
	}
	if err := cli.CreateIndex(ctx, collectionName, fieldVector, hnswIdx, false); err != nil {
		return nil, fmt.Errorf("创建 HNSW 向量索引失败: %w", err)
	}
	if err := cli.CreateIndex(ctx, collectionName, fieldDocID, entity.NewScalarIndex(), false); err != nil {
		return nil, fmt.Errorf("创建 doc_id 索引失败: %w", err)
	}
	if err := cli.LoadCollection(ctx, collectionName, false); err != nil {
		return nil, fmt.Errorf("Load Collection 失败: %w", err)
	}
	return idx, nil
}
