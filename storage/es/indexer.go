package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"contractx/types"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/sirupsen/logrus"
)

// Store 基于 ES dense_vector 的 VectorStore，相似度用 l2_norm 与 Milvus 保持同一度量
type Store struct {
	client   *elasticsearch.Client
	index    string
	embedder embedding.Embedder
}

// chunkDoc 索引里的一条 chunk
type chunkDoc struct {
	ChunkID    string    `json:"chunk_id"`
	DocID      string    `json:"doc_id"`
	Content    string    `json:"content"`
	ChunkType  string    `json:"chunk_type"`
	PageNumber int       `json:"page_number"`
	SourceRef  string    `json:"source_ref"`
	Vector     []float64 `json:"vector,omitempty"`
}

// NewStore 初始化 ES 客户端并确保索引存在，向量维度由 embedder 给出
func NewStore(ctx context.Context, addresses []string, indexName string, embedder embedding.Embedder, dim int) (*Store, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating the client: %w", err)
	}
	s := &Store{client: es, index: indexName, embedder: embedder}
	if err := s.initMapping(ctx, dim); err != nil {
		return nil, err
	}
	return s, nil
}

func mapping(dim int) string {
	return fmt.Sprintf(`{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0
  },
  "mappings": {
    "properties": {
      "chunk_id":    { "type": "keyword" },
      "doc_id":      { "type": "keyword" },
      "content":     { "type": "text" },
      "chunk_type":  { "type": "keyword" },
      "page_number": { "type": "integer" },
      "source_ref":  { "type": "keyword" },
      "vector": {
        "type": "dense_vector",
        "dims": %d,
        "index": true,
        "similarity": "l2_norm"
      }
    }
  }
}`, dim)
}

func (s *Store) initMapping(ctx context.Context, dim int) error {
	res, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return err
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	logrus.WithFields(logrus.Fields{"index": s.index, "dim": dim}).Info("[ES] 创建 kNN 索引")
	res, err = s.client.Indices.Create(
		s.index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(strings.NewReader(mapping(dim))),
	)
	if err != nil {
		return fmt.Errorf("create index error: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index response error: %s", res.String())
	}
	return nil
}

// Upsert 先清掉文档旧 chunk，再批量写入并等待刷新可见
func (s *Store) Upsert(ctx context.Context, documentID string, chunks []types.Chunk) error {
	if err := s.Delete(ctx, documentID); err != nil {
		return err
	}
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

	var (
		mu       sync.Mutex
		firstErr error
	)
	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Index:         s.index,
		Client:        s.client,
		FlushInterval: time.Second,
		Refresh:       "wait_for",
		OnError: func(_ context.Context, err error) {
			mu.Lock()
			defer mu.Unlock()
			if firstErr == nil {
				firstErr = err
			}
		},
	})
	if err != nil {
		return err
	}

	for i, c := range chunks {
		data, err := json.Marshal(toChunkDoc(c, vectors[i]))
		if err != nil {
			return err
		}
		err = bi.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: c.ChunkID,
			Body:       bytes.NewReader(data),
			OnFailure: func(_ context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				mu.Lock()
				defer mu.Unlock()
				if firstErr == nil {
					if err == nil {
						err = fmt.Errorf("%s: %s", res.Error.Type, res.Error.Reason)
					}
					firstErr = fmt.Errorf("index chunk %s: %w", item.DocumentID, err)
				}
			},
		})
		if err != nil {
			return err
		}
	}
	if err := bi.Close(ctx); err != nil {
		return err
	}
	if stats := bi.Stats(); stats.NumFailed > 0 {
		return fmt.Errorf("es bulk: %d of %d chunks failed: %v", stats.NumFailed, len(chunks), firstErr)
	}
	return nil
}

// buildDocQuery 按 doc_id 精确匹配，删除和计数共用
func buildDocQuery(documentID string) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{
				"doc_id": documentID,
			},
		},
	}
}

func (s *Store) Delete(ctx context.Context, documentID string) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildDocQuery(documentID)); err != nil {
		return fmt.Errorf("error encoding query: %w", err)
	}

	res, err := s.client.DeleteByQuery(
		[]string{s.index},
		&buf,
		s.client.DeleteByQuery.WithContext(ctx),
		s.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("ES delete request failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("ES delete response error: %s", res.String())
	}
	return nil
}

func toChunkDoc(c types.Chunk, vector []float64) chunkDoc {
	page := -1
	if c.PageNumber != nil {
		page = *c.PageNumber
	}
	return chunkDoc{
		ChunkID:    c.ChunkID,
		DocID:      c.DocumentID,
		Content:    c.Content,
		ChunkType:  string(c.ChunkType),
		PageNumber: page,
		SourceRef:  c.SourceRef,
		Vector:     vector,
	}
}
