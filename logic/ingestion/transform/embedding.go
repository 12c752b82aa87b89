package transform

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/embedding/ollama"
	"github.com/cloudwego/eino/components/embedding"
)

func NewEmbedder(ctx context.Context, baseURL, model string, timeout time.Duration) (embedding.Embedder, error) {
	embedder, err := ollama.NewEmbedder(ctx, &ollama.EmbeddingConfig{
		BaseURL: baseURL,
		Model:   model,
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("new ollama embedder: %w", err)
	}
	return NewCleanEmbedder(embedder), nil
}

// DetectDimension 嵌入一条短文本拿到向量维度，建索引时使用
func DetectDimension(ctx context.Context, embedder embedding.Embedder) (int, error) {
	vectors, err := embedder.EmbedStrings(ctx, []string{"dimension check"})
	if err != nil {
		return 0, fmt.Errorf("detect embedding dimension: %w", err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return 0, fmt.Errorf("detect embedding dimension: empty vector")
	}
	return len(vectors[0]), nil
}
