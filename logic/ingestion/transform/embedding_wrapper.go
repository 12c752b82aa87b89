package transform

import (
	"context"
	"math"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/sirupsen/logrus"
)

// CleanEmbedder 包装原始 embedder，处理 NaN/Inf 值
type CleanEmbedder struct {
	inner embedding.Embedder
}

func NewCleanEmbedder(inner embedding.Embedder) *CleanEmbedder {
	return &CleanEmbedder{inner: inner}
}

// EmbedStrings NaN/Inf 替换为 0.0，向量库拒收这类值
func (e *CleanEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	vectors, err := e.inner.EmbedStrings(ctx, texts, opts...)
	if err != nil {
		return nil, err
	}

	cleanedCount := 0
	for _, vec := range vectors {
		for j, val := range vec {
			if math.IsNaN(val) || math.IsInf(val, 0) {
				vec[j] = 0.0
				cleanedCount++
			}
		}
	}
	if cleanedCount > 0 {
		logrus.WithField("dims", cleanedCount).Warn("检测到 NaN/Inf 值，已清理为 0.0")
	}
	return vectors, nil
}
