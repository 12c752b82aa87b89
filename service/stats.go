package service

import (
	"context"

	"contractx/types"
)

// UsageReporter 按文档汇总的模型用量
type UsageReporter interface {
	Usage(documentID string) []types.LLMUsage
	Forget(documentID string)
}

// WithUsage 挂上用量统计，文档删除时一并清掉
func (s *IngestionService) WithUsage(u UsageReporter) *IngestionService {
	s.usage = u
	return s
}

// DocumentStats 已定稿文档的索引规模和模型用量；未知文档返回 NotFound
func (s *IngestionService) DocumentStats(ctx context.Context, documentID string) (*types.DocumentStats, error) {
	if _, err := s.docs.Load(ctx, documentID); err != nil {
		return nil, types.NewStageError(documentID, types.StageStats, nil, err)
	}
	return s.stats(ctx, documentID)
}

// ChatbotInfo 问答入口展示用的文档概况
func (s *IngestionService) ChatbotInfo(ctx context.Context, documentID string) (*types.ChatbotInfo, error) {
	doc, err := s.docs.Load(ctx, documentID)
	if err != nil {
		return nil, types.NewStageError(documentID, types.StageStats, nil, err)
	}
	stats, err := s.stats(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return &types.ChatbotInfo{
		DocumentID:   documentID,
		DocumentType: doc.CanonicalEntities.DocumentType,
		BuyerName:    doc.CanonicalEntities.BuyerName,
		SellerName:   doc.CanonicalEntities.SellerName,
		PageCount:    len(doc.Pages),
		Ready:        stats.Chunks > 0 && stats.Nodes > 0,
		Stats:        *stats,
	}, nil
}

func (s *IngestionService) stats(ctx context.Context, documentID string) (*types.DocumentStats, error) {
	stats, err := s.indexer.Stats(ctx, documentID)
	if err != nil {
		return nil, err
	}
	stats.Usage = []types.LLMUsage{}
	if s.usage != nil {
		stats.Usage = s.usage.Usage(documentID)
	}
	return &stats, nil
}
