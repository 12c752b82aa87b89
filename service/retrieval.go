package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"contractx/logic/retrieval"
	"contractx/logic/retry"
	"contractx/types"
)

// AnswerGenerator 根据检索上下文生成回答的外部协作方
type AnswerGenerator interface {
	Answer(ctx context.Context, question string, fused *types.FusedContext) (string, error)
}

type RetrievalService struct {
	engine   *retrieval.Engine
	answerer AnswerGenerator
	retry    retry.Policy
	log      *logrus.Entry
}

func NewRetrievalService(engine *retrieval.Engine, answerer AnswerGenerator, policy retry.Policy, log *logrus.Entry) *RetrievalService {
	if log == nil {
		log = logrus.WithField("component", "retrieval_service")
	}
	return &RetrievalService{engine: engine, answerer: answerer, retry: policy, log: log}
}

func (s *RetrievalService) AnswerContext(ctx context.Context, req types.ContextRequest) (*types.FusedContext, error) {
	return s.engine.AnswerContext(ctx, req)
}

// Ask 先做混合检索，再让模型基于两路结果作答
func (s *RetrievalService) Ask(ctx context.Context, req types.ContextRequest) (*types.AskResponse, error) {
	start := time.Now()
	fused, err := s.engine.AnswerContext(ctx, req)
	if err != nil {
		return nil, err
	}
	answer, err := retry.Do(ctx, s.retry, fused.DocumentID, types.StageAnswer, func(ctx context.Context) (string, error) {
		return s.answerer.Answer(ctx, req.Question, fused)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"document_id": fused.DocumentID,
		"chunks":      len(fused.Chunks),
		"nodes":       len(fused.Nodes),
		"elapsed":     time.Since(start),
	}).Info("问答完成")
	return &types.AskResponse{Answer: answer, Context: fused}, nil
}
