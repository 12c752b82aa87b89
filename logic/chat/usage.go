package chat

import (
	"context"
	"sort"
	"sync"

	"contractx/logic/retry"
	"contractx/types"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"
)

// UsageTracker 按文档和阶段累计 token 用量，归属取自 retry.Do 写入的 Scope
type UsageTracker struct {
	mu    sync.Mutex
	usage map[string]map[string]*types.LLMUsage
	log   *logrus.Entry
}

func NewUsageTracker() *UsageTracker {
	return &UsageTracker{
		usage: map[string]map[string]*types.LLMUsage{},
		log:   logrus.WithField("component", "llm_usage"),
	}
}

// Wrap 返回会记录用量的模型
func (t *UsageTracker) Wrap(m model.BaseChatModel) model.BaseChatModel {
	return &trackedModel{BaseChatModel: m, tracker: t}
}

// Record 没有 Scope 的调用不计入任何文档
func (t *UsageTracker) Record(ctx context.Context, resp *schema.Message) {
	scope, ok := retry.ScopeFrom(ctx)
	if !ok || scope.DocumentID == "" || resp == nil {
		return
	}
	var tu schema.TokenUsage
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		tu = *resp.ResponseMeta.Usage
	}

	t.mu.Lock()
	stages, ok := t.usage[scope.DocumentID]
	if !ok {
		stages = map[string]*types.LLMUsage{}
		t.usage[scope.DocumentID] = stages
	}
	u, ok := stages[scope.Stage]
	if !ok {
		u = &types.LLMUsage{Stage: scope.Stage}
		stages[scope.Stage] = u
	}
	u.Calls++
	u.PromptTokens += tu.PromptTokens
	u.CompletionTokens += tu.CompletionTokens
	u.TotalTokens += tu.TotalTokens
	t.mu.Unlock()

	t.log.WithFields(logrus.Fields{
		"document_id":       scope.DocumentID,
		"stage":             scope.Stage,
		"prompt_tokens":     tu.PromptTokens,
		"completion_tokens": tu.CompletionTokens,
	}).Debug("LLM 调用")
}

// Usage 按阶段名排序的副本
func (t *UsageTracker) Usage(documentID string) []types.LLMUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.LLMUsage, 0, len(t.usage[documentID]))
	for _, u := range t.usage[documentID] {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}

func (t *UsageTracker) Forget(documentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.usage, documentID)
}

type trackedModel struct {
	model.BaseChatModel
	tracker *UsageTracker
}

func (m *trackedModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	resp, err := m.BaseChatModel.Generate(ctx, input, opts...)
	if err == nil {
		m.tracker.Record(ctx, resp)
	}
	return resp, err
}
