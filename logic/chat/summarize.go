package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"contractx/logic/retry"
	"contractx/types"
	"contractx/vars"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Summarizer 用对话模型生成全文摘要
type Summarizer struct {
	model    model.BaseChatModel
	maxChars int
}

func NewSummarizer(m model.BaseChatModel, maxChars int) *Summarizer {
	return &Summarizer{model: m, maxChars: maxChars}
}

func (s *Summarizer) Summarize(ctx context.Context, pageSummaries []string, entities types.CanonicalEntities) (string, error) {
	ent, err := json.Marshal(entities)
	if err != nil {
		return "", fmt.Errorf("%w: marshal entities: %v", types.ErrValidation, err)
	}
	var pages strings.Builder
	for _, sum := range pageSummaries {
		fmt.Fprintf(&pages, "- %s\n", sum)
	}

	prompt := strings.ReplaceAll(vars.SUMMARIZE, "{{.MaxChars}}", strconv.Itoa(s.maxChars))
	prompt = strings.ReplaceAll(prompt, "{{.Entities}}", string(ent))
	prompt = strings.ReplaceAll(prompt, "{{.Pages}}", pages.String())

	resp, err := s.model.Generate(ctx, []*schema.Message{
		schema.UserMessage(prompt),
	})
	if err != nil {
		return "", retry.Classify(err)
	}
	return strings.TrimSpace(resp.Content), nil
}
