package extract

import (
	"context"
	"strconv"
	"strings"

	"contractx/logic/ingestion/parser"
	"contractx/logic/retry"
	"contractx/types"
	"contractx/vars"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// 单页送给模型的最大字符数
const maxPageRunes = 10000

// LLMExtractor 逐页调用对话模型抽取结构化内容
type LLMExtractor struct {
	model model.BaseChatModel
}

func NewLLMExtractor(m model.BaseChatModel) *LLMExtractor {
	return &LLMExtractor{model: m}
}

// Extract 模型错误按限流/临时故障分类，由调用方重试；返回内容无法解析时是 ErrInvalidContent，不重试
func (e *LLMExtractor) Extract(ctx context.Context, in types.PageInput) (*types.PageExtraction, error) {
	content := strings.TrimSpace(in.Text)
	if content == "" {
		// 扫描件空白页，不浪费一次模型调用
		return &types.PageExtraction{PageNumber: in.Number}, nil
	}
	if r := []rune(content); len(r) > maxPageRunes {
		content = string(r[:maxPageRunes])
	}

	prompt := strings.ReplaceAll(vars.EXTRACT, "{{.Content}}", content)
	prompt = strings.ReplaceAll(prompt, "{{.PageNumber}}", strconv.Itoa(in.Number))
	resp, err := e.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage("你是一个专业的合同数据录入员。只输出 JSON。"),
		schema.UserMessage(prompt),
	})
	if err != nil {
		return nil, retry.Classify(err)
	}
	return parser.ParsePage(resp.Content, in.Number)
}
