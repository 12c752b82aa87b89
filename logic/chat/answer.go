package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"contractx/logic/retry"
	"contractx/types"
	"contractx/vars"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Answerer 根据融合上下文生成回答
type Answerer struct {
	model model.BaseChatModel
}

func NewAnswerer(m model.BaseChatModel) *Answerer {
	return &Answerer{model: m}
}

func (a *Answerer) Answer(ctx context.Context, question string, fused *types.FusedContext) (string, error) {
	prompt := strings.ReplaceAll(vars.ANSWER, "{{.Context}}", BuildContext(fused))
	prompt = strings.ReplaceAll(prompt, "{{.Question}}", question)

	resp, err := a.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage("你是一个严谨的合同问答助手，只依据给定上下文回答。"),
		schema.UserMessage(prompt),
	})
	if err != nil {
		return "", retry.Classify(err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// BuildContext 向量片段和图谱事实分两段给出，各自保持检索排名
func BuildContext(fused *types.FusedContext) string {
	if fused == nil {
		return ""
	}
	var b strings.Builder
	if len(fused.Chunks) > 0 {
		b.WriteString("## Passages\n")
		for _, rc := range fused.Chunks {
			page := "-"
			if rc.Chunk.PageNumber != nil {
				page = fmt.Sprintf("%d", *rc.Chunk.PageNumber)
			}
			fmt.Fprintf(&b, "[%d] (%s, page %s, distance %.4f)\n%s\n\n",
				rc.Rank, rc.Chunk.ChunkType, page, rc.Distance, rc.Chunk.Content)
		}
	}
	if len(fused.Nodes) > 0 {
		b.WriteString("## Graph facts\n")
		for _, rn := range fused.Nodes {
			fmt.Fprintf(&b, "[%d] %s: %s", rn.Rank, rn.Node.Type, rn.Node.Label)
			if rn.Relation != "" {
				fmt.Fprintf(&b, " (via %s, depth %d)", rn.Relation, rn.Depth)
			}
			if props := formatProps(rn.Node.Properties); props != "" {
				fmt.Fprintf(&b, " {%s}", props)
			}
			b.WriteString("\n")
		}
	}
	if b.Len() == 0 {
		return "(no context found)"
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatProps(props map[string]string) string {
	if len(props) == 0 {
		return ""
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+props[k])
	}
	return strings.Join(parts, ", ")
}
