package chat

import (
	"context"
	"fmt"

	"contractx/vars"

	"github.com/cloudwego/eino/components/model"
)

// NewChatModel 按配置选择 LLM 提供方
func NewChatModel(ctx context.Context, cfg vars.Config) (model.ToolCallingChatModel, error) {
	switch cfg.LLMProvider {
	case vars.ProviderOpenAI:
		return CreateOpenAIChatModel(ctx, cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.LLMTimeout)
	case vars.ProviderOllama, "":
		return CreateOllamaChatModel(ctx, cfg.OllamaPath, cfg.ChatModel, cfg.LLMTimeout)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}
