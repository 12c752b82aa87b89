package chat

import (
	"context"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

// CreateOpenAIChatModel 兼容 OpenAI 协议的服务（BaseURL 为空时走官方地址）
func CreateOpenAIChatModel(ctx context.Context, apiKey, baseURL, modelName string, timeout time.Duration) (model.ToolCallingChatModel, error) {
	return openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Model:   modelName,
		Timeout: timeout,
	})
}
