package agents

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/dyike/StockPilot/config"
	"github.com/dyike/StockPilot/internal/logger"
)

// NewChatModel builds the chat model named by cfg.LLMProvider. Temperature is
// pinned to 0 so repeated analyses of the same data read alike.
func NewChatModel(ctx context.Context, cfg *config.Config) (model.ToolCallingChatModel, error) {
	switch cfg.LLMProvider {
	case "", config.ProviderOpenAI:
		return newOpenAIModel(ctx, cfg)
	case config.ProviderDeepSeek:
		return newDeepSeekModel(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}
}

func newOpenAIModel(ctx context.Context, cfg *config.Config) (model.ToolCallingChatModel, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	temperature := float32(0)
	maxTokens := cfg.MaxTokens

	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:     cfg.OpenAIBaseURL,
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.OpenAIModel,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
		Timeout:     cfg.Timeout() * 4,
	})
	if err != nil {
		return nil, fmt.Errorf("create openai model: %w", err)
	}
	logger.Debug(ctx, "chat model ready", "provider", config.ProviderOpenAI, "model", cfg.OpenAIModel)
	return cm, nil
}

func newDeepSeekModel(ctx context.Context, cfg *config.Config) (model.ToolCallingChatModel, error) {
	if cfg.DeepSeekAPIKey == "" {
		return nil, fmt.Errorf("DEEPSEEK_API_KEY is not set")
	}
	cm, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
		APIKey:      cfg.DeepSeekAPIKey,
		Model:       cfg.DeepSeekModel,
		MaxTokens:   cfg.MaxTokens,
		Temperature: 0,
		Timeout:     cfg.Timeout() * 4,
	})
	if err != nil {
		return nil, fmt.Errorf("create deepseek model: %w", err)
	}
	logger.Debug(ctx, "chat model ready", "provider", config.ProviderDeepSeek, "model", cfg.DeepSeekModel)
	return cm, nil
}
