package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/hayden-dev/perpmind/internal/config"
)

// Completer is the narrow reasoning-service contract the rest of the agent
// depends on: an ordered message history in, a single completion out.
type Completer interface {
	Complete(ctx context.Context, messages []*schema.Message) (string, error)
}

// Client backs Completer with an eino chat model.
type Client struct {
	chatModel model.BaseChatModel
}

func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	var (
		chatModel model.BaseChatModel
		err       error
	)

	switch cfg.LLMProvider {
	case "deepseek":
		chatModel, err = deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:  cfg.DeepSeekAPIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BackendURL,
		})
	case "openai":
		maxTokens := 4096
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:    cfg.OpenAIAPIKey,
			Model:     cfg.Model,
			BaseURL:   cfg.BackendURL,
			MaxTokens: &maxTokens,
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", cfg.LLMProvider, err)
	}

	return &Client{chatModel: chatModel}, nil
}

func (c *Client) Complete(ctx context.Context, messages []*schema.Message) (string, error) {
	resp, err := c.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	return resp.Content, nil
}
