// Package openai adapts OpenAI-compatible chat and embedding APIs (including Azure OpenAI)
// through the eino component abstractions.
package openai

import (
	"context"
	"errors"
	"fmt"

	openaiModel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/resilience"
)

type ChatConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	Azure      bool
	APIVersion string
}

// generator is the slice of model.BaseChatModel the completer needs.
type generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

type Completer struct {
	model    generator
	executor *resilience.Executor
}

func NewCompleter(ctx context.Context, cfg ChatConfig, executor *resilience.Executor) (*Completer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	modelCfg := &openaiModel.ChatModelConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		ByAzure:    cfg.Azure,
		APIVersion: cfg.APIVersion,
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		modelCfg.MaxTokens = &maxTokens
	}
	chatModel, err := openaiModel.NewChatModel(ctx, modelCfg)
	if err != nil {
		return nil, fmt.Errorf("create openai chat model: %w", err)
	}
	return newCompleter(chatModel, executor), nil
}

func newCompleter(model generator, executor *resilience.Executor) *Completer {
	return &Completer{model: model, executor: executor}
}

func (c *Completer) Complete(ctx context.Context, prompt string, images []domain.ImageRef) (string, error) {
	messages := []*schema.Message{userMessage(prompt, images)}

	reply, err := resilience.Call(ctx, c.executor, "openai.generate", func(ctx context.Context) (*schema.Message, error) {
		return c.model.Generate(ctx, messages)
	}, resilience.ClassifyTransportError)
	if err != nil {
		return "", resilience.CompletionFailure("openai.generate", err)
	}
	if reply == nil {
		return "", domain.NewCompletionError(domain.CompletionInvalidResponse, "openai.generate", errors.New("nil message"))
	}
	return reply.Content, nil
}

// userMessage puts the prompt first and then one image_url part per slide image.
func userMessage(prompt string, images []domain.ImageRef) *schema.Message {
	if len(images) == 0 {
		return schema.UserMessage(prompt)
	}
	parts := make([]schema.ChatMessagePart, 0, len(images)+1)
	parts = append(parts, schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: prompt})
	for _, ref := range images {
		parts = append(parts, schema.ChatMessagePart{
			Type: schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{
				URL:      ref.URL,
				Detail:   schema.ImageURLDetailAuto,
				MIMEType: ref.MIMEType,
			},
		})
	}
	return &schema.Message{Role: schema.User, MultiContent: parts}
}
