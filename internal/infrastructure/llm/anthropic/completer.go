// Package anthropic adapts the Claude Messages API to the multimodal completion port.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/resilience"
)

const defaultMaxTokens = 4096

type Config struct {
	APIKey    string
	Model     string
	MaxTokens int
}

type messageCreator interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type Completer struct {
	messages  messageCreator
	model     string
	maxTokens int
	executor  *resilience.Executor
}

func NewCompleter(cfg Config, executor *resilience.Executor) (*Completer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	return newCompleter(&client.Messages, cfg, executor), nil
}

func newCompleter(messages messageCreator, cfg Config, executor *resilience.Executor) *Completer {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return &Completer{messages: messages, model: cfg.Model, maxTokens: cfg.MaxTokens, executor: executor}
}

func (c *Completer) Complete(ctx context.Context, prompt string, images []domain.ImageRef) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(contentBlocks(prompt, images)...)},
	}

	resp, err := resilience.Call(ctx, c.executor, "anthropic.messages", func(ctx context.Context) (*anthropic.Message, error) {
		resp, err := c.messages.New(ctx, params)
		return resp, asStatusError(err)
	}, resilience.ClassifyTransportError)
	if err != nil {
		return "", resilience.CompletionFailure("anthropic.messages", err)
	}

	var b strings.Builder
	if resp != nil {
		for _, block := range resp.Content {
			if block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
	}
	if b.Len() == 0 {
		return "", domain.NewCompletionError(domain.CompletionInvalidResponse, "anthropic.messages", errors.New("no text blocks"))
	}
	return b.String(), nil
}

// contentBlocks puts images before the prompt text. Object-store references are not
// reachable by the API and are left out.
func contentBlocks(prompt string, images []domain.ImageRef) []anthropic.ContentBlockParamUnion {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(images)+1)
	for _, ref := range images {
		switch {
		case ref.IsDataURI():
			mediaType, data, ok := splitDataURI(ref.URL)
			if ok {
				blocks = append(blocks, anthropic.NewImageBlockBase64(mediaType, data))
			}
		case isWebURL(ref.URL):
			blocks = append(blocks, anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: ref.URL}))
		}
	}
	return append(blocks, anthropic.NewTextBlock(prompt))
}

func splitDataURI(raw string) (mediaType, data string, ok bool) {
	if len(raw) < 5 || !strings.EqualFold(raw[:5], "data:") {
		return "", "", false
	}
	header, data, found := strings.Cut(raw[5:], ",")
	if !found {
		return "", "", false
	}
	const marker = ";base64"
	if len(header) < len(marker) || !strings.EqualFold(header[len(header)-len(marker):], marker) {
		return "", "", false
	}
	return strings.ToLower(header[:len(header)-len(marker)]), data, true
}

func isWebURL(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

type statusError struct {
	code int
	err  error
}

func (e *statusError) Error() string   { return e.err.Error() }
func (e *statusError) Unwrap() error   { return e.err }
func (e *statusError) HTTPStatus() int { return e.code }

func asStatusError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode > 0 {
		return &statusError{code: apiErr.StatusCode, err: err}
	}
	return err
}
