// Package gemini adapts the Gemini API to the multimodal completion port.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/llm/imageload"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/resilience"
)

type Config struct {
	APIKey    string
	Model     string
	MaxTokens int
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Completer struct {
	models    contentGenerator
	model     string
	maxTokens int
	images    *imageload.Loader
	executor  *resilience.Executor
}

func NewCompleter(ctx context.Context, cfg Config, images *imageload.Loader, executor *resilience.Executor) (*Completer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newCompleter(client.Models, cfg, images, executor), nil
}

func newCompleter(models contentGenerator, cfg Config, images *imageload.Loader, executor *resilience.Executor) *Completer {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if images == nil {
		images = imageload.NewLoader(nil, 0)
	}
	return &Completer{
		models:    models,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		images:    images,
		executor:  executor,
	}
}

func (c *Completer) Complete(ctx context.Context, prompt string, images []domain.ImageRef) (string, error) {
	contents := []*genai.Content{genai.NewContentFromParts(c.parts(ctx, prompt, images), genai.RoleUser)}
	config := &genai.GenerateContentConfig{}
	if c.maxTokens > 0 {
		config.MaxOutputTokens = int32(c.maxTokens)
	}

	resp, err := resilience.Call(ctx, c.executor, "gemini.generate", func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		resp, err := c.models.GenerateContent(ctx, c.model, contents, config)
		return resp, asStatusError(err)
	}, resilience.ClassifyTransportError)
	if err != nil {
		return "", resilience.CompletionFailure("gemini.generate", err)
	}

	text := responseText(resp)
	if text == "" {
		return "", domain.NewCompletionError(domain.CompletionInvalidResponse, "gemini.generate", errors.New("no text candidates"))
	}
	return text, nil
}

// parts maps gs:// references to file URIs and inlines everything else.
func (c *Completer) parts(ctx context.Context, prompt string, images []domain.ImageRef) []*genai.Part {
	parts := make([]*genai.Part, 0, len(images)+1)
	parts = append(parts, genai.NewPartFromText(prompt))
	for _, ref := range images {
		if strings.HasPrefix(ref.URL, "gs://") {
			parts = append(parts, genai.NewPartFromURI(ref.URL, ref.MIMEType))
			continue
		}
		img, err := c.images.Load(ctx, ref)
		if err != nil {
			slog.WarnContext(ctx, "image_load_skipped", "node_id", ref.NodeID, "url", ref.URL, "error", err)
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	return parts
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" && !part.Thought {
				b.WriteString(part.Text)
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}

type statusError struct {
	code int
	err  error
}

func (e *statusError) Error() string   { return e.err.Error() }
func (e *statusError) Unwrap() error   { return e.err }
func (e *statusError) HTTPStatus() int { return e.code }

func asStatusError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code > 0 {
		return &statusError{code: apiErr.Code, err: err}
	}
	return err
}
