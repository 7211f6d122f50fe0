package ollama

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/llm/imageload"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/resilience"
)

// Completer answers multimodal prompts with a vision model through /api/generate.
// Ollama only accepts inline images, so every reference is loaded and base64 encoded first.
type Completer struct {
	client    *Client
	images    *imageload.Loader
	maxTokens int
}

func NewCompleter(client *Client, images *imageload.Loader, maxTokens int) *Completer {
	if images == nil {
		images = imageload.NewLoader(nil, 0)
	}
	return &Completer{client: client, images: images, maxTokens: maxTokens}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Images  []string       `json:"images,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (c *Completer) Complete(ctx context.Context, prompt string, images []domain.ImageRef) (string, error) {
	req := generateRequest{
		Model:  c.client.genModel,
		Prompt: prompt,
		Images: c.encodeImages(ctx, images),
		Stream: false,
	}
	if c.maxTokens > 0 {
		req.Options = map[string]any{"num_predict": c.maxTokens}
	}

	var resp generateResponse
	if err := c.client.postJSON(ctx, "/api/generate", req, &resp, "generate"); err != nil {
		var decodeErr *decodeError
		if errors.As(err, &decodeErr) {
			return "", domain.NewCompletionError(domain.CompletionInvalidResponse, "ollama.generate", err)
		}
		return "", resilience.CompletionFailure("ollama.generate", err)
	}
	return resp.Response, nil
}

// encodeImages drops images that cannot be loaded; a missing slide picture never fails the answer.
func (c *Completer) encodeImages(ctx context.Context, images []domain.ImageRef) []string {
	out := make([]string, 0, len(images))
	for _, ref := range images {
		img, err := c.images.Load(ctx, ref)
		if err != nil {
			slog.WarnContext(ctx, "image_load_skipped", "node_id", ref.NodeID, "url", ref.URL, "error", err)
			continue
		}
		out = append(out, img.Base64())
	}
	return out
}
