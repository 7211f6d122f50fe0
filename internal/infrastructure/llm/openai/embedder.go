package openai

import (
	"context"
	"errors"
	"fmt"

	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"

	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/resilience"
)

type EmbeddingConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Azure      bool
	APIVersion string
}

type Embedder struct {
	embedder embedding.Embedder
	executor *resilience.Executor
}

func NewEmbedder(ctx context.Context, cfg EmbeddingConfig, executor *resilience.Executor) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	emb, err := openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		ByAzure:    cfg.Azure,
		APIVersion: cfg.APIVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("create openai embedder: %w", err)
	}
	return &Embedder{embedder: emb, executor: executor}, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := resilience.Call(ctx, e.executor, "openai.embed", func(ctx context.Context) ([][]float64, error) {
		return e.embedder.EmbedStrings(ctx, []string{text})
	}, resilience.ClassifyTransportError)
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, errors.New("empty embedding result")
	}

	out := make([]float32, len(vectors[0]))
	for i, v := range vectors[0] {
		out[i] = float32(v)
	}
	return out, nil
}
