package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/slide-rag-assistant/internal/config"
	"github.com/kirillkom/slide-rag-assistant/internal/core/ports"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/llm"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/llm/anthropic"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/llm/imageload"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/llm/openai"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/vector/pgvector"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/vector/redisearch"
)

func buildEmbedder(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.Embedder, error) {
	switch cfg.EmbedderProvider {
	case "ollama":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.WithExecutor(executor))
		return ollama.NewEmbedder(client), nil
	case "openai":
		embedder, err := openai.NewEmbedder(ctx, openai.EmbeddingConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIEmbedModel,
		}, executor)
		if err != nil {
			return nil, fmt.Errorf("init openai embedder: %w", err)
		}
		return embedder, nil
	default:
		return nil, fmt.Errorf("unsupported embedder provider %q", cfg.EmbedderProvider)
	}
}

func buildRetriever(
	cfg config.Config,
	embedder ports.Embedder,
	executor *resilience.Executor,
	openDB func() (*sql.DB, error),
	addCloser func(func()),
) (ports.Retriever, error) {
	switch cfg.RetrieverBackend {
	case "qdrant":
		client := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection,
			qdrant.WithAPIKey(cfg.QdrantAPIKey),
			qdrant.WithExecutor(executor),
		)
		return qdrant.NewRetriever(client, embedder, qdrant.RetrieverConfig{
			Mode:                cfg.RAGRetrievalMode,
			DenseVector:         cfg.QdrantDenseVector,
			SparseVector:        cfg.QdrantSparseVector,
			RRFK:                cfg.RAGFusionRRFK,
			CandidateMultiplier: cfg.RAGCandidateMultiplier,
		}), nil
	case "pgvector":
		db, err := openDB()
		if err != nil {
			return nil, err
		}
		return pgvector.NewRetriever(db, embedder, cfg.PGVectorTable)
	case "redis":
		redisCfg := redisearch.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Index:    cfg.RedisIndex,
		}
		client := redisearch.NewClient(redisCfg)
		addCloser(func() { _ = client.Close() })
		return redisearch.NewRetriever(client, embedder, redisCfg, executor), nil
	default:
		return nil, fmt.Errorf("unsupported retriever backend %q", cfg.RetrieverBackend)
	}
}

// buildCompleter selects the multimodal provider and bounds it with COMPLETION_TIMEOUT.
func buildCompleter(
	ctx context.Context,
	cfg config.Config,
	images *imageload.Loader,
	executor *resilience.Executor,
) (ports.MultimodalCompleter, error) {
	var (
		completer ports.MultimodalCompleter
		err       error
	)
	switch cfg.CompletionProvider {
	case "ollama":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.WithExecutor(executor))
		completer = ollama.NewCompleter(client, images, cfg.CompletionMaxTokens)
	case "openai":
		completer, err = openai.NewCompleter(ctx, openai.ChatConfig{
			APIKey:    cfg.OpenAIAPIKey,
			BaseURL:   cfg.OpenAIBaseURL,
			Model:     cfg.OpenAIModel,
			MaxTokens: cfg.CompletionMaxTokens,
		}, executor)
	case "azure":
		completer, err = openai.NewCompleter(ctx, openai.ChatConfig{
			APIKey:     cfg.AzureOpenAIAPIKey,
			BaseURL:    cfg.AzureOpenAIEndpoint,
			Model:      cfg.AzureOpenAIDeployment,
			MaxTokens:  cfg.CompletionMaxTokens,
			Azure:      true,
			APIVersion: cfg.AzureOpenAIAPIVersion,
		}, executor)
	case "gemini":
		completer, err = gemini.NewCompleter(ctx, gemini.Config{
			APIKey:    cfg.GeminiAPIKey,
			Model:     cfg.GeminiModel,
			MaxTokens: cfg.CompletionMaxTokens,
		}, images, executor)
	case "anthropic":
		completer, err = anthropic.NewCompleter(anthropic.Config{
			APIKey:    cfg.AnthropicAPIKey,
			Model:     cfg.AnthropicModel,
			MaxTokens: cfg.CompletionMaxTokens,
		}, executor)
	default:
		return nil, fmt.Errorf("unsupported completion provider %q", cfg.CompletionProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s completer: %w", cfg.CompletionProvider, err)
	}
	return llm.WithTimeout(completer, cfg.CompletionTimeout), nil
}
