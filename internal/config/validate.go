package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and that the selected providers have their credentials.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
			return domain.WrapError(domain.ErrInvalidInput, "validate config", errors.New(strings.Join(msgs, "; ")))
		}
		return domain.WrapError(domain.ErrInvalidInput, "validate config", err)
	}

	var problems []string
	require := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	switch c.CompletionProvider {
	case "openai":
		require(c.OpenAIAPIKey != "", "OPENAI_API_KEY is required for COMPLETION_PROVIDER=openai")
	case "azure":
		require(c.AzureOpenAIAPIKey != "", "AZURE_OPENAI_API_KEY is required for COMPLETION_PROVIDER=azure")
		require(c.AzureOpenAIEndpoint != "", "AZURE_OPENAI_ENDPOINT is required for COMPLETION_PROVIDER=azure")
	case "gemini":
		require(c.GeminiAPIKey != "", "GEMINI_API_KEY is required for COMPLETION_PROVIDER=gemini")
	case "anthropic":
		require(c.AnthropicAPIKey != "", "ANTHROPIC_API_KEY is required for COMPLETION_PROVIDER=anthropic")
	}
	if c.EmbedderProvider == "openai" {
		require(c.OpenAIAPIKey != "", "OPENAI_API_KEY is required for EMBEDDER_PROVIDER=openai")
	}
	if c.RAGRetrievalMode == "hybrid" {
		require(c.RetrieverBackend == "qdrant", "RAG_RETRIEVAL_MODE=hybrid needs RETRIEVER_BACKEND=qdrant")
	}
	if c.RetrieverBackend == "pgvector" || c.SessionHistoryEnabled {
		require(c.PostgresDSN != "", "POSTGRES_DSN is required for pgvector retrieval or session history")
	}
	if c.PromptTemplate != "" {
		require(strings.Count(c.PromptTemplate, "{context_str}") == 1 && strings.Count(c.PromptTemplate, "{query_str}") == 1,
			"prompt template must contain {context_str} and {query_str} exactly once")
	}

	if len(problems) > 0 {
		return domain.WrapError(domain.ErrInvalidInput, "validate config", errors.New(strings.Join(problems, "; ")))
	}
	return nil
}
