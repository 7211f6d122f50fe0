package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t, "RAG_TOP_K", "RETRIEVER_BACKEND", "COMPLETION_PROVIDER", "EMBEDDER_PROVIDER",
		"COMPLETION_TIMEOUT", "RAG_RETRIEVAL_MODE", "CONFIG_FILE", "SESSION_IDLE_TTL")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 3, cfg.RAGTopK)
	require.Equal(t, "qdrant", cfg.RetrieverBackend)
	require.Equal(t, "semantic", cfg.RAGRetrievalMode)
	require.Equal(t, "ollama", cfg.CompletionProvider)
	require.Equal(t, "ollama", cfg.EmbedderProvider)
	require.Equal(t, 120*time.Second, cfg.CompletionTimeout)
	require.Equal(t, 30*time.Minute, cfg.SessionIdleTTL)
	require.Equal(t, 4096, cfg.CompletionMaxTokens)
}

func TestLoadParsesOverrides(t *testing.T) {
	clearEnv(t, "CONFIG_FILE")
	t.Setenv("RAG_TOP_K", "7")
	t.Setenv("RETRIEVER_BACKEND", "qdrant")
	t.Setenv("RAG_RETRIEVAL_MODE", "hybrid")
	t.Setenv("RAG_FUSION_RRF_K", "75")
	t.Setenv("COMPLETION_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("COMPLETION_TIMEOUT", "45s")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("SESSION_HISTORY_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 7, cfg.RAGTopK)
	require.Equal(t, "hybrid", cfg.RAGRetrievalMode)
	require.Equal(t, 75, cfg.RAGFusionRRFK)
	require.Equal(t, "gemini", cfg.CompletionProvider)
	require.Equal(t, 45*time.Second, cfg.CompletionTimeout)
	require.InDelta(t, 2.5, cfg.APIRateLimitRPS, 1e-9)
	require.True(t, cfg.SessionHistoryEnabled)
}

func TestLoadIgnoresUnparseableValues(t *testing.T) {
	clearEnv(t, "CONFIG_FILE", "COMPLETION_PROVIDER", "EMBEDDER_PROVIDER", "RETRIEVER_BACKEND", "RAG_RETRIEVAL_MODE")
	t.Setenv("RAG_TOP_K", "three")
	t.Setenv("COMPLETION_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 3, cfg.RAGTopK)
	require.Equal(t, 120*time.Second, cfg.CompletionTimeout)
}

func TestLoadAppliesYAMLOverlay(t *testing.T) {
	clearEnv(t, "RAG_TOP_K", "COMPLETION_PROVIDER", "EMBEDDER_PROVIDER", "RETRIEVER_BACKEND", "RAG_RETRIEVAL_MODE")
	path := filepath.Join(t.TempDir(), "rag.yaml")
	content := `
prompt_template: |
  Slides:
  {context_str}
  Question: {query_str}
greeting: "Ask me about the deck."
rag:
  top_k: 5
  source_preview_chars: 200
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 5, cfg.RAGTopK)
	require.Equal(t, 200, cfg.SourcePreviewChars)
	require.Equal(t, "Ask me about the deck.", cfg.SessionGreeting)
	require.True(t, strings.HasPrefix(cfg.PromptTemplate, "Slides:\n{context_str}"))
}

func TestLoadFailsOnMissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	require.Error(t, err)
}

func validConfig(t *testing.T) Config {
	t.Helper()
	clearEnv(t, "RAG_TOP_K", "RETRIEVER_BACKEND", "RAG_RETRIEVAL_MODE", "COMPLETION_PROVIDER",
		"EMBEDDER_PROVIDER", "RAG_PROMPT_TEMPLATE", "API_PORT", "OPENAI_API_KEY", "ANTHROPIC_API_KEY",
		"AZURE_OPENAI_ENDPOINT")
	return fromEnv()
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"top k zero", func(c *Config) { c.RAGTopK = 0 }, "RAGTopK"},
		{"top k too large", func(c *Config) { c.RAGTopK = 101 }, "RAGTopK"},
		{"unknown backend", func(c *Config) { c.RetrieverBackend = "milvus" }, "RetrieverBackend"},
		{"unknown provider", func(c *Config) { c.CompletionProvider = "cohere" }, "CompletionProvider"},
		{"missing openai key", func(c *Config) { c.CompletionProvider = "openai" }, "OPENAI_API_KEY"},
		{"missing azure endpoint", func(c *Config) {
			c.CompletionProvider = "azure"
			c.AzureOpenAIAPIKey = "k"
		}, "AZURE_OPENAI_ENDPOINT"},
		{"missing anthropic key", func(c *Config) { c.CompletionProvider = "anthropic" }, "ANTHROPIC_API_KEY"},
		{"hybrid without qdrant", func(c *Config) {
			c.RAGRetrievalMode = "hybrid"
			c.RetrieverBackend = "redis"
		}, "hybrid"},
		{"template without query", func(c *Config) { c.PromptTemplate = "{context_str} only" }, "prompt template"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t)
			require.NoError(t, cfg.Validate())
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, domain.IsKind(err, domain.ErrInvalidInput))
			require.Contains(t, err.Error(), tc.want)
		})
	}
}
