package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/kirillkom/slide-rag-assistant/internal/config"
	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
	"github.com/kirillkom/slide-rag-assistant/internal/core/ports"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/resilience"
)

func testConfig() config.Config {
	return config.Config{
		RAGTopK:                       4,
		RetrieverBackend:              "qdrant",
		RAGRetrievalMode:              "semantic",
		RAGFusionRRFK:                 60,
		RAGCandidateMultiplier:        3,
		ImageFetchMaxBytes:            1 << 20,
		EmbedderProvider:              "ollama",
		CompletionProvider:            "ollama",
		CompletionTimeout:             time.Minute,
		CompletionMaxTokens:           512,
		OllamaURL:                     "http://127.0.0.1:1",
		OllamaGenModel:                "llava",
		OllamaEmbedModel:              "nomic-embed-text",
		QdrantURL:                     "http://127.0.0.1:1",
		QdrantCollection:              "slides",
		SessionIdleTTL:                time.Minute,
		ResilienceRetryMaxAttempts:    2,
		ResilienceRetryInitialBackoff: time.Millisecond,
		ResilienceRetryMaxBackoff:     2 * time.Millisecond,
		ResilienceRetryMultiplier:     2,
		ResilienceBreakerMinRequests:  5,
		ResilienceBreakerFailureRatio: 0.5,
		ResilienceBreakerOpenTimeout:  time.Second,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingService struct {
	next  ports.QueryService
	calls int
}

func (s *countingService) Answer(ctx context.Context, query string) (*domain.Result, error) {
	s.calls++
	return s.next.Answer(ctx, query)
}

func TestNewBuildsAppWithoutNetwork(t *testing.T) {
	var endpoints []string
	app, err := New(context.Background(), testConfig(), Options{
		Logger: quietLogger(),
		Instrument: func(endpoint string, next ports.QueryService) ports.QueryService {
			endpoints = append(endpoints, endpoint)
			return &countingService{next: next}
		},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer app.Close()

	if app.Sessions == nil {
		t.Fatalf("expected session manager")
	}
	if app.engineCfg.TopK != 4 {
		t.Fatalf("expected top k 4, got %d", app.engineCfg.TopK)
	}

	if _, ok := app.NewEngine("query").(*countingService); !ok {
		t.Fatalf("expected instrumented engine")
	}
	session, err := app.Sessions.Start(context.Background())
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if session.Greeting == "" {
		t.Fatalf("expected greeting")
	}
	if len(endpoints) != 2 || endpoints[0] != "query" || endpoints[1] != "session" {
		t.Fatalf("unexpected instrumented endpoints: %v", endpoints)
	}
}

func TestNewRejectsBadPromptTemplate(t *testing.T) {
	cfg := testConfig()
	cfg.PromptTemplate = "no placeholders"
	_, err := New(context.Background(), cfg, Options{Logger: quietLogger()})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestEngineConfigUsesCustomTemplate(t *testing.T) {
	cfg := testConfig()
	cfg.PromptTemplate = "Slides:\n{context_str}\nQ: {query_str}\nA:"
	engineCfg, err := engineConfig(cfg)
	if err != nil {
		t.Fatalf("engine config: %v", err)
	}
	if engineCfg.Template.Text() != cfg.PromptTemplate {
		t.Fatalf("expected custom template, got %q", engineCfg.Template.Text())
	}
}

func TestResilienceConfigMapsSettings(t *testing.T) {
	cfg := testConfig()
	cfg.ResilienceBreakerEnabled = true
	got := resilienceConfig(cfg)
	want := resilience.Config{
		RetryMaxAttempts:        2,
		RetryInitialBackoff:     time.Millisecond,
		RetryMaxBackoff:         2 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      5,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
	if got != want {
		t.Fatalf("unexpected resilience config:\n got %+v\nwant %+v", got, want)
	}
}

func TestBuildRetrieverSelectsBackend(t *testing.T) {
	cfg := testConfig()
	noDB := func() (*sql.DB, error) { return nil, errors.New("no database in tests") }

	var closers int
	cfg.RetrieverBackend = "redis"
	cfg.RedisAddr = "127.0.0.1:1"
	if _, err := buildRetriever(cfg, nil, nil, noDB, func(func()) { closers++ }); err != nil {
		t.Fatalf("redis retriever: %v", err)
	}
	if closers != 1 {
		t.Fatalf("expected redis client closer, got %d", closers)
	}

	cfg.RetrieverBackend = "pgvector"
	if _, err := buildRetriever(cfg, nil, nil, noDB, func(func()) {}); err == nil {
		t.Fatalf("expected pgvector to surface database error")
	}

	cfg.RetrieverBackend = "milvus"
	if _, err := buildRetriever(cfg, nil, nil, noDB, func(func()) {}); err == nil {
		t.Fatalf("expected unsupported backend error")
	}
}

func TestBuildCompleterValidatesProvider(t *testing.T) {
	cfg := testConfig()
	cfg.CompletionProvider = "anthropic"
	if _, err := buildCompleter(context.Background(), cfg, nil, nil); err == nil {
		t.Fatalf("expected missing api key error")
	}

	cfg.CompletionProvider = "cohere"
	if _, err := buildCompleter(context.Background(), cfg, nil, nil); err == nil {
		t.Fatalf("expected unsupported provider error")
	}
}
