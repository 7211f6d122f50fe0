package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
	"github.com/kirillkom/slide-rag-assistant/internal/core/ports"
)

const DefaultTopK = 3

// EngineConfig is fixed at construction and shared by every query.
type EngineConfig struct {
	TopK     int
	Template PromptTemplate
}

func (c EngineConfig) normalize() EngineConfig {
	out := c
	if out.TopK <= 0 {
		out.TopK = DefaultTopK
	}
	if out.Template.text == "" {
		out.Template = DefaultPromptTemplate()
	}
	return out
}

type EngineOption func(*QueryEngine)

func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *QueryEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// QueryEngine runs retrieve -> split -> assemble -> complete for one query.
// It holds no per-query state and never retries; backend policies live in the ports.
type QueryEngine struct {
	retriever ports.Retriever
	completer ports.MultimodalCompleter
	cfg       EngineConfig
	logger    *slog.Logger
}

func NewQueryEngine(
	retriever ports.Retriever,
	completer ports.MultimodalCompleter,
	cfg EngineConfig,
	opts ...EngineOption,
) *QueryEngine {
	e := &QueryEngine{
		retriever: retriever,
		completer: completer,
		cfg:       cfg.normalize(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *QueryEngine) Config() EngineConfig {
	return e.cfg
}

func (e *QueryEngine) Answer(ctx context.Context, query string) (*domain.Result, error) {
	nodes, err := e.retriever.Retrieve(ctx, query, e.cfg.TopK)
	if err != nil {
		return nil, toRetrievalError("retrieve", err)
	}
	if err := validateNodes(nodes); err != nil {
		return nil, domain.NewRetrievalError(domain.RetrievalMalformed, "retrieve", err)
	}
	nodes = trimNodes(nodes, e.cfg.TopK)
	e.logger.DebugContext(ctx, "nodes_retrieved", "count", len(nodes))

	evidence := SplitEvidence(nodes)
	for _, skip := range evidence.Skips {
		e.logger.WarnContext(ctx, "image_reference_skipped",
			"node_id", skip.NodeID,
			"image_path", skip.Reference,
			"reason", skip.Reason,
		)
	}

	prompt := AssemblePrompt(e.cfg.Template, query, evidence.TextNodes)
	e.logger.DebugContext(ctx, "prompt_formatted",
		"template_version", QAPromptTemplateVersion,
		"images", len(evidence.ImageRefs),
		"prompt", prompt.Rendered,
	)

	answer, err := e.completer.Complete(ctx, prompt.Rendered, evidence.ImageRefs)
	if err != nil {
		return nil, toCompletionError("complete", err)
	}
	if strings.TrimSpace(answer) == "" {
		return nil, domain.NewCompletionError(domain.CompletionInvalidResponse, "complete", errors.New("empty answer"))
	}

	return &domain.Result{
		Answer:      answer,
		SourceNodes: evidence.TextNodes,
		ImageRefs:   evidence.ImageRefs,
		ImageSkips:  evidence.Skips,
	}, nil
}

func validateNodes(nodes []domain.ContentNode) error {
	seen := make(map[string]struct{}, len(nodes))
	for i, node := range nodes {
		if node.ID == "" {
			return fmt.Errorf("node at position %d has no id", i)
		}
		if math.IsNaN(node.Score) {
			return fmt.Errorf("node %s has no score", node.ID)
		}
		if _, dup := seen[node.ID]; dup {
			return fmt.Errorf("duplicate node id %s", node.ID)
		}
		seen[node.ID] = struct{}{}
	}
	return nil
}

func trimNodes(nodes []domain.ContentNode, limit int) []domain.ContentNode {
	if limit <= 0 || len(nodes) <= limit {
		return nodes
	}
	return nodes[:limit]
}

func toRetrievalError(op string, err error) error {
	if _, ok := domain.AsRetrievalError(err); ok {
		return err
	}
	kind := domain.RetrievalUnavailable
	if domain.IsKind(err, domain.ErrInvalidInput) {
		kind = domain.RetrievalRejected
	}
	return domain.NewRetrievalError(kind, op, err)
}

func toCompletionError(op string, err error) error {
	if _, ok := domain.AsCompletionError(err); ok {
		return err
	}
	kind := domain.CompletionUnavailable
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = domain.CompletionTimeout
	case domain.IsKind(err, domain.ErrInvalidInput):
		kind = domain.CompletionRejected
	}
	return domain.NewCompletionError(kind, op, err)
}
