package qdrant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
	"github.com/kirillkom/slide-rag-assistant/internal/core/ports"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/vector"
)

const (
	ModeSemantic = "semantic"
	ModeHybrid   = "hybrid"
)

type RetrieverConfig struct {
	Mode string
	// DenseVector and SparseVector name the collection's vectors; empty DenseVector
	// means the collection has a single unnamed vector.
	DenseVector  string
	SparseVector string
	RRFK         int
	// CandidateMultiplier widens each list before fusion in hybrid mode.
	CandidateMultiplier int
}

// Retriever implements ports.Retriever over a Qdrant collection of slide nodes.
type Retriever struct {
	client   *Client
	embedder ports.Embedder
	cfg      RetrieverConfig
}

func NewRetriever(client *Client, embedder ports.Embedder, cfg RetrieverConfig) *Retriever {
	if cfg.Mode == "" {
		cfg.Mode = ModeSemantic
	}
	if cfg.SparseVector == "" {
		cfg.SparseVector = "text-sparse"
	}
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = 3
	}
	return &Retriever{client: client, embedder: embedder, cfg: cfg}
}

func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]domain.ContentNode, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.NewRetrievalError(domain.RetrievalRejected, "qdrant.retrieve", errors.New("empty query"))
	}
	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, resilience.RetrievalFailure("embed_query", err)
	}

	if r.cfg.Mode != ModeHybrid {
		return r.search(ctx, "search_dense", queryRequest{Query: vec, Using: r.cfg.DenseVector, Limit: topK, WithPayload: true})
	}

	candidates := topK * r.cfg.CandidateMultiplier
	semantic, err := r.search(ctx, "search_dense", queryRequest{Query: vec, Using: r.cfg.DenseVector, Limit: candidates, WithPayload: true})
	if err != nil {
		return nil, err
	}
	sparse := encodeSparseQuery(query)
	if sparse.empty() {
		return trim(semantic, topK), nil
	}
	lexical, err := r.search(ctx, "search_sparse", queryRequest{Query: sparse, Using: r.cfg.SparseVector, Limit: candidates, WithPayload: true})
	if err != nil {
		return nil, err
	}
	return trim(fuseRRF(r.cfg.RRFK, semantic, lexical), topK), nil
}

func (r *Retriever) search(ctx context.Context, operation string, req queryRequest) ([]domain.ContentNode, error) {
	points, err := r.client.query(ctx, operation, req)
	if err != nil {
		var malformed *malformedError
		if errors.As(err, &malformed) {
			return nil, domain.NewRetrievalError(domain.RetrievalMalformed, "qdrant."+operation, err)
		}
		return nil, resilience.RetrievalFailure("qdrant."+operation, err)
	}

	nodes := make([]domain.ContentNode, 0, len(points))
	for _, p := range points {
		node, err := toContentNode(p)
		if err != nil {
			return nil, domain.NewRetrievalError(domain.RetrievalMalformed, "qdrant."+operation, err)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func toContentNode(p scoredPoint) (domain.ContentNode, error) {
	id, err := pointID(p.ID)
	if err != nil {
		return domain.ContentNode{}, err
	}
	fields, err := vector.DecodePayload(p.Payload)
	if err != nil {
		return domain.ContentNode{}, fmt.Errorf("point %s: %w", id, err)
	}
	return domain.ContentNode{
		ID:                      id,
		Text:                    fields.Text,
		Score:                   p.Score,
		Metadata:                fields.Metadata,
		ExcludedLLMMetadataKeys: fields.ExcludedLLM,
	}, nil
}

func trim(nodes []domain.ContentNode, limit int) []domain.ContentNode {
	if limit <= 0 || len(nodes) <= limit {
		return nodes
	}
	return nodes[:limit]
}
