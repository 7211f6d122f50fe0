// Package pgvector retrieves slide nodes from a Postgres table with a pgvector embedding column.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	pgv "github.com/pgvector/pgvector-go"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
	"github.com/kirillkom/slide-rag-assistant/internal/core/ports"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/vector"
)

const DefaultTable = "slide_nodes"

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

// Retriever ranks rows by cosine distance. Expected columns: id TEXT, text TEXT,
// metadata JSONB, excluded_llm_metadata_keys JSONB, embedding VECTOR.
type Retriever struct {
	db       *sql.DB
	embedder ports.Embedder
	query    string
}

func NewRetriever(db *sql.DB, embedder ports.Embedder, table string) (*Retriever, error) {
	if strings.TrimSpace(table) == "" {
		table = DefaultTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "pgvector table", fmt.Errorf("invalid table name %q", table))
	}
	return &Retriever{
		db:       db,
		embedder: embedder,
		query: fmt.Sprintf(`
SELECT id, COALESCE(text, ''), COALESCE(metadata, '{}'::jsonb)::text,
	COALESCE(excluded_llm_metadata_keys, '[]'::jsonb)::text,
	1 - (embedding <=> $1) AS score
FROM %s
ORDER BY embedding <=> $1
LIMIT $2
`, table),
	}, nil
}

func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]domain.ContentNode, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.NewRetrievalError(domain.RetrievalRejected, "pgvector.retrieve", errors.New("empty query"))
	}
	embedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, resilience.RetrievalFailure("embed_query", err)
	}

	rows, err := r.db.QueryContext(ctx, r.query, pgv.NewVector(embedding), topK)
	if err != nil {
		return nil, resilience.RetrievalFailure("pgvector.search", err)
	}
	defer rows.Close()

	nodes := make([]domain.ContentNode, 0, topK)
	for rows.Next() {
		var (
			node        domain.ContentNode
			metadataRaw string
			excludedRaw string
		)
		if err := rows.Scan(&node.ID, &node.Text, &metadataRaw, &excludedRaw, &node.Score); err != nil {
			return nil, domain.NewRetrievalError(domain.RetrievalMalformed, "pgvector.scan", err)
		}
		if node.Metadata, err = vector.DecodeMetadataJSON(metadataRaw); err != nil {
			return nil, domain.NewRetrievalError(domain.RetrievalMalformed, "pgvector.scan", fmt.Errorf("node %s: %w", node.ID, err))
		}
		if err := json.Unmarshal([]byte(excludedRaw), &node.ExcludedLLMMetadataKeys); err != nil {
			return nil, domain.NewRetrievalError(domain.RetrievalMalformed, "pgvector.scan", fmt.Errorf("node %s: %w", node.ID, err))
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, resilience.RetrievalFailure("pgvector.iterate", err)
	}
	return nodes, nil
}
