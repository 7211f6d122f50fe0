package ports

import (
	"context"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
)

// Retriever returns at most topK nodes, scored and ordered by descending relevance.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]domain.ContentNode, error)
}

// MultimodalCompleter returns the full generated text for a prompt and zero or more images.
type MultimodalCompleter interface {
	Complete(ctx context.Context, prompt string, images []domain.ImageRef) (string, error)
}

// Embedder builds the query vector for vector-store retrievers.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ConversationStore persists session messages.
type ConversationStore interface {
	EnsureSession(ctx context.Context, sessionID string) error
	NextTurn(ctx context.Context, sessionID string) (int, error)
	AppendMessage(ctx context.Context, message domain.ConversationMessage) error
	ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.ConversationMessage, error)
}
