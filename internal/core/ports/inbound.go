package ports

import (
	"context"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
)

// QueryService answers one natural-language question over the slide corpus.
type QueryService interface {
	Answer(ctx context.Context, query string) (*domain.Result, error)
}

// SessionService routes chat messages to a per-session query engine.
type SessionService interface {
	Start(ctx context.Context) (*domain.Session, error)
	Send(ctx context.Context, sessionID, message string) (*domain.DisplayPayload, error)
	End(ctx context.Context, sessionID string) error
}
