// Package llm holds completion-port decorators shared by every provider adapter.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
	"github.com/kirillkom/slide-rag-assistant/internal/core/ports"
)

type timeoutCompleter struct {
	next    ports.MultimodalCompleter
	timeout time.Duration
}

// WithTimeout bounds every completion call. Expiry of this bound is reported as a
// CompletionError of kind timeout regardless of how the provider surfaced it.
func WithTimeout(next ports.MultimodalCompleter, timeout time.Duration) ports.MultimodalCompleter {
	if timeout <= 0 {
		return next
	}
	return &timeoutCompleter{next: next, timeout: timeout}
}

func (c *timeoutCompleter) Complete(ctx context.Context, prompt string, images []domain.ImageRef) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	answer, err := c.next.Complete(callCtx, prompt, images)
	if err == nil {
		return answer, nil
	}
	if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return "", domain.NewCompletionError(domain.CompletionTimeout, "complete",
			fmt.Errorf("no answer within %s: %w", c.timeout, err))
	}
	return "", err
}
