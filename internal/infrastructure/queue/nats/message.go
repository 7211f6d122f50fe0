package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
)

// QueryRequest is the JSON body published on the query subject.
type QueryRequest struct {
	RequestID string `json:"request_id,omitempty"`
	Query     string `json:"query"`
}

// QueryReply is the JSON body sent back to the requester. Exactly one of Payload and Error is set.
type QueryReply struct {
	RequestID string                 `json:"request_id,omitempty"`
	Payload   *domain.DisplayPayload `json:"payload,omitempty"`
	Error     *ReplyError            `json:"error,omitempty"`
}

type ReplyError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

const (
	kindInvalidInput = "invalid_input"
	kindNotFound     = "not_found"
	kindTemporary    = "temporary"
	kindRetrieval    = "retrieval_"
	kindCompletion   = "completion_"
	kindInternal     = "internal"
)

func replyErrorFor(err error) *ReplyError {
	if err == nil {
		return nil
	}
	kind := kindInternal
	if re, ok := domain.AsRetrievalError(err); ok {
		kind = kindRetrieval + string(re.Kind)
	} else if ce, ok := domain.AsCompletionError(err); ok {
		kind = kindCompletion + string(ce.Kind)
	} else if domain.IsKind(err, domain.ErrInvalidInput) {
		kind = kindInvalidInput
	} else if domain.IsKind(err, domain.ErrNotFound) {
		kind = kindNotFound
	} else if domain.IsKind(err, domain.ErrTemporary) {
		kind = kindTemporary
	}
	return &ReplyError{Kind: kind, Message: err.Error()}
}

// Err rebuilds a typed error on the requester side so callers can keep using errors.As.
func (e *ReplyError) Err() error {
	if e == nil {
		return nil
	}
	cause := errors.New(e.Message)
	switch {
	case e.Kind == kindInvalidInput:
		return domain.WrapError(domain.ErrInvalidInput, "remote query", cause)
	case e.Kind == kindNotFound:
		return domain.WrapError(domain.ErrNotFound, "remote query", cause)
	case e.Kind == kindTemporary:
		return domain.WrapError(domain.ErrTemporary, "remote query", cause)
	case strings.HasPrefix(e.Kind, kindRetrieval):
		return domain.NewRetrievalError(domain.RetrievalErrorKind(strings.TrimPrefix(e.Kind, kindRetrieval)), "remote query", cause)
	case strings.HasPrefix(e.Kind, kindCompletion):
		return domain.NewCompletionError(domain.CompletionErrorKind(strings.TrimPrefix(e.Kind, kindCompletion)), "remote query", cause)
	default:
		return fmt.Errorf("remote query: %w", cause)
	}
}

func decodeRequest(data []byte) (QueryRequest, error) {
	var req QueryRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return QueryRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode query request", err)
	}
	return req, nil
}
