package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrTemporary    = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

type RetrievalErrorKind string

const (
	RetrievalUnavailable RetrievalErrorKind = "unavailable"
	RetrievalMalformed   RetrievalErrorKind = "malformed"
	RetrievalRejected    RetrievalErrorKind = "rejected"
)

// RetrievalError is a failure of the retrieval backend. It fails the current query only.
type RetrievalError struct {
	Kind RetrievalErrorKind
	Op   string
	Err  error
}

func NewRetrievalError(kind RetrievalErrorKind, op string, err error) *RetrievalError {
	return &RetrievalError{Kind: kind, Op: op, Err: err}
}

func (e *RetrievalError) Error() string {
	if e == nil {
		return "retrieval error"
	}
	if e.Err == nil {
		return fmt.Sprintf("retrieval %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("retrieval %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

type CompletionErrorKind string

const (
	CompletionUnavailable     CompletionErrorKind = "unavailable"
	CompletionTimeout         CompletionErrorKind = "timeout"
	CompletionInvalidResponse CompletionErrorKind = "invalid_response"
	CompletionRejected        CompletionErrorKind = "rejected"
)

// CompletionError is a failure of the multimodal completion backend.
type CompletionError struct {
	Kind CompletionErrorKind
	Op   string
	Err  error
}

func NewCompletionError(kind CompletionErrorKind, op string, err error) *CompletionError {
	return &CompletionError{Kind: kind, Op: op, Err: err}
}

func (e *CompletionError) Error() string {
	if e == nil {
		return "completion error"
	}
	if e.Err == nil {
		return fmt.Sprintf("completion %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("completion %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

// ImageReferenceError means a node's image_path could not become a usable reference.
// It is absorbed by the evidence splitter and never fails a query.
type ImageReferenceError struct {
	NodeID    string
	Reference string
	Reason    string
}

func (e *ImageReferenceError) Error() string {
	return fmt.Sprintf("image reference %q for node %s: %s", e.Reference, e.NodeID, e.Reason)
}

func AsRetrievalError(err error) (*RetrievalError, bool) {
	var target *RetrievalError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

func AsCompletionError(err error) (*CompletionError, bool) {
	var target *CompletionError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
