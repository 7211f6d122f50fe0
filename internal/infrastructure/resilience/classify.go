package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
)

// StatusError is implemented by adapter errors that carry an upstream HTTP status.
type StatusError interface {
	error
	HTTPStatus() int
}

// ClassifyTransportError is the shared policy for HTTP-backed retrieval and completion backends:
// caller cancellation is neither retried nor counted, 408/429/5xx and network failures are retried,
// other statuses are permanent and do not trip the breaker.
func ClassifyTransportError(err error) ErrorClassification {
	if err == nil {
		return ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if IsCircuitOpen(err) {
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}

	var statusErr StatusError
	if errors.As(err, &statusErr) {
		if IsRetryableHTTPStatus(statusErr.HTTPStatus()) {
			return ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}

	return ErrorClassification{Retryable: false, RecordFailure: true}
}

func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// CompletionFailure types an adapter error as a CompletionError unless it already is one.
func CompletionFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := domain.AsCompletionError(err); ok {
		return err
	}
	kind := domain.CompletionUnavailable
	var statusErr StatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = domain.CompletionTimeout
	case errors.As(err, &statusErr) && isPermanentStatus(statusErr.HTTPStatus()):
		kind = domain.CompletionRejected
	}
	return domain.NewCompletionError(kind, op, err)
}

// RetrievalFailure types an adapter error as a RetrievalError unless it already is one.
func RetrievalFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := domain.AsRetrievalError(err); ok {
		return err
	}
	kind := domain.RetrievalUnavailable
	var statusErr StatusError
	if errors.As(err, &statusErr) && isPermanentStatus(statusErr.HTTPStatus()) {
		kind = domain.RetrievalRejected
	}
	return domain.NewRetrievalError(kind, op, err)
}

func isPermanentStatus(code int) bool {
	return code >= 400 && code < 500 && !IsRetryableHTTPStatus(code)
}
