package httpadapter

import (
	"net/http"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	if re, ok := domain.AsRetrievalError(err); ok {
		if re.Kind == domain.RetrievalUnavailable {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	}
	if ce, ok := domain.AsCompletionError(err); ok {
		if ce.Kind == domain.CompletionTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	}

	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorKind(err error) string {
	if re, ok := domain.AsRetrievalError(err); ok {
		return "retrieval_" + string(re.Kind)
	}
	if ce, ok := domain.AsCompletionError(err); ok {
		return "completion_" + string(ce.Kind)
	}
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "invalid_input"
	case domain.IsKind(err, domain.ErrUnauthorized):
		return "unauthorized"
	case domain.IsKind(err, domain.ErrNotFound):
		return "not_found"
	case domain.IsKind(err, domain.ErrTemporary):
		return "temporary"
	default:
		return "internal"
	}
}
