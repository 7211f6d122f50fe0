package httpadapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/kirillkom/slide-rag-assistant/internal/config"
	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
	"github.com/kirillkom/slide-rag-assistant/internal/core/ports"
	"github.com/kirillkom/slide-rag-assistant/internal/core/usecase"
	"github.com/kirillkom/slide-rag-assistant/internal/observability/metrics"
)

const (
	serviceName     = "api"
	maxRequestBytes = 1 << 20
)

type Router struct {
	cfg       config.Config
	query     ports.QueryService
	sessions  ports.SessionService
	formatter usecase.ResponseFormatter
	metrics   *metrics.HTTPServerMetrics
	openapi   *openAPIValidator
	markdown  goldmark.Markdown
}

// NewRouter wires the HTTP surface. httpMetrics may be nil.
func NewRouter(
	cfg config.Config,
	query ports.QueryService,
	sessions ports.SessionService,
	formatter usecase.ResponseFormatter,
	httpMetrics *metrics.HTTPServerMetrics,
) (*Router, error) {
	validator, err := newOpenAPIValidator()
	if err != nil {
		return nil, err
	}
	return &Router{
		cfg:       cfg,
		query:     query,
		sessions:  sessions,
		formatter: formatter,
		metrics:   httpMetrics,
		openapi:   validator,
		markdown:  goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}, nil
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/query", rt.queryHandler)
	api.HandleFunc("POST /v1/sessions", rt.startSession)
	api.HandleFunc("POST /v1/sessions/{session_id}/messages", rt.sendMessage)
	api.HandleFunc("DELETE /v1/sessions/{session_id}", rt.endSession)

	var apiHandler http.Handler = rt.openapi.middleware(api)
	apiHandler = backpressureMiddleware(apiHandler, rt.cfg.APIMaxInFlight, rt.cfg.APIMaxWait)
	apiHandler = rateLimitMiddleware(apiHandler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.json", rt.openapi.serveDocument)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.Handle("/v1/", apiHandler)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) queryHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_input", "query is required")
		return
	}

	start := time.Now()
	result, err := rt.query.Answer(r.Context(), query)
	if err != nil {
		slog.WarnContext(r.Context(), "query_failed",
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
		writeDomainError(w, r, err)
		return
	}
	slog.InfoContext(r.Context(), "query_answered",
		"request_id", requestIDFromContext(r.Context()),
		"sources", len(result.SourceNodes),
		"images", len(result.ImageRefs),
		"skipped_images", len(result.ImageSkips),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	payload := rt.formatter.Format(result)
	rt.writePayload(w, r, payload)
}

func (rt *Router) startSession(w http.ResponseWriter, r *http.Request) {
	session, err := rt.sessions.Start(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (rt *Router) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}

	payload, err := rt.sessions.Send(r.Context(), r.PathValue("session_id"), req.Message)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	rt.writePayload(w, r, *payload)
}

func (rt *Router) endSession(w http.ResponseWriter, r *http.Request) {
	if err := rt.sessions.End(r.Context(), r.PathValue("session_id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writePayload adds answer_html when the caller asks for ?format=html.
func (rt *Router) writePayload(w http.ResponseWriter, r *http.Request, payload domain.DisplayPayload) {
	if r.URL.Query().Get("format") == "html" {
		html, err := rt.renderMarkdown(payload.Answer)
		if err != nil {
			slog.WarnContext(r.Context(), "answer_render_failed", "error", err)
		} else {
			payload.AnswerHTML = html
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func (rt *Router) renderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := rt.markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := decoder.Decode(dst); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode request", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, kind, message string) {
	writeJSON(w, status, map[string]string{
		"error":      message,
		"kind":       kind,
		"request_id": requestIDFromContext(r.Context()),
	})
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, mapErrorToHTTPStatus(err), errorKind(err), err.Error())
}
