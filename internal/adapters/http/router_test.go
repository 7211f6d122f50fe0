package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/slide-rag-assistant/internal/config"
	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
	"github.com/kirillkom/slide-rag-assistant/internal/core/usecase"
	"github.com/kirillkom/slide-rag-assistant/internal/observability/metrics"
)

type queryFake struct {
	result *domain.Result
	err    error
	calls  atomic.Int32
	last   atomic.Value
}

func (f *queryFake) Answer(_ context.Context, query string) (*domain.Result, error) {
	f.calls.Add(1)
	f.last.Store(query)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type sessionFake struct {
	sessions map[string]bool
}

func newSessionFake() *sessionFake {
	return &sessionFake{sessions: map[string]bool{}}
}

func (f *sessionFake) Start(context.Context) (*domain.Session, error) {
	f.sessions["s-1"] = true
	return &domain.Session{ID: "s-1", Greeting: "Hello!", CreatedAt: time.Unix(0, 0).UTC()}, nil
}

func (f *sessionFake) Send(_ context.Context, sessionID, message string) (*domain.DisplayPayload, error) {
	if !f.sessions[sessionID] {
		return nil, domain.WrapError(domain.ErrNotFound, "send", errors.New("unknown session"))
	}
	return &domain.DisplayPayload{
		Answer:  "echo " + message,
		Sources: []domain.SourceEntry{},
		Images:  []domain.InlineImage{},
	}, nil
}

func (f *sessionFake) End(_ context.Context, sessionID string) error {
	if !f.sessions[sessionID] {
		return domain.WrapError(domain.ErrNotFound, "end", errors.New("unknown session"))
	}
	delete(f.sessions, sessionID)
	return nil
}

func sampleResult() *domain.Result {
	return &domain.Result{
		Answer: "Revenue grew **12%** in Q3.",
		SourceNodes: []domain.ContentNode{
			{ID: "n1", Text: "Q3 revenue slide", Score: 0.9, Metadata: map[string]string{"page_num": "3"}},
			{ID: "n2", Text: "Chart of growth", Score: 0.8, Metadata: map[string]string{"page_num": "4", "image_path": "https://cdn.example.com/p4.png"}},
		},
		ImageRefs: []domain.ImageRef{{NodeID: "n2", URL: "https://cdn.example.com/p4.png", PageNum: "4"}},
	}
}

func newTestHandler(t *testing.T, cfg config.Config, query *queryFake, sessions *sessionFake, m *metrics.HTTPServerMetrics) http.Handler {
	t.Helper()
	if query == nil {
		query = &queryFake{result: sampleResult()}
	}
	if sessions == nil {
		sessions = newSessionFake()
	}
	router, err := NewRouter(cfg, query, sessions, usecase.NewResponseFormatter(usecase.FormatOptions{}), m)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return router.Handler()
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func decodeMap(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", res.Body.String(), err)
	}
	return out
}

func TestQueryReturnsDisplayPayload(t *testing.T) {
	query := &queryFake{result: sampleResult()}
	handler := newTestHandler(t, config.Config{}, query, nil, nil)

	res := postJSON(t, handler, "/v1/query", map[string]string{"query": "  How did revenue change?  "})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if got := query.last.Load(); got != "How did revenue change?" {
		t.Fatalf("expected trimmed query, got %v", got)
	}

	var payload domain.DisplayPayload
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Answer != "Revenue grew **12%** in Q3." || payload.AnswerHTML != "" {
		t.Fatalf("unexpected answer fields: %+v", payload)
	}
	if len(payload.Sources) != 2 || payload.Sources[0].Number != 1 || payload.Sources[1].NodeID != "n2" {
		t.Fatalf("unexpected sources: %+v", payload.Sources)
	}
	if len(payload.Images) != 1 || payload.Images[0].Label != "Image from page 4" {
		t.Fatalf("unexpected images: %+v", payload.Images)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestQueryRendersHTMLOnRequest(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, nil, nil, nil)

	res := postJSON(t, handler, "/v1/query?format=html", map[string]string{"query": "revenue"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	body := decodeMap(t, res)
	html, _ := body["answer_html"].(string)
	if !strings.Contains(html, "<strong>12%</strong>") {
		t.Fatalf("expected rendered markdown, got %q", html)
	}
}

func TestQueryMapsErrorsToStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"retrieval unavailable", domain.NewRetrievalError(domain.RetrievalUnavailable, "retrieve", errors.New("down")), http.StatusServiceUnavailable, "retrieval_unavailable"},
		{"retrieval malformed", domain.NewRetrievalError(domain.RetrievalMalformed, "retrieve", errors.New("bad node")), http.StatusBadGateway, "retrieval_malformed"},
		{"completion timeout", domain.NewCompletionError(domain.CompletionTimeout, "complete", context.DeadlineExceeded), http.StatusGatewayTimeout, "completion_timeout"},
		{"completion invalid", domain.NewCompletionError(domain.CompletionInvalidResponse, "complete", errors.New("empty")), http.StatusBadGateway, "completion_invalid_response"},
		{"invalid input", domain.WrapError(domain.ErrInvalidInput, "answer", errors.New("bad")), http.StatusBadRequest, "invalid_input"},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(t, config.Config{}, &queryFake{err: tc.err}, nil, nil)
			res := postJSON(t, handler, "/v1/query", map[string]string{"query": "q"})
			if res.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, res.Code)
			}
			body := decodeMap(t, res)
			if body["kind"] != tc.kind || body["error"] == "" {
				t.Fatalf("unexpected error body: %v", body)
			}
		})
	}
}

func TestQueryRejectsInvalidRequests(t *testing.T) {
	query := &queryFake{result: sampleResult()}
	handler := newTestHandler(t, config.Config{}, query, nil, nil)

	cases := []struct {
		path string
		body any
	}{
		{"/v1/query", map[string]string{}},
		{"/v1/query", map[string]any{"query": 42}},
		{"/v1/query", map[string]string{"query": "   "}},
		{"/v1/query?format=pdf", map[string]string{"query": "q"}},
	}
	for _, tc := range cases {
		res := postJSON(t, handler, tc.path, tc.body)
		if res.Code != http.StatusBadRequest {
			t.Fatalf("%s %v: expected 400, got %d", tc.path, tc.body, res.Code)
		}
	}
	if query.calls.Load() != 0 {
		t.Fatalf("query service must not be called for invalid requests")
	}
}

func TestSessionLifecycle(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, nil, newSessionFake(), nil)

	res := postJSON(t, handler, "/v1/sessions", map[string]string{})
	if res.Code != http.StatusCreated {
		t.Fatalf("start: expected 201, got %d", res.Code)
	}
	if body := decodeMap(t, res); body["session_id"] != "s-1" || body["greeting"] != "Hello!" {
		t.Fatalf("unexpected session body: %v", body)
	}

	res = postJSON(t, handler, "/v1/sessions/s-1/messages", map[string]string{"message": "hi"})
	if res.Code != http.StatusOK {
		t.Fatalf("send: expected 200, got %d", res.Code)
	}
	if body := decodeMap(t, res); body["answer"] != "echo hi" {
		t.Fatalf("unexpected send body: %v", body)
	}

	del := httptest.NewRequest(http.MethodDelete, "/v1/sessions/s-1", nil)
	delRes := httptest.NewRecorder()
	handler.ServeHTTP(delRes, del)
	if delRes.Code != http.StatusNoContent {
		t.Fatalf("end: expected 204, got %d", delRes.Code)
	}

	res = postJSON(t, handler, "/v1/sessions/s-1/messages", map[string]string{"message": "again"})
	if res.Code != http.StatusNotFound {
		t.Fatalf("send after end: expected 404, got %d", res.Code)
	}
}

func TestServesOpenAPIHealthAndMetrics(t *testing.T) {
	m := metrics.NewHTTPServerMetrics(serviceName)
	handler := newTestHandler(t, config.Config{}, nil, nil, m)

	for _, path := range []string{"/healthz", "/openapi.json"} {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, path, nil))
		if res.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, res.Code)
		}
	}

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "sra_http_requests_total") {
		t.Fatalf("expected http metrics in scrape, got %d", res.Code)
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := map[error]int{
		domain.WrapError(domain.ErrNotFound, "op", errors.New("x")):     http.StatusNotFound,
		domain.WrapError(domain.ErrTemporary, "op", errors.New("x")):    http.StatusServiceUnavailable,
		domain.WrapError(domain.ErrUnauthorized, "op", errors.New("x")): http.StatusUnauthorized,
		domain.NewRetrievalError(domain.RetrievalRejected, "op", nil):   http.StatusBadGateway,
		domain.NewCompletionError(domain.CompletionRejected, "op", nil): http.StatusBadGateway,
	}
	for err, want := range cases {
		if got := mapErrorToHTTPStatus(err); got != want {
			t.Fatalf("%v: expected %d, got %d", err, want, got)
		}
	}
}
