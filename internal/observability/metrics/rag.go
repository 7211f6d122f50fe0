package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
	"github.com/kirillkom/slide-rag-assistant/internal/core/ports"
)

// RAGMetrics covers query engine outcomes and backend retries. It registers into the
// registry of the process that owns it.
type RAGMetrics struct {
	requestsTotal     *prometheus.CounterVec
	failuresTotal     *prometheus.CounterVec
	retrievedNodes    *prometheus.HistogramVec
	imageRefs         *prometheus.HistogramVec
	skippedImages     *prometheus.CounterVec
	duration          *prometheus.HistogramVec
	backendRetryTotal *prometheus.CounterVec
}

func newRAGMetrics(registry prometheus.Registerer) *RAGMetrics {
	m := &RAGMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sra",
				Subsystem: "rag",
				Name:      "requests_total",
				Help:      "Total answered RAG queries.",
			},
			[]string{"service", "endpoint"},
		),
		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sra",
				Subsystem: "rag",
				Name:      "failures_total",
				Help:      "Total failed RAG queries by error kind.",
			},
			[]string{"service", "endpoint", "kind"},
		),
		retrievedNodes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sra",
				Subsystem: "rag",
				Name:      "retrieved_nodes",
				Help:      "Distribution of source nodes per answered query.",
				Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
			},
			[]string{"service", "endpoint"},
		),
		imageRefs: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sra",
				Subsystem: "rag",
				Name:      "image_refs",
				Help:      "Distribution of images sent to the completion backend per query.",
				Buckets:   []float64{0, 1, 2, 3, 5, 8},
			},
			[]string{"service", "endpoint"},
		),
		skippedImages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sra",
				Subsystem: "rag",
				Name:      "skipped_images_total",
				Help:      "Total image references dropped while splitting evidence.",
			},
			[]string{"service", "endpoint"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sra",
				Subsystem: "rag",
				Name:      "duration_seconds",
				Help:      "RAG query duration in seconds.",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"service", "endpoint"},
		),
		backendRetryTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sra",
				Subsystem: "backend",
				Name:      "retries_total",
				Help:      "Total retried backend calls by operation.",
			},
			[]string{"service", "operation"},
		),
	}
	registry.MustRegister(
		m.requestsTotal,
		m.failuresTotal,
		m.retrievedNodes,
		m.imageRefs,
		m.skippedImages,
		m.duration,
		m.backendRetryTotal,
	)
	return m
}

func (m *RAGMetrics) RecordRAGObservation(service, endpoint string, result *domain.Result, duration time.Duration) {
	if result == nil {
		return
	}
	m.requestsTotal.WithLabelValues(service, endpoint).Inc()
	m.retrievedNodes.WithLabelValues(service, endpoint).Observe(float64(len(result.SourceNodes)))
	m.imageRefs.WithLabelValues(service, endpoint).Observe(float64(len(result.ImageRefs)))
	if skipped := len(result.ImageSkips); skipped > 0 {
		m.skippedImages.WithLabelValues(service, endpoint).Add(float64(skipped))
	}
	m.duration.WithLabelValues(service, endpoint).Observe(duration.Seconds())
}

func (m *RAGMetrics) RecordRAGFailure(service, endpoint string, err error) {
	if err == nil {
		return
	}
	m.failuresTotal.WithLabelValues(service, endpoint, FailureKind(err)).Inc()
}

// RetryObserver matches resilience.RetryObserver.
func (m *RAGMetrics) RetryObserver(service string) func(operation string, attempt int, err error) {
	return func(operation string, _ int, _ error) {
		m.backendRetryTotal.WithLabelValues(service, operation).Inc()
	}
}

// Instrument wraps a query service so every answer is observed under endpoint.
func (m *RAGMetrics) Instrument(service, endpoint string, next ports.QueryService) ports.QueryService {
	return &instrumentedQueryService{next: next, metrics: m, service: service, endpoint: endpoint}
}

// FailureKind is the metric label for a query error.
func FailureKind(err error) string {
	if re, ok := domain.AsRetrievalError(err); ok {
		return "retrieval_" + string(re.Kind)
	}
	if ce, ok := domain.AsCompletionError(err); ok {
		return "completion_" + string(ce.Kind)
	}
	if domain.IsKind(err, domain.ErrInvalidInput) {
		return "invalid_input"
	}
	return "other"
}

type instrumentedQueryService struct {
	next     ports.QueryService
	metrics  *RAGMetrics
	service  string
	endpoint string
}

func (s *instrumentedQueryService) Answer(ctx context.Context, query string) (*domain.Result, error) {
	start := time.Now()
	result, err := s.next.Answer(ctx, query)
	if err != nil {
		s.metrics.RecordRAGFailure(s.service, s.endpoint, err)
		return nil, err
	}
	s.metrics.RecordRAGObservation(s.service, s.endpoint, result, time.Since(start))
	return result, nil
}
