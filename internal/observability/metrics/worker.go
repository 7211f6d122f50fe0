package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	queryTotal    *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	queryInFlight prometheus.Gauge

	*RAGMetrics
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	queryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sra",
			Subsystem: "worker",
			Name:      "query_requests_total",
			Help:      "Total query requests served over the message bus by status.",
		},
		[]string{"service", "status"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sra",
			Subsystem: "worker",
			Name:      "query_duration_seconds",
			Help:      "Query request handling duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	queryInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sra",
			Subsystem: "worker",
			Name:      "query_in_flight",
			Help:      "Number of in-flight query requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(queryTotal, queryDuration, queryInFlight)

	return &WorkerMetrics{
		registry:      registry,
		queryTotal:    queryTotal,
		queryDuration: queryDuration,
		queryInFlight: queryInFlight,
		RAGMetrics:    newRAGMetrics(registry),
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartQuery() {
	m.queryInFlight.Inc()
}

func (m *WorkerMetrics) FinishQuery(service string, duration time.Duration, err error) {
	m.queryInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.queryTotal.WithLabelValues(service, status).Inc()
	m.queryDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}
