package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gin-gonic/gin"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	documentsTotal  *prometheus.CounterVec
	documentSeconds *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	requestSeconds  prometheus.Histogram
}

// NewMetrics creates and registers the generation metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		documentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "documcp_documents_total",
			Help: "Document generation outcomes by type and status.",
		}, []string{"type", "status"}),
		documentSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "documcp_document_seconds",
			Help:    "Per-document generation latency.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"type"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "documcp_generation_requests_total",
			Help: "Orchestrated requests by overall status.",
		}, []string{"status"}),
		requestSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "documcp_generation_request_seconds",
			Help:    "End-to-end orchestration latency.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
	reg.MustRegister(m.documentsTotal, m.documentSeconds, m.requestsTotal, m.requestSeconds)
	return m
}

// ObserveDocument records one per-type outcome.
func (m *Metrics) ObserveDocument(docType, status string, elapsed time.Duration) {
	m.documentsTotal.WithLabelValues(docType, status).Inc()
	m.documentSeconds.WithLabelValues(docType).Observe(elapsed.Seconds())
}

// ObserveRequest records one whole orchestration.
func (m *Metrics) ObserveRequest(status string, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(status).Inc()
	m.requestSeconds.Observe(elapsed.Seconds())
}

// Handler exposes the registry as a gin handler for /metrics.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
