package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operations recorded by the cover image endpoints
const (
	OperationUpload = "upload"
	OperationCommit = "commit"
	OperationDelete = "delete"
)

// Outcomes recorded per operation
const (
	OutcomeDataChanged = "data_changed"
	OutcomeFileDeleted = "file_deleted"
	OutcomeFailed      = "failed"
	OutcomeInvalid     = "invalid"
	OutcomeError       = "error"
	OutcomeStored      = "stored"
)

// Metrics holds the service's Prometheus collectors
type Metrics struct {
	registry    *prometheus.Registry
	operations  *prometheus.CounterVec
	uploadBytes prometheus.Histogram
}

// New registers the collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coverimage",
			Name:      "operations_total",
			Help:      "Cover image operations by outcome.",
		}, []string{"operation", "outcome"}),
		uploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "coverimage",
			Name:      "upload_bytes",
			Help:      "Size of temporary uploads.",
			Buckets:   prometheus.ExponentialBuckets(16<<10, 4, 7),
		}),
	}
	reg.MustRegister(
		m.operations,
		m.uploadBytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveOperation counts one finished operation
func (m *Metrics) ObserveOperation(operation, outcome string) {
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// ObserveUpload records the size of a stored temporary upload
func (m *Metrics) ObserveUpload(size int64) {
	m.uploadBytes.Observe(float64(size))
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
