// Package metrics provides Prometheus metrics for the pipeline binaries.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all pipeline metrics.
type Metrics struct {
	// Export job
	DocumentsExported *prometheus.CounterVec
	BatchesWritten    *prometheus.CounterVec
	BatchDuration     *prometheus.HistogramVec
	CollectionOutcome *prometheus.CounterVec

	// Upload stage
	UploadsTotal  *prometheus.CounterVec
	UploadedBytes prometheus.Counter

	// Load trigger
	LoadJobs *prometheus.CounterVec

	registry *prometheus.Registry
	enabled  bool
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// ApplyDefaults sets default values for metrics config.
func (c *Config) ApplyDefaults() {
	if c.Address == "" {
		c.Address = ":9090"
	}
}

// New creates a new metrics instance. A disabled instance is safe to use;
// every record method becomes a no-op.
func New(cfg Config) *Metrics {
	cfg.ApplyDefaults()

	m := &Metrics{
		enabled:  cfg.Enabled,
		registry: prometheus.NewRegistry(),
	}
	if !cfg.Enabled {
		return m
	}

	m.DocumentsExported = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "documents_exported_total",
			Help:      "Total documents exported by collection",
		},
		[]string{"collection"},
	)

	m.BatchesWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "batches_written_total",
			Help:      "Total Parquet batches written by collection",
		},
		[]string{"collection"},
	)

	m.BatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pipeline",
			Name:      "batch_duration_seconds",
			Help:      "Time to accumulate, reconcile and write one batch",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"collection"},
	)

	m.CollectionOutcome = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "collection_outcomes_total",
			Help:      "Collection export outcomes",
		},
		[]string{"status"}, // "exported", "empty", "failed"
	)

	m.UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "uploads_total",
			Help:      "File uploads by status",
		},
		[]string{"status"}, // "success", "skipped", "error"
	)

	m.UploadedBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "uploaded_bytes_total",
			Help:      "Total bytes uploaded to blob storage",
		},
	)

	m.LoadJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "load_jobs_total",
			Help:      "Warehouse load jobs by terminal status",
		},
		[]string{"status"}, // "SUCCESS", "FAILED", "SKIPPED"
	)

	m.registry.MustRegister(
		m.DocumentsExported,
		m.BatchesWritten,
		m.BatchDuration,
		m.CollectionOutcome,
		m.UploadsTotal,
		m.UploadedBytes,
		m.LoadJobs,
	)
	m.registry.MustRegister(prometheus.NewGoCollector())
	m.registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return m
}

// Handler returns an HTTP handler for metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts a metrics HTTP server with /metrics and /health.
func (m *Metrics) StartServer(addr string) error {
	if !m.enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return http.ListenAndServe(addr, mux)
}

// IsEnabled returns true if metrics are enabled.
func (m *Metrics) IsEnabled() bool {
	return m != nil && m.enabled
}

// RecordDocumentsExported adds to the exported-document counter.
func (m *Metrics) RecordDocumentsExported(collection string, count int64) {
	if m != nil && m.enabled && m.DocumentsExported != nil {
		m.DocumentsExported.WithLabelValues(collection).Add(float64(count))
	}
}

// RecordBatchWritten counts one written batch and observes its duration.
func (m *Metrics) RecordBatchWritten(collection string, d time.Duration) {
	if m != nil && m.enabled && m.BatchesWritten != nil {
		m.BatchesWritten.WithLabelValues(collection).Inc()
		m.BatchDuration.WithLabelValues(collection).Observe(d.Seconds())
	}
}

// RecordCollectionOutcome counts a terminal collection status.
func (m *Metrics) RecordCollectionOutcome(status string) {
	if m != nil && m.enabled && m.CollectionOutcome != nil {
		m.CollectionOutcome.WithLabelValues(status).Inc()
	}
}

// RecordUpload counts one upload attempt by status and its size.
func (m *Metrics) RecordUpload(status string, bytes int64) {
	if m != nil && m.enabled && m.UploadsTotal != nil {
		m.UploadsTotal.WithLabelValues(status).Inc()
		if bytes > 0 {
			m.UploadedBytes.Add(float64(bytes))
		}
	}
}

// RecordLoadJob counts one load-trigger terminal status.
func (m *Metrics) RecordLoadJob(status string) {
	if m != nil && m.enabled && m.LoadJobs != nil {
		m.LoadJobs.WithLabelValues(status).Inc()
	}
}
