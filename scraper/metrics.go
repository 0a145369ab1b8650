package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawler.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	RecordsTotal      prometheus.Counter
	PagesTotal        prometheus.Counter
	ImagesStoredTotal prometheus.Counter
	RetriesTotal      prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
	FailuresTotal     *prometheus.CounterVec
	CategoriesTotal   *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_requests_total",
			Help: "Total HTTP requests issued by the crawler.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crawler_request_duration_seconds",
			Help:    "HTTP request latency for crawler requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	records := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_records_total",
			Help: "Total number of book records sent to the sinks.",
		},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_listing_pages_total",
			Help: "Total number of listing pages walked.",
		},
	)
	images := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_images_stored_total",
			Help: "Total number of cover images written to disk.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_errors_total",
			Help: "Total number of crawler errors by type.",
		},
		[]string{"error_type"},
	)
	failures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_failures_total",
			Help: "URLs reported as failed, by stage and error type.",
		},
		[]string{"stage", "error_type"},
	)
	categories := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_categories_total",
			Help: "Finished categories by outcome.",
		},
		[]string{"status"},
	)

	registry.MustRegister(requests, requestDuration, records, pages, images, retries, errorsTotal, failures, categories)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		RecordsTotal:      records,
		PagesTotal:        pages,
		ImagesStoredTotal: images,
		RetriesTotal:      retries,
		ErrorsTotal:       errorsTotal,
		FailuresTotal:     failures,
		CategoriesTotal:   categories,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncRecords increments the records counter.
func (m *Metrics) IncRecords() {
	if m == nil {
		return
	}
	m.RecordsTotal.Inc()
}

func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

func (m *Metrics) IncImages() {
	if m == nil {
		return
	}
	m.ImagesStoredTotal.Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncFailure counts a reported failure.
func (m *Metrics) IncFailure(stage, errorType string) {
	if m == nil {
		return
	}
	m.FailuresTotal.WithLabelValues(stage, errorType).Inc()
}

// IncCategory counts a finished category under its outcome label.
func (m *Metrics) IncCategory(status string) {
	if m == nil {
		return
	}
	m.CategoriesTotal.WithLabelValues(status).Inc()
}
