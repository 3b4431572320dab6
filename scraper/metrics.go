package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper and the reconcile run.
type Metrics struct {
	Registry               *prometheus.Registry
	RequestsTotal          *prometheus.CounterVec
	RequestDuration        prometheus.Histogram
	ItemsScrapedTotal      prometheus.Counter
	RetriesTotal           prometheus.Counter
	ErrorsTotal            *prometheus.CounterVec
	ExtractionErrorsTotal  prometheus.Counter
	PagesTotal             prometheus.Counter
	RunsTotal              *prometheus.CounterVec
	ProductsUpdatedTotal   prometheus.Counter
	LastRunTimestampSecond prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	itemsScraped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_items_scraped_total",
			Help: "Total number of products extracted from listing pages.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)
	extractionErrors := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_extraction_errors_total",
			Help: "Listing pages whose markup could not be traversed and were treated as empty.",
		},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Listing pages fetched successfully.",
		},
	)
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_runs_total",
			Help: "Scrape-and-reconcile runs by outcome.",
		},
		[]string{"outcome"},
	)
	updated := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_products_updated_total",
			Help: "Products inserted or repriced in the record set.",
		},
	)
	lastRun := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraper_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		},
	)

	registry.MustRegister(requests, requestDuration, itemsScraped, retries, errorsTotal,
		extractionErrors, pages, runs, updated, lastRun)

	return &Metrics{
		Registry:               registry,
		RequestsTotal:          requests,
		RequestDuration:        requestDuration,
		ItemsScrapedTotal:      itemsScraped,
		RetriesTotal:           retries,
		ErrorsTotal:            errorsTotal,
		ExtractionErrorsTotal:  extractionErrors,
		PagesTotal:             pages,
		RunsTotal:              runs,
		ProductsUpdatedTotal:   updated,
		LastRunTimestampSecond: lastRun,
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

// AddItems increments the items scraped counter by n.
func (m *Metrics) AddItems(n int) {
	if m == nil {
		return
	}
	m.ItemsScrapedTotal.Add(float64(n))
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

// IncExtractionError counts a page degraded to empty.
func (m *Metrics) IncExtractionError() {
	if m == nil {
		return
	}
	m.ExtractionErrorsTotal.Inc()
}

// IncPage counts a successfully fetched page.
func (m *Metrics) IncPage() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// ObserveRun records the outcome of a run and, on success, how many products changed.
func (m *Metrics) ObserveRun(outcome string, updated int) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		m.ProductsUpdatedTotal.Add(float64(updated))
		m.LastRunTimestampSecond.SetToCurrentTime()
	}
}
