// Package metrics exposes sync counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marginalia"

// Recorder is the set of events the sync pipeline reports.
type Recorder interface {
	ObservePage(kind string)
	ObserveRateLimit(kind string)
	ObserveFetchError(kind string)
	ObserveFileAction(action string)
	ObserveSync(result string, d time.Duration)
}

// Collector records pipeline events as Prometheus metrics.
type Collector struct {
	pages       *prometheus.CounterVec
	rateLimits  *prometheus.CounterVec
	fetchErrors *prometheus.CounterVec
	fileActions *prometheus.CounterVec
	syncs       *prometheus.CounterVec
	syncSeconds prometheus.Histogram
	lastSuccess prometheus.Gauge
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Remote pages fetched successfully.",
		}, []string{"kind"}),
		rateLimits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests answered with 429 and retried.",
		}, []string{"kind"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Fatal fetch failures.",
		}, []string{"kind"}),
		fileActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_actions_total",
			Help:      "Writer actions by kind.",
		}, []string{"action"}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "syncs_total",
			Help:      "Sync passes by result.",
		}, []string{"result"}),
		syncSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of sync passes.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful pass.",
		}),
	}
	reg.MustRegister(c.pages, c.rateLimits, c.fetchErrors, c.fileActions, c.syncs, c.syncSeconds, c.lastSuccess)
	return c
}

func (c *Collector) ObservePage(kind string)       { c.pages.WithLabelValues(kind).Inc() }
func (c *Collector) ObserveRateLimit(kind string)  { c.rateLimits.WithLabelValues(kind).Inc() }
func (c *Collector) ObserveFetchError(kind string) { c.fetchErrors.WithLabelValues(kind).Inc() }

// ObserveFileAction counts one writer action (created, updated, renamed,
// flagged, trashed, failed).
func (c *Collector) ObserveFileAction(action string) {
	c.fileActions.WithLabelValues(action).Inc()
}

// ObserveSync records a finished pass.
func (c *Collector) ObserveSync(result string, d time.Duration) {
	c.syncs.WithLabelValues(result).Inc()
	c.syncSeconds.Observe(d.Seconds())
	if result == "ok" {
		c.lastSuccess.SetToCurrentTime()
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) ObservePage(string)                {}
func (Nop) ObserveRateLimit(string)           {}
func (Nop) ObserveFetchError(string)          {}
func (Nop) ObserveFileAction(string)          {}
func (Nop) ObserveSync(string, time.Duration) {}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
