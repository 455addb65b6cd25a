// Package metrics exposes Prometheus collectors for the listbridge service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scrapePassesTotal       *prometheus.CounterVec
	entriesEmittedTotal     *prometheus.CounterVec
	itemsSkippedTotal       *prometheus.CounterVec
	fetchRetriesTotal       *prometheus.CounterVec
	rateLimitDelaySeconds   *prometheus.HistogramVec
	traceDepth              prometheus.Histogram
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDurationSecs *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapePassesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listbridge_scrape_passes_total",
				Help: "Total number of scrape passes, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		entriesEmittedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listbridge_entries_emitted_total",
				Help: "Total number of resolved entries published, labeled by source.",
			},
			[]string{"source"},
		)

		itemsSkippedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listbridge_items_skipped_total",
				Help: "Total number of watchlist items skipped, labeled by source and reason.",
			},
			[]string{"source", "reason"},
		)

		fetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listbridge_fetch_retries_total",
				Help: "Total number of fetch retries, labeled by host.",
			},
			[]string{"host"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "listbridge_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations, labeled by host.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		traceDepth = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "listbridge_trace_depth",
				Help:    "Histogram of relation-graph walk depths per traced anime.",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests served, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePass increments the scrape pass counter for the given outcome.
func ObservePass(outcome string) {
	if scrapePassesTotal == nil {
		return
	}
	scrapePassesTotal.WithLabelValues(outcome).Inc()
}

// ObserveEntry increments the emitted-entry counter for the given source.
func ObserveEntry(source string) {
	if entriesEmittedTotal == nil {
		return
	}
	entriesEmittedTotal.WithLabelValues(source).Inc()
}

// ObserveSkip increments the skipped-item counter.
func ObserveSkip(source, reason string) {
	if itemsSkippedTotal == nil {
		return
	}
	itemsSkippedTotal.WithLabelValues(source, reason).Inc()
}

// ObserveFetchRetry increments the retry counter for the given host.
func ObserveFetchRetry(host string) {
	if fetchRetriesTotal == nil {
		return
	}
	fetchRetriesTotal.WithLabelValues(host).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	if rateLimitDelaySeconds == nil {
		return
	}
	rateLimitDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveTraceDepth records how many nodes a relation walk visited.
func ObserveTraceDepth(depth int) {
	if traceDepth == nil {
		return
	}
	traceDepth.Observe(float64(depth))
}

// ObserveHTTPRequest increments the HTTP serving metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSecs.WithLabelValues(method, route).Observe(duration.Seconds())
}
