// Package metrics exposes Prometheus collectors for listingwatch.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sourcesTotal               *prometheus.CounterVec
	recordsInsertedTotal       prometheus.Counter
	fetchTotal                 *prometheus.CounterVec
	batchDurationSeconds       prometheus.Histogram
	batchRunning               prometheus.Gauge
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry. It is safe to call
// more than once; every Observe function calls it.
func Init() {
	once.Do(func() {
		sourcesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listingwatch_sources_total",
				Help: "Sources processed, labeled by audit status.",
			},
			[]string{"status"},
		)

		recordsInsertedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "listingwatch_records_inserted_total",
				Help: "Records inserted for the first time.",
			},
		)

		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listingwatch_fetch_total",
				Help: "Page fetches, labeled by path (http or headless) and result.",
			},
			[]string{"path", "result"},
		)

		batchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "listingwatch_batch_duration_seconds",
				Help:    "Wall time of completed batches.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
		)

		batchRunning = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "listingwatch_batch_running",
				Help: "1 while a batch is in progress.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "listingwatch_rate_limit_delay_seconds",
				Help:    "Time spent waiting for a per-host rate limit token.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname for use as a label. It returns
// "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveSource counts one processed source.
func ObserveSource(status string) {
	Init()
	sourcesTotal.WithLabelValues(status).Inc()
}

// ObserveRecordsInserted adds newly inserted records.
func ObserveRecordsInserted(n int) {
	Init()
	if n > 0 {
		recordsInsertedTotal.Add(float64(n))
	}
}

// ObserveFetch counts one fetch attempt.
func ObserveFetch(path, result string) {
	Init()
	fetchTotal.WithLabelValues(path, result).Inc()
}

// BatchStarted flips the running gauge on.
func BatchStarted() {
	Init()
	batchRunning.Set(1)
}

// BatchFinished records the batch duration and flips the running gauge off.
func BatchFinished(d time.Duration) {
	Init()
	batchRunning.Set(0)
	batchDurationSeconds.Observe(d.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveHTTPRequest records one API request.
func ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(d.Seconds())
}
