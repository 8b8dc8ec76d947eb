// Package metrics exposes the process-wide Prometheus collectors for pacing,
// fetching, quarantine and the ops HTTP server. Run and unit progress is
// exported by the progress sinks.
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
	pacingDelaySeconds      *prometheus.HistogramVec
	pacingCurrentSeconds    *prometheus.GaugeVec
	fetchAttemptsTotal      *prometheus.CounterVec
	fetchRetriesTotal       *prometheus.CounterVec
	fetchExhaustedTotal     *prometheus.CounterVec
	quarantinedTotal        *prometheus.CounterVec
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDurationSecs *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pacingDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hltv_pacing_delay_seconds",
				Help:    "Histogram of pacing waits actually slept, labeled by tier.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"tier"},
		)

		pacingCurrentSeconds = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hltv_pacing_current_delay_seconds",
				Help: "Current base delay of each pacing governor.",
			},
			[]string{"governor"},
		)

		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hltv_fetch_attempts_total",
				Help: "Fetch attempts, labeled by result kind (ok or an error kind).",
			},
			[]string{"result"},
		)

		fetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hltv_fetch_retries_total",
				Help: "Retries scheduled after a retriable fetch failure, labeled by kind.",
			},
			[]string{"kind"},
		)

		fetchExhaustedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hltv_fetch_retry_exhausted_total",
				Help: "Fetches that ran out of attempts, labeled by last error kind.",
			},
			[]string{"kind"},
		)

		quarantinedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hltv_quarantined_total",
				Help: "Candidate records diverted to quarantine, labeled by entity kind.",
			},
			[]string{"kind"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
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

// ObservePacingDelay records a pacing wait for the given tier.
func ObservePacingDelay(tier string, d time.Duration) {
	Init()
	pacingDelaySeconds.WithLabelValues(tier).Observe(d.Seconds())
}

// SetPacingDelay publishes a governor's current base delay.
func SetPacingDelay(governor string, d time.Duration) {
	Init()
	pacingCurrentSeconds.WithLabelValues(governor).Set(d.Seconds())
}

// ObserveFetchAttempt counts one fetch attempt by result.
func ObserveFetchAttempt(result string) {
	Init()
	fetchAttemptsTotal.WithLabelValues(result).Inc()
}

// ObserveRetry counts a scheduled retry.
func ObserveRetry(kind string) {
	Init()
	fetchRetriesTotal.WithLabelValues(kind).Inc()
}

// ObserveRetryExhausted counts a fetch that ran out of attempts.
func ObserveRetryExhausted(kind string) {
	Init()
	fetchExhaustedTotal.WithLabelValues(kind).Inc()
}

// AddQuarantined counts quarantined candidates of one kind.
func AddQuarantined(kind string, n int) {
	if n <= 0 {
		return
	}
	Init()
	quarantinedTotal.WithLabelValues(kind).Add(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSecs.WithLabelValues(method, route).Observe(duration.Seconds())
}
