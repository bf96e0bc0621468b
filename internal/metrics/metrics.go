// Package metrics exposes Prometheus collectors for the console.
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
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	progressMessagesTotal      *prometheus.CounterVec
	progressConnected          prometheus.Gauge
	progressReconnectsTotal    prometheus.Counter
	managerRequestsTotal       *prometheus.CounterVec
	managerRequestSeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times; every Observe helper calls it.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "purifier_http_requests_total",
				Help: "Total number of console HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "purifier_http_request_duration_seconds",
				Help:    "Histogram of console HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		progressMessagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "purifier_progress_messages_total",
				Help: "Inbound progress frames, labeled by outcome (ok, malformed).",
			},
			[]string{"outcome"},
		)

		progressConnected = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "purifier_progress_connected",
				Help: "1 while the progress socket is open, 0 otherwise.",
			},
		)

		progressReconnectsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "purifier_progress_reconnects_total",
				Help: "Reconnect attempts scheduled after the progress socket was lost.",
			},
		)

		managerRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "purifier_manager_requests_total",
				Help: "Calls to the manager API, labeled by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		)

		managerRequestSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "purifier_manager_request_duration_seconds",
				Help:    "Latency of manager API calls, labeled by operation.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"operation"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveHTTPRequest records one served console request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveProgressMessage counts one inbound progress frame.
func ObserveProgressMessage(outcome string) {
	Init()
	progressMessagesTotal.WithLabelValues(outcome).Inc()
}

// SetProgressConnected flips the progress connection gauge.
func SetProgressConnected(connected bool) {
	Init()
	if connected {
		progressConnected.Set(1)
		return
	}
	progressConnected.Set(0)
}

// ObserveProgressReconnect counts one scheduled reconnect.
func ObserveProgressReconnect() {
	Init()
	progressReconnectsTotal.Inc()
}

// ObserveManagerRequest records one manager API call.
func ObserveManagerRequest(operation string, err error, duration time.Duration) {
	Init()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	managerRequestsTotal.WithLabelValues(operation, outcome).Inc()
	managerRequestSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}
