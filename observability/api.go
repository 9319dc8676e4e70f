package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// APIMetrics records lendingd handler outcomes per module and method.
type APIMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	apiOnce    sync.Once
	apiMetrics *APIMetrics
)

func API() *APIMetrics {
	apiOnce.Do(func() {
		apiMetrics = &APIMetrics{
			requests: counterVec("api", "requests_total",
				"Handled lendingd requests by module, method and HTTP status.", "module", "method", "status"),
			latency: latencyVec("api", "request_duration_seconds",
				"Handler latency by module and method.", "module", "method"),
			throttles: counterVec("api", "throttled_total",
				"Requests rejected before reaching a handler, by route group and reason.", "group", "reason"),
		}
		prometheus.MustRegister(apiMetrics.requests, apiMetrics.latency, apiMetrics.throttles)
	})
	return apiMetrics
}

// Observe records one handled request. status is the HTTP status written.
func (m *APIMetrics) Observe(module, method string, status int, took time.Duration) {
	module, method = label(module), label(method)
	m.requests.WithLabelValues(module, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(module, method).Observe(took.Seconds())
}

// RecordThrottle counts a request turned away for reason, e.g. "rate_limit".
func (m *APIMetrics) RecordThrottle(group, reason string) {
	m.throttles.WithLabelValues(label(group), label(reason)).Inc()
}
