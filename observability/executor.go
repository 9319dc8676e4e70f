package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ExecutorMetrics tracks transaction and callback outcomes.
type ExecutorMetrics struct {
	transactions *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	callbacks    *prometheus.CounterVec
}

var (
	executorOnce    sync.Once
	executorMetrics *ExecutorMetrics
)

func Executor() *ExecutorMetrics {
	executorOnce.Do(func() {
		executorMetrics = &ExecutorMetrics{
			transactions: counterVec("executor", "transactions_total",
				"Executed transactions by operation and outcome.", "operation", "outcome"),
			latency: latencyVec("executor", "transaction_duration_seconds",
				"Transaction latency by operation.", "operation"),
			callbacks: counterVec("executor", "callbacks_total",
				"Acceptance callbacks dispatched by outcome.", "outcome"),
		}
		prometheus.MustRegister(executorMetrics.transactions, executorMetrics.latency, executorMetrics.callbacks)
	})
	return executorMetrics
}

// Observe records one transaction. A nil receiver is a no-op so the
// executor can run without metrics.
func (m *ExecutorMetrics) Observe(operation string, took time.Duration, err error) {
	if m == nil {
		return
	}
	op := label(operation)
	m.transactions.WithLabelValues(op, outcomeLabel(err)).Inc()
	m.latency.WithLabelValues(op).Observe(took.Seconds())
}

func (m *ExecutorMetrics) RecordCallback(err error) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues(outcomeLabel(err)).Inc()
}
