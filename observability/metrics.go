// Package observability holds the Prometheus collectors shared by the
// lending daemon. Each registry registers once with the default registerer.
package observability

import (
	"math/big"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "frendlend"

func counterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func latencyVec(subsystem, name, help string, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
		Buckets:   prometheus.DefBuckets,
	}, labels)
}

func label(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return "unknown"
	}
	return v
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// bigToFloat converts base-unit amounts for counters. Precision loss above
// 2^53 is accepted.
func bigToFloat(v *big.Int) float64 {
	if v == nil || v.Sign() <= 0 {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
