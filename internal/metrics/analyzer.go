package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	analyzerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainlens",
		Subsystem: "analyzer",
		Name:      "requests_total",
		Help:      "Count of core analysis calls.",
	}, []string{"mode", "status"})
	analyzerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chainlens",
		Subsystem: "analyzer",
		Name:      "request_duration_seconds",
		Help:      "Duration of core analysis calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"mode", "status"})
)

// ObserveAnalyzer records one AnalyzeTransaction or AnalyzeBlockFile call
// (spec.md §6), following the ObserveX(..., started time.Time) helper
// convention.
func ObserveAnalyzer(mode string, err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	analyzerRequestsTotal.WithLabelValues(mode, status).Inc()
	analyzerRequestDuration.WithLabelValues(mode, status).Observe(time.Since(started).Seconds())
}
