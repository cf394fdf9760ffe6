// Package metrics provides Prometheus collectors for the logevents connector.
//
// # Basic Usage
//
//	timer := metrics.NewTimer()
//	resp, err := fetch()
//	metrics.UpstreamRequestDuration.WithLabelValues("logevents", "200").Observe(timer.Stop().Seconds())
//
//	metrics.RecordInvocation("logevents", batch, err)
//
// Collectors are registered on the default registry through promauto and
// served by the HTTP wrapper at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Invocations counts handler calls by outcome (success, or the error type).
	// Labels: connector, outcome
	Invocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logevents_invocations_total",
			Help: "Total number of connector invocations",
		},
		[]string{"connector", "outcome"},
	)

	// RecordsEmitted counts records returned to the platform.
	// Labels: connector, table
	RecordsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logevents_records_emitted_total",
			Help: "Total number of records returned in sync batches",
		},
		[]string{"connector", "table"},
	)

	// PagesPending counts responses that asked the caller to call again.
	// Labels: connector
	PagesPending = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logevents_pages_pending_total",
			Help: "Total number of sync batches returned with hasMore=true",
		},
		[]string{"connector"},
	)

	// Watermark exposes the last advanced watermark as a unix timestamp.
	// Labels: connector
	Watermark = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "logevents_watermark_timestamp_seconds",
			Help: "Watermark of the last completed fetch",
		},
		[]string{"connector"},
	)

	// UpstreamRequestDuration tracks upstream fetch latency in seconds.
	// Labels: connector, status (HTTP status code or "error")
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logevents_upstream_request_duration_seconds",
			Help:    "Latency of upstream log-events requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"connector", "status"},
	)

	// RateLimitWaits tracks time spent waiting on the outbound rate limiter.
	// Labels: host
	RateLimitWaits = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logevents_rate_limit_wait_seconds",
			Help:    "Time spent waiting for the outbound rate limiter",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
		[]string{"host"},
	)
)

// StatusLabel renders an HTTP status code for the status label; 0 means the
// request never got an answer.
func StatusLabel(code int) string {
	if code == 0 {
		return "error"
	}
	return strconv.Itoa(code)
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation. It can be called
// repeatedly.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
