// Package telemetry exposes Prometheus metrics for the encode
// pipeline and the daemon's HTTP surface.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opuspress_jobs_total",
			Help: "Total number of encode jobs by terminal outcome",
		},
		[]string{"outcome"},
	)

	JobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opuspress_job_failures_total",
			Help: "Failed encode jobs by failure kind",
		},
		[]string{"kind"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opuspress_job_duration_seconds",
			Help:    "Wall-clock time per encode job",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"tier"},
	)

	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opuspress_jobs_in_flight",
			Help: "Encode jobs currently executing",
		},
	)

	SourceBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opuspress_source_bytes_total",
			Help: "Total bytes of source audio accepted for encoding",
		},
	)

	OutputBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opuspress_output_bytes_total",
			Help: "Total bytes of encoded output produced",
		},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opuspress_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opuspress_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// ObserveJob records the terminal outcome of one encode job.
func ObserveJob(outcome, tier, failureKind string, seconds float64, sourceBytes, outputBytes int64) {
	JobsTotal.WithLabelValues(outcome).Inc()
	JobDuration.WithLabelValues(tier).Observe(seconds)
	if failureKind != "" {
		JobFailuresTotal.WithLabelValues(failureKind).Inc()
	}
	if sourceBytes > 0 {
		SourceBytesTotal.Add(float64(sourceBytes))
	}
	if outputBytes > 0 {
		OutputBytesTotal.Add(float64(outputBytes))
	}
}
