// ABOUTME: Prometheus collectors for pipeline stages, scheduled jobs, and store writes.
// ABOUTME: Registered on the default registry and served by `healthlake serve`.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job run statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "healthlake_build_info",
			Help: "Build information of healthlake",
		},
		[]string{"version"},
	)

	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthlake_job_runs_total",
			Help: "Total number of job and stage runs by status",
		},
		[]string{"job", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthlake_job_duration_seconds",
			Help:    "Duration of job and stage runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"job"},
	)

	JobSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthlake_job_skipped_total",
			Help: "Total number of scheduled runs skipped because the previous run was still in progress",
		},
		[]string{"job"},
	)

	RowsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthlake_rows_written_total",
			Help: "Total number of rows written to the analytical store by table",
		},
		[]string{"table"},
	)
)

// ObserveRun records one job or stage run.
func ObserveRun(job string, seconds float64, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	JobRunsTotal.WithLabelValues(job, status).Inc()
	JobDuration.WithLabelValues(job).Observe(seconds)
}
