package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	ValidationsTotal    *prometheus.CounterVec
	StageDuration       *prometheus.HistogramVec
	HTTPAttemptsTotal   *prometheus.CounterVec
	CodesInQueue        *prometheus.GaugeVec
	JobsTotal           *prometheus.CounterVec
	ActiveJobs          prometheus.Gauge
}

// New registers the metrics with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		ValidationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validations_total",
				Help: "Total number of stage validations by outcome.",
			},
			[]string{"stage", "status"}, // stage: http, browser
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stage_duration_seconds",
				Help:    "Duration of a single code validation per stage.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
		HTTPAttemptsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_stage_attempts_total",
				Help: "Total number of requests made against target endpoints.",
			},
			[]string{"failure"},
		),
		CodesInQueue: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "codes_in_queue",
				Help: "Current number of codes waiting in a stage inbox.",
			},
			[]string{"stage"},
		),
		JobsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobs_total",
				Help: "Total number of finished job runs.",
			},
			[]string{"status"}, // status: completed, failed
		),
		ActiveJobs: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_jobs",
				Help: "Current number of running job tasks.",
			},
		),
	}
}

// ObserveValidation records one stage verdict.
func (m *Metrics) ObserveValidation(stage, status string, d time.Duration) {
	m.ValidationsTotal.WithLabelValues(stage, status).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
