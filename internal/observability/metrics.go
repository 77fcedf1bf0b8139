// Package observability records pipeline run outcomes to Prometheus (pull)
// and CloudWatch (push).
package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "agroalerts"

// Run outcomes used as the "outcome" label and the CloudWatch Outcome dimension.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Metrics holds the Prometheus counters and histograms for the jobs and the API.
type Metrics struct {
	PipelineRuns        *prometheus.CounterVec   // labels: task, outcome
	PipelineRunDuration *prometheus.HistogramVec // labels: task
	FieldsSkipped       *prometheus.CounterVec   // labels: task
	AlertsUpserted      prometheus.Counter
	AlertsChanged       prometheus.Counter
	AlertsPublished     prometheus.Counter
	HTTPRequests        *prometheus.CounterVec // labels: method, status
}

var durationBuckets = []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PipelineRuns,
		m.PipelineRunDuration,
		m.FieldsSkipped,
		m.AlertsUpserted,
		m.AlertsChanged,
		m.AlertsPublished,
		m.HTTPRequests,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as
// many as they need without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Job runs by task and outcome.",
		}, []string{"task", "outcome"}),
		PipelineRunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_run_duration_seconds",
			Help:      "Wall-clock duration of a job run.",
			Buckets:   durationBuckets,
		}, []string{"task"}),
		FieldsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fields_skipped_total",
			Help:      "Fields skipped in a run because of provider failures or empty results.",
		}, []string{"task"}),
		AlertsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_upserted_total",
			Help:      "Alert rows written to the store.",
		}),
		AlertsChanged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_changed_total",
			Help:      "Upserted alert rows that were new or differed from history.",
		}),
		AlertsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_published_total",
			Help:      "Alert changes handed to the publisher.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by method and status code.",
		}, []string{"method", "status"}),
	}
}

// RecordRun implements RunRecorder. A nil *Metrics is a no-op.
func (m *Metrics) RecordRun(_ context.Context, task, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(task, outcome).Inc()
	m.PipelineRunDuration.WithLabelValues(task).Observe(duration.Seconds())
}

// RecordAlertsChanged implements RunRecorder.
func (m *Metrics) RecordAlertsChanged(_ context.Context, count int) {
	if m == nil {
		return
	}
	m.AlertsChanged.Add(float64(count))
}

// FieldSkipped counts one skipped field for task.
func (m *Metrics) FieldSkipped(task string) {
	if m == nil {
		return
	}
	m.FieldsSkipped.WithLabelValues(task).Inc()
}

// Upserted counts rows written by the alert store.
func (m *Metrics) Upserted(n int) {
	if m == nil {
		return
	}
	m.AlertsUpserted.Add(float64(n))
}

// Published counts alert changes handed to the publisher.
func (m *Metrics) Published(n int) {
	if m == nil {
		return
	}
	m.AlertsPublished.Add(float64(n))
}

// HTTPRequest counts one served API request.
func (m *Metrics) HTTPRequest(method string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}
