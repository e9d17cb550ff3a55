package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storefront"

// JobMetrics covers polling workers. Runs are counted by result, and the last
// success timestamp lets an alert fire when a worker silently stalls.
type JobMetrics struct {
	runs         *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	lastSuccess  *prometheus.GaugeVec
	outboxEvents *prometheus.CounterVec
	backlog      prometheus.Gauge
}

// NewJobMetrics registers on reg. A nil reg yields a no-op recorder.
func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	m := &JobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "job_runs_total",
			Help: "Worker iterations by job and result.",
		}, []string{"job", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "job_duration_seconds",
			Help:    "Worker iteration duration.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful iteration.",
		}, []string{"job"}),
		outboxEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "outbox_events_total",
			Help: "Outbox rows handled by the publisher, by outcome.",
		}, []string{"outcome"}),
		backlog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "outbox_backlog",
			Help: "Pending outbox rows seen at the last poll.",
		}),
	}
	reg.MustRegister(m.runs, m.duration, m.lastSuccess, m.outboxEvents, m.backlog)
	return m
}

// Observe records one iteration of job that began at started.
func (m *JobMetrics) Observe(job string, started time.Time, err error) {
	if m == nil || m.runs == nil {
		return
	}
	job = normalizeLabel(job)
	m.duration.WithLabelValues(job).Observe(time.Since(started).Seconds())
	if err != nil {
		m.runs.WithLabelValues(job, "failure").Inc()
		return
	}
	m.runs.WithLabelValues(job, "success").Inc()
	m.lastSuccess.WithLabelValues(job).SetToCurrentTime()
}

// CountOutbox adds n rows with the given outcome: published, retrying or parked.
func (m *JobMetrics) CountOutbox(outcome string, n int) {
	if m == nil || m.outboxEvents == nil || n <= 0 {
		return
	}
	m.outboxEvents.WithLabelValues(normalizeLabel(outcome)).Add(float64(n))
}

func (m *JobMetrics) SetOutboxBacklog(n int64) {
	if m == nil || m.backlog == nil {
		return
	}
	m.backlog.Set(float64(n))
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
