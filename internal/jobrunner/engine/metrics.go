package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/G-Research/jobrunner/internal/jobrunner/jobdb"
)

const MetricPrefix = "jobrunner_"

type Metrics struct {
	submitted     prometheus.Counter
	finished      *prometheus.CounterVec
	queueDepth    prometheus.Gauge
	jobs          *prometheus.GaugeVec
	duration      *prometheus.HistogramVec
	queueWaitTime prometheus.Histogram
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		submitted: factory.NewCounter(prometheus.CounterOpts{
			Name: MetricPrefix + "jobs_submitted_total",
			Help: "Number of jobs submitted",
		}),
		finished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPrefix + "jobs_finished_total",
			Help: "Number of jobs that reached a terminal state",
		}, []string{"status"}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: MetricPrefix + "queue_depth",
			Help: "Number of jobs waiting to be executed",
		}),
		jobs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricPrefix + "jobs",
			Help: "Number of jobs in each status, sampled by the stats task",
		}, []string{"status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricPrefix + "job_duration_seconds",
			Help:    "Time between a job starting and finishing",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"mode", "status"}),
		queueWaitTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricPrefix + "job_queue_wait_seconds",
			Help:    "Time between a job being submitted and starting",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}),
	}
}

func (m *Metrics) recordSubmitted(queueDepth int) {
	m.submitted.Inc()
	m.queueDepth.Set(float64(queueDepth))
}

func (m *Metrics) recordStarted(job *jobdb.Job, queueDepth int) {
	m.queueDepth.Set(float64(queueDepth))
	if job.StartedAt != nil {
		m.queueWaitTime.Observe(job.StartedAt.Sub(job.CreatedAt).Seconds())
	}
}

func (m *Metrics) recordFinished(job *jobdb.Job) {
	m.finished.WithLabelValues(string(job.Status)).Inc()
	if job.StartedAt != nil && job.FinishedAt != nil {
		m.duration.WithLabelValues(modeLabel(job.Mode), string(job.Status)).Observe(job.FinishedAt.Sub(*job.StartedAt).Seconds())
	}
}

func (m *Metrics) recordCounts(counts map[jobdb.Status]int, queueDepth int) {
	m.queueDepth.Set(float64(queueDepth))
	for status, n := range counts {
		m.jobs.WithLabelValues(string(status)).Set(float64(n))
	}
}

// Modes are caller supplied, so anything unrecognised shares one label value.
func modeLabel(mode jobdb.Mode) string {
	switch mode {
	case jobdb.ModeCpu, jobdb.ModeIo, jobdb.ModeMixed:
		return string(mode)
	default:
		return "other"
	}
}
