// Package metrics defines the prometheus collectors for enhancement jobs.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	jobs        *prometheus.CounterVec
	stages      *prometheus.HistogramVec
	active      prometheus.Gauge
	uploadBytes prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		jobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceboost_jobs_total",
			Help: "Enhancement jobs by final outcome",
		}, []string{"outcome"}),
		stages: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voiceboost_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"stage"}),
		active: f.NewGauge(prometheus.GaugeOpts{
			Name: "voiceboost_active_jobs",
			Help: "Jobs currently running through the pipeline",
		}),
		uploadBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceboost_upload_bytes",
			Help:    "Size of accepted uploads",
			Buckets: prometheus.ExponentialBuckets(1<<20, 2, 8),
		}),
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) ObserveUpload(size int64) {
	if m == nil {
		return
	}
	m.uploadBytes.Observe(float64(size))
}

func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.active.Inc()
}

// JobFinished records the outcome of a job that went through JobStarted.
func (m *Metrics) JobFinished(outcome string) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.jobs.WithLabelValues(outcome).Inc()
}

// JobRejected records a job that failed its pre-flight checks.
func (m *Metrics) JobRejected(outcome string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(outcome).Inc()
}
