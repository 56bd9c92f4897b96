// Package metrics provides Prometheus metrics for the clipper pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clipper"

// Metrics groups the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	Articles         *prometheus.CounterVec
	ProviderFailures prometheus.Counter
	Runs             *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	LastRun          prometheus.Gauge
	ScoreLatency     prometheus.Histogram
}

// New registers the collectors on reg. Passing prometheus.NewRegistry() keeps tests isolated.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Articles: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "articles_total",
				Help:      "Articles processed, by outcome",
			},
			[]string{"outcome"},
		),
		ProviderFailures: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_failures_total",
				Help:      "Provider fetches that failed",
			},
		),
		Runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Pipeline runs, by status",
			},
			[]string{"status"},
		),
		RunDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of pipeline runs in seconds",
				Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
			},
		),
		LastRun: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last run finished",
			},
		),
		ScoreLatency: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "score_duration_seconds",
				Help:      "Duration of scorer calls in seconds, retries included",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

// RecordArticles adds n articles with the given outcome.
func (m *Metrics) RecordArticles(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Articles.WithLabelValues(outcome).Add(float64(n))
}

// RecordProviderFailures adds n provider failures.
func (m *Metrics) RecordProviderFailures(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ProviderFailures.Add(float64(n))
}

// RecordScore observes one scorer call.
func (m *Metrics) RecordScore(d time.Duration) {
	if m == nil {
		return
	}
	m.ScoreLatency.Observe(d.Seconds())
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(status string, d time.Duration, finished time.Time) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(status).Inc()
	m.RunDuration.Observe(d.Seconds())
	m.LastRun.Set(float64(finished.Unix()))
}
