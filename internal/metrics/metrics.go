// Package metrics holds the Prometheus collectors for sync runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rotation_sync"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	runs          *prometheus.CounterVec
	records       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	loadDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Sync runs by job and outcome.",
		}, []string{"job", "outcome"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_loaded_total",
			Help:      "Rows written to the warehouse.",
		}, []string{"job"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Upstream report fetch latency.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 900, 1800, 3600},
		}, []string{"job"}),
		loadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Warehouse write latency.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 12),
		}, []string{"job"}),
	}
	reg.MustRegister(m.runs, m.records, m.fetchDuration, m.loadDuration)
	return m
}

// Run counts one finished sync. outcome is "success" or an error kind.
func (m *Metrics) Run(job, outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job, outcome).Inc()
}

func (m *Metrics) Records(job string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.records.WithLabelValues(job).Add(float64(n))
}

func (m *Metrics) Fetch(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *Metrics) Load(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.loadDuration.WithLabelValues(job).Observe(d.Seconds())
}
