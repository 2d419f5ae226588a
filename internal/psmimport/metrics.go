package psmimport

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/524D/mzpep/internal/inputmap"
)

// Metrics counts import activity. A nil *Metrics records nothing.
type Metrics struct {
	matches  prometheus.Counter
	failures prometheus.Counter
	entries  *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics registers the import metrics with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		matches: f.NewCounter(prometheus.CounterOpts{
			Name: "mzpep_import_matches_total",
			Help: "Number of spectrum matches processed by the import workers.",
		}),
		failures: f.NewCounter(prometheus.CounterOpts{
			Name: "mzpep_import_worker_failures_total",
			Help: "Number of matches that failed in a worker.",
		}),
		entries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mzpep_import_entries_total",
			Help: "Number of scores added to the target/decoy maps.",
		}, []string{"advocate", "decoy"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mzpep_import_duration_seconds",
			Help:    "Wall time of complete import runs.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}
}

func (m *Metrics) match() {
	if m != nil {
		m.matches.Inc()
	}
}

func (m *Metrics) failure() {
	if m != nil {
		m.failures.Inc()
	}
}

func (m *Metrics) entry(advocate inputmap.AdvocateID, decoy bool) {
	if m == nil {
		return
	}
	d := "false"
	if decoy {
		d = "true"
	}
	m.entries.WithLabelValues(advocate.String(), d).Inc()
}

func (m *Metrics) observe(d time.Duration) {
	if m != nil {
		m.duration.Observe(d.Seconds())
	}
}
