// Package monitoring exposes Prometheus metrics for the scoring engine and
// its query boundary.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// risk engine.
type Metrics struct {
	QueriesTotal    *prometheus.CounterVec // labels: endpoint, outcome={ok,error}
	ScoringDuration prometheus.Histogram

	// Population snapshot cache.
	SnapshotBuilds prometheus.Counter
	SnapshotHits   prometheus.Counter

	// Shared-state mutation.
	WeightSwaps         prometheus.Counter
	WeightSwapsRejected prometheus.Counter
	FeatureWrites       prometheus.Counter

	// ActiveWeights carries the active configuration version as a label.
	// Only the active version's series exists, pinned at 1.
	ActiveWeights *prometheus.GaugeVec
}

// SetActiveWeights marks one configuration version as active.
func (m *Metrics) SetActiveWeights(version string) {
	m.ActiveWeights.Reset()
	m.ActiveWeights.WithLabelValues(version).Set(1)
}

// New creates and registers all engine metrics with the given registerer.
// Pass prometheus.DefaultRegisterer in production.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riskmap",
			Name:      "queries_total",
			Help:      "Total risk queries served, by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		ScoringDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "riskmap",
			Name:      "scoring_duration_seconds",
			Help:      "Duration of a full query including population normalization.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		SnapshotBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riskmap",
			Name:      "population_snapshot_builds_total",
			Help:      "Full-population score scans computed.",
		}),
		SnapshotHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riskmap",
			Name:      "population_snapshot_hits_total",
			Help:      "Queries served from a cached population snapshot.",
		}),
		WeightSwaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riskmap",
			Name:      "weight_swaps_total",
			Help:      "Weight configurations published.",
		}),
		WeightSwapsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riskmap",
			Name:      "weight_swaps_rejected_total",
			Help:      "Weight configurations rejected at validation.",
		}),
		FeatureWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riskmap",
			Name:      "feature_writes_total",
			Help:      "Per-cell feature vector writes from the enrichment collaborator.",
		}),
		ActiveWeights: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "riskmap",
			Name:      "active_weights_info",
			Help:      "Active weight configuration version, exposed as a label.",
		}, []string{"version"}),
	}

	reg.MustRegister(
		m.QueriesTotal,
		m.ScoringDuration,
		m.SnapshotBuilds,
		m.SnapshotHits,
		m.WeightSwaps,
		m.WeightSwapsRejected,
		m.FeatureWrites,
		m.ActiveWeights,
	)
	return m
}
