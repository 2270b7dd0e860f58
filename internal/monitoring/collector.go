package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/riskmap/internal/grid"
	"github.com/sells-group/riskmap/internal/store"
)

// StateSnapshot holds a point-in-time view of persisted engine state.
type StateSnapshot struct {
	GridInitialized bool      `json:"grid_initialized"`
	Cells           int       `json:"cells"`
	EnrichedCells   int       `json:"enriched_cells"`
	Coverage        float64   `json:"coverage"`
	WeightVersions  int       `json:"weight_versions"`
	LatestVersion   string    `json:"latest_version"`
	Stations        int       `json:"stations"`
	CollectedAt     time.Time `json:"collected_at"`
}

// Collector gathers state snapshots from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new state collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of persisted state. A missing grid is reported
// as uninitialized rather than an error so the snapshot works on a fresh
// database.
func (c *Collector) Collect(ctx context.Context) (*StateSnapshot, error) {
	snap := &StateSnapshot{CollectedAt: time.Now().UTC()}

	region, cellSize, err := c.store.LoadGrid(ctx)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return snap, nil
		}
		return nil, eris.Wrap(err, "monitoring: load grid")
	}
	snap.GridInitialized = true

	idx, err := grid.New(region, cellSize)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: rebuild grid")
	}
	snap.Cells = idx.Len()

	vectors, err := c.store.LoadFeatures(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: load features")
	}
	snap.EnrichedCells = len(vectors)
	if snap.Cells > 0 {
		snap.Coverage = float64(snap.EnrichedCells) / float64(snap.Cells)
	}

	versions, err := c.store.ListWeightVersions(ctx)
	if err != nil && !eris.Is(err, store.ErrNotFound) {
		return nil, eris.Wrap(err, "monitoring: list weight versions")
	}
	snap.WeightVersions = len(versions)
	if len(versions) > 0 {
		snap.LatestVersion = versions[0].Version
	}

	sts, err := c.store.StationsWithin(ctx, region.MinLat, region.MinLon, region.MaxLat, region.MaxLon)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: stations")
	}
	snap.Stations = len(sts)

	return snap, nil
}

// StateCollector exposes persisted engine state as Prometheus gauges. It
// queries the store on every scrape, which is cheap at grid scale.
type StateCollector struct {
	collector *Collector
	timeout   time.Duration

	gridCells      *prometheus.Desc
	enrichedCells  *prometheus.Desc
	weightVersions *prometheus.Desc
	stationsCount  *prometheus.Desc
}

// NewStateCollector builds a Prometheus collector over the store.
func NewStateCollector(st store.Store) *StateCollector {
	return &StateCollector{
		collector: NewCollector(st),
		timeout:   5 * time.Second,
		gridCells: prometheus.NewDesc(
			"riskmap_grid_cells",
			"Cells in the persisted grid definition.",
			nil, nil),
		enrichedCells: prometheus.NewDesc(
			"riskmap_enriched_cells",
			"Grid cells with at least one persisted feature value.",
			nil, nil),
		weightVersions: prometheus.NewDesc(
			"riskmap_weight_versions",
			"Persisted weight configuration versions.",
			nil, nil),
		stationsCount: prometheus.NewDesc(
			"riskmap_police_stations",
			"Police stations persisted within the scored region.",
			nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (sc *StateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- sc.gridCells
	ch <- sc.enrichedCells
	ch <- sc.weightVersions
	ch <- sc.stationsCount
}

// Collect implements prometheus.Collector.
func (sc *StateCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), sc.timeout)
	defer cancel()

	snap, err := sc.collector.Collect(ctx)
	if err != nil {
		zap.L().Warn("monitoring: state scrape failed", zap.Error(err))
		return
	}

	ch <- prometheus.MustNewConstMetric(sc.gridCells, prometheus.GaugeValue, float64(snap.Cells))
	ch <- prometheus.MustNewConstMetric(sc.enrichedCells, prometheus.GaugeValue, float64(snap.EnrichedCells))
	ch <- prometheus.MustNewConstMetric(sc.weightVersions, prometheus.GaugeValue, float64(snap.WeightVersions))
	ch <- prometheus.MustNewConstMetric(sc.stationsCount, prometheus.GaugeValue, float64(snap.Stations))
}
