package monitoring

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/riskmap/internal/feature"
	"github.com/sells-group/riskmap/internal/grid"
	"github.com/sells-group/riskmap/internal/stations"
	"github.com/sells-group/riskmap/internal/store"
	"github.com/sells-group/riskmap/internal/weights"
)

func seededStore(t *testing.T) store.Store {
	t.Helper()
	ctx := context.Background()

	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	t.Cleanup(func() { _ = st.Close() })

	region := grid.Region{MinLat: 42.60, MaxLat: 42.64, MinLon: -73.80, MaxLon: -73.74}
	idx, err := grid.New(region, 1.0)
	require.NoError(t, err)
	require.NoError(t, st.SaveGrid(ctx, region, 1.0, idx.Cells()))

	cells := idx.Cells()
	require.NoError(t, st.UpsertFeatures(ctx, cells[0].ID, feature.Vector{feature.BarsCount: 3}))
	require.NoError(t, st.UpsertFeatures(ctx, cells[1].ID, feature.Vector{feature.BarsCount: 1}))

	cfg := weights.Default()
	cfg.Version = "trained-x"
	require.NoError(t, st.SaveWeights(ctx, cfg))

	require.NoError(t, st.ReplaceStations(ctx, []stations.Station{
		{ID: "s1", Name: "Central", Lat: 42.62, Lon: -73.77},
	}))

	return st
}

func TestCollectorSnapshot(t *testing.T) {
	st := seededStore(t)

	snap, err := NewCollector(st).Collect(context.Background())
	require.NoError(t, err)

	assert.True(t, snap.GridInitialized)
	assert.Greater(t, snap.Cells, 2)
	assert.Equal(t, 2, snap.EnrichedCells)
	assert.InDelta(t, float64(2)/float64(snap.Cells), snap.Coverage, 1e-12)
	assert.Equal(t, 1, snap.WeightVersions)
	assert.Equal(t, "trained-x", snap.LatestVersion)
	assert.Equal(t, 1, snap.Stations)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollectorUninitializedGrid(t *testing.T) {
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	defer st.Close() //nolint:errcheck

	snap, err := NewCollector(st).Collect(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.GridInitialized)
	assert.Zero(t, snap.Cells)
}

func TestStateCollectorScrape(t *testing.T) {
	st := seededStore(t)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewStateCollector(st)))

	expected := `
# HELP riskmap_enriched_cells Grid cells with at least one persisted feature value.
# TYPE riskmap_enriched_cells gauge
riskmap_enriched_cells 2
# HELP riskmap_police_stations Police stations persisted within the scored region.
# TYPE riskmap_police_stations gauge
riskmap_police_stations 1
# HELP riskmap_weight_versions Persisted weight configuration versions.
# TYPE riskmap_weight_versions gauge
riskmap_weight_versions 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"riskmap_enriched_cells", "riskmap_police_stations", "riskmap_weight_versions"))
}
