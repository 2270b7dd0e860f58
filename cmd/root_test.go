package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/riskmap/internal/config"
	"github.com/sells-group/riskmap/internal/grid"
	"github.com/sells-group/riskmap/internal/weights"
)

func testConfig() *config.Config {
	return &config.Config{
		Region: config.RegionConfig{MinLat: 42.60, MaxLat: 42.64, MinLon: -73.80, MaxLon: -73.74},
		Grid:   config.GridConfig{CellSizeMiles: 1.0},
		Store:  config.StoreConfig{Driver: "sqlite", SQLitePath: ":memory:"},
		Risk:   config.RiskConfig{BaseConfidence: 0.75, DefaultRadius: 1.0},
	}
}

func TestCommandRegistration(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "grid", "enrich", "train", "weights", "score", "stations"} {
		assert.True(t, names[want], "command %q not registered", want)
	}
}

func TestOpenStoreUnsupportedDriver(t *testing.T) {
	cfg = testConfig()
	cfg.Store.Driver = "oracle"
	_, err := openStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported driver")
}

func TestLoadIndexRequiresInit(t *testing.T) {
	cfg = testConfig()
	st, err := openStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	_, err = loadIndex(context.Background(), st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grid init")
}

func TestBuildEngineFromPersistedState(t *testing.T) {
	cfg = testConfig()
	ctx := context.Background()

	st, err := openStore(ctx)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	region := grid.Region{
		MinLat: cfg.Region.MinLat, MaxLat: cfg.Region.MaxLat,
		MinLon: cfg.Region.MinLon, MaxLon: cfg.Region.MaxLon,
	}
	idx, err := grid.New(region, cfg.Grid.CellSizeMiles)
	require.NoError(t, err)
	require.NoError(t, st.SaveGrid(ctx, region, cfg.Grid.CellSizeMiles, idx.Cells()))

	engine, loaded, err := buildEngine(ctx, st, nil)
	require.NoError(t, err)
	assert.Equal(t, idx.Len(), loaded.Len())
	// No persisted weights yet, the built-in seed is active.
	assert.Equal(t, weights.Default().Version, engine.Weights().Active().Version)
}

func TestLoadWeightsPrefersPersisted(t *testing.T) {
	cfg = testConfig()
	ctx := context.Background()

	st, err := openStore(ctx)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	saved := weights.Default()
	saved.Version = "trained-test"
	require.NoError(t, st.SaveWeights(ctx, saved))

	active, err := loadWeights(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, "trained-test", active.Version)
}

func TestLoadWeightsFallsBackToSeed(t *testing.T) {
	cfg = testConfig()
	ctx := context.Background()

	st, err := openStore(ctx)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	active, err := loadWeights(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, weights.Default().Version, active.Version)
}

func TestResolveFlagTime(t *testing.T) {
	cmd := scoreCmd

	require.NoError(t, cmd.Flags().Set("time", "2026-08-26T23:00:00Z"))
	at, err := resolveFlagTime(cmd)
	require.NoError(t, err)
	assert.Equal(t, 23, at.Hour())
	require.NoError(t, cmd.Flags().Set("time", ""))

	require.NoError(t, cmd.Flags().Set("hour", "5"))
	at, err = resolveFlagTime(cmd)
	require.NoError(t, err)
	assert.Equal(t, 5, at.Hour())
	assert.Equal(t, time.UTC, at.Location())

	require.NoError(t, cmd.Flags().Set("hour", "24"))
	_, err = resolveFlagTime(cmd)
	assert.Error(t, err)

	require.NoError(t, cmd.Flags().Set("hour", "-1"))
	at, err = resolveFlagTime(cmd)
	require.NoError(t, err)
	assert.True(t, at.IsZero())
}
