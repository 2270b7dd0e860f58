package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/riskmap/internal/feature"
	"github.com/sells-group/riskmap/internal/grid"
	"github.com/sells-group/riskmap/internal/monitoring"
	"github.com/sells-group/riskmap/internal/risk"
	"github.com/sells-group/riskmap/internal/store"
	"github.com/sells-group/riskmap/internal/weights"
)

// openStore builds the configured persistence backend and runs migrations.
func openStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite", "":
		st, err = store.NewSQLite(cfg.Store.SQLitePath)
	default:
		return nil, eris.Errorf("store: unsupported driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// loadIndex rebuilds the spatial index from the persisted grid definition.
// The caller must have run `riskmap grid init` first.
func loadIndex(ctx context.Context, st store.Store) (*grid.Index, error) {
	region, cellSize, err := st.LoadGrid(ctx)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return nil, eris.Wrap(err, "grid not initialized, run 'riskmap grid init' first")
		}
		return nil, err
	}
	return grid.New(region, cellSize)
}

// loadFeatureStore builds an in-memory feature store over the index cells and
// hydrates it from persisted vectors.
func loadFeatureStore(ctx context.Context, st store.Store, idx *grid.Index) (*feature.Store, error) {
	ids := make([]string, 0, idx.Len())
	for _, c := range idx.Cells() {
		ids = append(ids, c.ID)
	}
	features := feature.NewStore(ids)

	saved, err := st.LoadFeatures(ctx)
	if err != nil {
		return nil, err
	}
	hydrated := 0
	for id, vec := range saved {
		if err := features.SetFeatures(id, vec); err != nil {
			// Cells from a previous grid definition are skipped, not fatal.
			zap.L().Debug("skipping feature vector for unknown cell", zap.String("cell_id", id))
			continue
		}
		hydrated++
	}
	zap.L().Info("feature store hydrated",
		zap.Int("cells", idx.Len()),
		zap.Int("with_features", hydrated),
	)
	return features, nil
}

// loadWeights resolves the active configuration: an explicit weights file
// wins, then the latest persisted version, then the built-in seed.
func loadWeights(ctx context.Context, st store.Store) (*weights.Config, error) {
	if cfg.Risk.WeightsFile != "" {
		return weights.LoadFile(cfg.Risk.WeightsFile)
	}
	latest, err := st.LatestWeights(ctx)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return weights.Default(), nil
		}
		return nil, err
	}
	return latest, nil
}

// buildEngine wires the full scoring stack from persisted state.
func buildEngine(ctx context.Context, st store.Store, m *monitoring.Metrics) (*risk.Engine, *grid.Index, error) {
	idx, err := loadIndex(ctx, st)
	if err != nil {
		return nil, nil, err
	}
	features, err := loadFeatureStore(ctx, st, idx)
	if err != nil {
		return nil, nil, err
	}
	active, err := loadWeights(ctx, st)
	if err != nil {
		return nil, nil, err
	}
	zap.L().Info("weights active", zap.String("version", active.Version))

	opts := []risk.Option{risk.WithBaseConfidence(cfg.Risk.BaseConfidence)}
	if m != nil {
		opts = append(opts, risk.WithMetrics(m))
	}
	engine := risk.NewEngine(idx, features, weights.NewHandle(active), opts...)
	return engine, idx, nil
}

// newMetrics registers engine metrics on the default registry.
func newMetrics() (*monitoring.Metrics, prometheus.Gatherer) {
	return monitoring.New(prometheus.DefaultRegisterer), prometheus.DefaultGatherer
}
