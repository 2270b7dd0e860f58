// Package store persists the grid definition, per-cell feature vectors,
// weight configurations, and police stations behind a common interface with
// SQLite and PostgreSQL implementations.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/riskmap/internal/feature"
	"github.com/sells-group/riskmap/internal/grid"
	"github.com/sells-group/riskmap/internal/stations"
	"github.com/sells-group/riskmap/internal/weights"
)

// ErrNotFound is returned when a requested record does not exist, including
// the not-yet-initialized grid and the empty weight history.
var ErrNotFound = eris.New("store: not found")

// WeightRecord is one persisted configuration version.
type WeightRecord struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the persistence interface for the scoring engine. Scores are
// never persisted; only the inputs that produce them are.
type Store interface {
	// Grid definition. The tessellation is deterministic from region and
	// cell size, so cells are persisted for external joins but reloads
	// rebuild the index from the two parameters.
	SaveGrid(ctx context.Context, region grid.Region, cellSizeMiles float64, cells []grid.Cell) error
	LoadGrid(ctx context.Context) (grid.Region, float64, error)

	// Feature vectors.
	UpsertFeatures(ctx context.Context, cellID string, vec feature.Vector) error
	BulkUpsertFeatures(ctx context.Context, vectors map[string]feature.Vector) (int64, error)
	LoadFeatures(ctx context.Context) (map[string]feature.Vector, error)

	// Weight configurations, append-only with a version history.
	SaveWeights(ctx context.Context, cfg *weights.Config) error
	LatestWeights(ctx context.Context) (*weights.Config, error)
	ListWeightVersions(ctx context.Context) ([]WeightRecord, error)

	// Police stations.
	ReplaceStations(ctx context.Context, sts []stations.Station) error
	StationsWithin(ctx context.Context, minLat, minLon, maxLat, maxLon float64) ([]stations.Station, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}
