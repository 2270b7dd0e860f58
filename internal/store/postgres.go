package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/riskmap/internal/db"
	"github.com/sells-group/riskmap/internal/feature"
	"github.com/sells-group/riskmap/internal/grid"
	"github.com/sells-group/riskmap/internal/stations"
	"github.com/sells-group/riskmap/internal/weights"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the hot read paths.
var preparedStatements = map[string]string{
	"load_grid":      `SELECT min_lat, max_lat, min_lon, max_lon, cell_size_miles FROM grid_meta WHERE id = 1`,
	"load_features":  `SELECT cell_id, feature, value FROM cell_features`,
	"latest_weights": `SELECT version, coefficients, hour_multipliers FROM weight_configs ORDER BY created_at DESC, version DESC LIMIT 1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool, used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS grid_meta (
	id              INTEGER PRIMARY KEY CHECK (id = 1),
	min_lat         DOUBLE PRECISION NOT NULL,
	max_lat         DOUBLE PRECISION NOT NULL,
	min_lon         DOUBLE PRECISION NOT NULL,
	max_lon         DOUBLE PRECISION NOT NULL,
	cell_size_miles DOUBLE PRECISION NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS grid_cells (
	id         TEXT PRIMARY KEY,
	cell_row   INTEGER NOT NULL,
	cell_col   INTEGER NOT NULL,
	center_lat DOUBLE PRECISION NOT NULL,
	center_lon DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS cell_features (
	cell_id    TEXT NOT NULL,
	feature    TEXT NOT NULL,
	value      DOUBLE PRECISION NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (cell_id, feature)
);

CREATE TABLE IF NOT EXISTS weight_configs (
	version          TEXT PRIMARY KEY,
	coefficients     JSONB NOT NULL,
	hour_multipliers JSONB NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS police_stations (
	id      TEXT PRIMARY KEY,
	name    TEXT NOT NULL,
	address TEXT,
	lat     DOUBLE PRECISION NOT NULL,
	lon     DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cell_features_cell_id ON cell_features(cell_id);
CREATE INDEX IF NOT EXISTS idx_weight_configs_created_at ON weight_configs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_police_stations_lat_lon ON police_stations(lat, lon);
`

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveGrid(ctx context.Context, region grid.Region, cellSizeMiles float64, cells []grid.Cell) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save grid")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO grid_meta (id, min_lat, max_lat, min_lon, max_lon, cell_size_miles, created_at)
		 VALUES (1, $1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
		   min_lat = EXCLUDED.min_lat, max_lat = EXCLUDED.max_lat,
		   min_lon = EXCLUDED.min_lon, max_lon = EXCLUDED.max_lon,
		   cell_size_miles = EXCLUDED.cell_size_miles, created_at = EXCLUDED.created_at`,
		region.MinLat, region.MaxLat, region.MinLon, region.MaxLon, cellSizeMiles, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "postgres: save grid meta")
	}

	if _, err := tx.Exec(ctx, `DELETE FROM grid_cells`); err != nil {
		return eris.Wrap(err, "postgres: clear grid cells")
	}

	rows := make([][]any, 0, len(cells))
	for _, c := range cells {
		rows = append(rows, []any{c.ID, c.Row, c.Col, c.CentroidLat, c.CentroidLon})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"grid_cells"},
		[]string{"id", "cell_row", "cell_col", "center_lat", "center_lon"},
		pgx.CopyFromRows(rows)); err != nil {
		return eris.Wrap(err, "postgres: copy grid cells")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit save grid")
}

func (s *PostgresStore) LoadGrid(ctx context.Context) (grid.Region, float64, error) {
	var region grid.Region
	var cellSize float64
	err := s.pool.QueryRow(ctx,
		`SELECT min_lat, max_lat, min_lon, max_lon, cell_size_miles FROM grid_meta WHERE id = 1`,
	).Scan(&region.MinLat, &region.MaxLat, &region.MinLon, &region.MaxLon, &cellSize)
	if errors.Is(err, pgx.ErrNoRows) {
		return grid.Region{}, 0, eris.Wrap(ErrNotFound, "postgres: grid not initialized")
	}
	if err != nil {
		return grid.Region{}, 0, eris.Wrap(err, "postgres: load grid")
	}
	return region, cellSize, nil
}

func (s *PostgresStore) UpsertFeatures(ctx context.Context, cellID string, vec feature.Vector) error {
	if len(vec) == 0 {
		return nil
	}
	_, err := s.BulkUpsertFeatures(ctx, map[string]feature.Vector{cellID: vec})
	return err
}

func (s *PostgresStore) BulkUpsertFeatures(ctx context.Context, vectors map[string]feature.Vector) (int64, error) {
	rows := featureRows(vectors)
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "cell_features",
		Columns:      []string{"cell_id", "feature", "value", "updated_at"},
		ConflictKeys: []string{"cell_id", "feature"},
	}, rows)
	return n, eris.Wrap(err, "postgres: bulk upsert features")
}

// featureRows flattens vectors into COPY rows in deterministic order.
func featureRows(vectors map[string]feature.Vector) [][]any {
	ids := make([]string, 0, len(vectors))
	for id := range vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := time.Now().UTC()
	var rows [][]any
	for _, id := range ids {
		names := make([]string, 0, len(vectors[id]))
		for name := range vectors[id] {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			rows = append(rows, []any{id, name, vectors[id][name], now})
		}
	}
	return rows
}

func (s *PostgresStore) LoadFeatures(ctx context.Context) (map[string]feature.Vector, error) {
	rows, err := s.pool.Query(ctx, `SELECT cell_id, feature, value FROM cell_features`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load features")
	}
	defer rows.Close()

	out := make(map[string]feature.Vector)
	for rows.Next() {
		var cellID, name string
		var value float64
		if err := rows.Scan(&cellID, &name, &value); err != nil {
			return nil, eris.Wrap(err, "postgres: scan feature")
		}
		if out[cellID] == nil {
			out[cellID] = feature.Vector{}
		}
		out[cellID][name] = value
	}
	return out, eris.Wrap(rows.Err(), "postgres: load features iterate")
}

func (s *PostgresStore) SaveWeights(ctx context.Context, cfg *weights.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	coeffJSON, multJSON, err := marshalWeights(cfg)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO weight_configs (version, coefficients, hour_multipliers, created_at) VALUES ($1, $2, $3, $4)`,
		cfg.Version, coeffJSON, multJSON, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save weights %s", cfg.Version)
}

func (s *PostgresStore) LatestWeights(ctx context.Context) (*weights.Config, error) {
	var version, coeffJSON, multJSON string
	err := s.pool.QueryRow(ctx,
		`SELECT version, coefficients, hour_multipliers FROM weight_configs
		 ORDER BY created_at DESC, version DESC LIMIT 1`,
	).Scan(&version, &coeffJSON, &multJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "postgres: no weight configs")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest weights")
	}
	return unmarshalWeights(version, coeffJSON, multJSON)
}

func (s *PostgresStore) ListWeightVersions(ctx context.Context) ([]WeightRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT version, created_at FROM weight_configs ORDER BY created_at DESC, version DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list weight versions")
	}
	defer rows.Close()

	var out []WeightRecord
	for rows.Next() {
		var r WeightRecord
		if err := rows.Scan(&r.Version, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan weight version")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list weight versions iterate")
}

func (s *PostgresStore) ReplaceStations(ctx context.Context, sts []stations.Station) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace stations")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM police_stations`); err != nil {
		return eris.Wrap(err, "postgres: clear stations")
	}

	rows := make([][]any, 0, len(sts))
	for _, st := range sts {
		rows = append(rows, []any{st.ID, st.Name, st.Address, st.Lat, st.Lon})
	}
	if len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"police_stations"},
			[]string{"id", "name", "address", "lat", "lon"},
			pgx.CopyFromRows(rows)); err != nil {
			return eris.Wrap(err, "postgres: copy stations")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace stations")
}

func (s *PostgresStore) StationsWithin(ctx context.Context, minLat, minLon, maxLat, maxLon float64) ([]stations.Station, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, COALESCE(address, ''), lat, lon FROM police_stations
		 WHERE lat BETWEEN $1 AND $2 AND lon BETWEEN $3 AND $4
		 ORDER BY id`,
		minLat, maxLat, minLon, maxLon,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stations within")
	}
	defer rows.Close()

	var out []stations.Station
	for rows.Next() {
		var st stations.Station
		if err := rows.Scan(&st.ID, &st.Name, &st.Address, &st.Lat, &st.Lon); err != nil {
			return nil, eris.Wrap(err, "postgres: scan station")
		}
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "postgres: stations within iterate")
}
