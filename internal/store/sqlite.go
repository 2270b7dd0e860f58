package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/riskmap/internal/feature"
	"github.com/sells-group/riskmap/internal/grid"
	"github.com/sells-group/riskmap/internal/stations"
	"github.com/sells-group/riskmap/internal/weights"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// An in-memory database exists per connection, so the pool must not
	// open a second one.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS grid_meta (
	id              INTEGER PRIMARY KEY CHECK (id = 1),
	min_lat         REAL NOT NULL,
	max_lat         REAL NOT NULL,
	min_lon         REAL NOT NULL,
	max_lon         REAL NOT NULL,
	cell_size_miles REAL NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS grid_cells (
	id         TEXT PRIMARY KEY,
	cell_row   INTEGER NOT NULL,
	cell_col   INTEGER NOT NULL,
	center_lat REAL NOT NULL,
	center_lon REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS cell_features (
	cell_id    TEXT NOT NULL,
	feature    TEXT NOT NULL,
	value      REAL NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (cell_id, feature)
);

CREATE TABLE IF NOT EXISTS weight_configs (
	version          TEXT PRIMARY KEY,
	coefficients     TEXT NOT NULL,
	hour_multipliers TEXT NOT NULL,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS police_stations (
	id      TEXT PRIMARY KEY,
	name    TEXT NOT NULL,
	address TEXT,
	lat     REAL NOT NULL,
	lon     REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cell_features_cell_id ON cell_features(cell_id);
CREATE INDEX IF NOT EXISTS idx_weight_configs_created_at ON weight_configs(created_at);
CREATE INDEX IF NOT EXISTS idx_police_stations_lat_lon ON police_stations(lat, lon);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveGrid(ctx context.Context, region grid.Region, cellSizeMiles float64, cells []grid.Cell) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save grid")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO grid_meta (id, min_lat, max_lat, min_lon, max_lon, cell_size_miles, created_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?)`,
		region.MinLat, region.MaxLat, region.MinLon, region.MaxLon, cellSizeMiles, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: save grid meta")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM grid_cells`); err != nil {
		return eris.Wrap(err, "sqlite: clear grid cells")
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO grid_cells (id, cell_row, cell_col, center_lat, center_lon) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert cell")
	}
	defer stmt.Close()
	for _, c := range cells {
		if _, err := stmt.ExecContext(ctx, c.ID, c.Row, c.Col, c.CentroidLat, c.CentroidLon); err != nil {
			return eris.Wrapf(err, "sqlite: insert cell %s", c.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save grid")
}

func (s *SQLiteStore) LoadGrid(ctx context.Context) (grid.Region, float64, error) {
	var region grid.Region
	var cellSize float64
	err := s.db.QueryRowContext(ctx,
		`SELECT min_lat, max_lat, min_lon, max_lon, cell_size_miles FROM grid_meta WHERE id = 1`,
	).Scan(&region.MinLat, &region.MaxLat, &region.MinLon, &region.MaxLon, &cellSize)
	if err == sql.ErrNoRows {
		return grid.Region{}, 0, eris.Wrap(ErrNotFound, "sqlite: grid not initialized")
	}
	if err != nil {
		return grid.Region{}, 0, eris.Wrap(err, "sqlite: load grid")
	}
	return region, cellSize, nil
}

func (s *SQLiteStore) UpsertFeatures(ctx context.Context, cellID string, vec feature.Vector) error {
	if len(vec) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert features")
	}
	defer tx.Rollback()

	if err := upsertVector(ctx, tx, cellID, vec); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit upsert features")
}

func (s *SQLiteStore) BulkUpsertFeatures(ctx context.Context, vectors map[string]feature.Vector) (int64, error) {
	if len(vectors) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin bulk upsert")
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(vectors))
	for id := range vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var n int64
	for _, id := range ids {
		if err := upsertVector(ctx, tx, id, vectors[id]); err != nil {
			return 0, err
		}
		n += int64(len(vectors[id]))
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit bulk upsert")
	}
	return n, nil
}

func upsertVector(ctx context.Context, tx *sql.Tx, cellID string, vec feature.Vector) error {
	names := make([]string, 0, len(vec))
	for name := range vec {
		names = append(names, name)
	}
	sort.Strings(names)

	now := time.Now().UTC()
	for _, name := range names {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO cell_features (cell_id, feature, value, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (cell_id, feature) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			cellID, name, vec[name], now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert feature %s/%s", cellID, name)
		}
	}
	return nil
}

func (s *SQLiteStore) LoadFeatures(ctx context.Context) (map[string]feature.Vector, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT cell_id, feature, value FROM cell_features`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load features")
	}
	defer rows.Close()

	out := make(map[string]feature.Vector)
	for rows.Next() {
		var cellID, name string
		var value float64
		if err := rows.Scan(&cellID, &name, &value); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feature")
		}
		if out[cellID] == nil {
			out[cellID] = feature.Vector{}
		}
		out[cellID][name] = value
	}
	return out, eris.Wrap(rows.Err(), "sqlite: load features iterate")
}

func (s *SQLiteStore) SaveWeights(ctx context.Context, cfg *weights.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	coeffJSON, multJSON, err := marshalWeights(cfg)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO weight_configs (version, coefficients, hour_multipliers, created_at) VALUES (?, ?, ?, ?)`,
		cfg.Version, coeffJSON, multJSON, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save weights %s", cfg.Version)
}

func (s *SQLiteStore) LatestWeights(ctx context.Context) (*weights.Config, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT version, coefficients, hour_multipliers FROM weight_configs
		 ORDER BY created_at DESC, version DESC LIMIT 1`)

	var version, coeffJSON, multJSON string
	err := row.Scan(&version, &coeffJSON, &multJSON)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "sqlite: no weight configs")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest weights")
	}
	return unmarshalWeights(version, coeffJSON, multJSON)
}

func (s *SQLiteStore) ListWeightVersions(ctx context.Context) ([]WeightRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version, created_at FROM weight_configs ORDER BY created_at DESC, version DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list weight versions")
	}
	defer rows.Close()

	var out []WeightRecord
	for rows.Next() {
		var r WeightRecord
		if err := rows.Scan(&r.Version, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan weight version")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list weight versions iterate")
}

func (s *SQLiteStore) ReplaceStations(ctx context.Context, sts []stations.Station) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace stations")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM police_stations`); err != nil {
		return eris.Wrap(err, "sqlite: clear stations")
	}
	for _, st := range sts {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO police_stations (id, name, address, lat, lon) VALUES (?, ?, ?, ?, ?)`,
			st.ID, st.Name, st.Address, st.Lat, st.Lon,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert station %s", st.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace stations")
}

func (s *SQLiteStore) StationsWithin(ctx context.Context, minLat, minLon, maxLat, maxLon float64) ([]stations.Station, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, address, lat, lon FROM police_stations
		 WHERE lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?
		 ORDER BY id`,
		minLat, maxLat, minLon, maxLon,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stations within")
	}
	defer rows.Close()

	var out []stations.Station
	for rows.Next() {
		var st stations.Station
		var addr sql.NullString
		if err := rows.Scan(&st.ID, &st.Name, &addr, &st.Lat, &st.Lon); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan station")
		}
		st.Address = addr.String
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: stations within iterate")
}

// weight config JSON helpers shared by both stores

func marshalWeights(cfg *weights.Config) (string, string, error) {
	coeffJSON, err := json.Marshal(cfg.Coefficients)
	if err != nil {
		return "", "", eris.Wrap(err, "store: marshal coefficients")
	}
	multJSON, err := json.Marshal(cfg.HourMultipliers)
	if err != nil {
		return "", "", eris.Wrap(err, "store: marshal hour multipliers")
	}
	return string(coeffJSON), string(multJSON), nil
}

func unmarshalWeights(version, coeffJSON, multJSON string) (*weights.Config, error) {
	cfg := &weights.Config{Version: version}
	if err := json.Unmarshal([]byte(coeffJSON), &cfg.Coefficients); err != nil {
		return nil, eris.Wrapf(err, "store: unmarshal coefficients for %s", version)
	}
	if err := json.Unmarshal([]byte(multJSON), &cfg.HourMultipliers); err != nil {
		return nil, eris.Wrapf(err, "store: unmarshal hour multipliers for %s", version)
	}
	if err := cfg.Validate(); err != nil {
		return nil, eris.Wrapf(err, "store: stored config %s invalid", version)
	}
	return cfg, nil
}
