package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/riskmap/internal/feature"
	"github.com/sells-group/riskmap/internal/weights"
)

func newMockPostgres(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresFromPool(mock), mock
}

func TestPostgresImplementsStore(t *testing.T) {
	var _ Store = &PostgresStore{}
}

func TestPostgresLoadGrid(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT min_lat, max_lat, min_lon, max_lon, cell_size_miles FROM grid_meta").
		WillReturnRows(pgxmock.NewRows(
			[]string{"min_lat", "max_lat", "min_lon", "max_lon", "cell_size_miles"},
		).AddRow(42.5, 42.9, -74.1, -73.5, 0.25))

	region, size, err := s.LoadGrid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42.5, region.MinLat)
	assert.Equal(t, -73.5, region.MaxLon)
	assert.Equal(t, 0.25, size)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoadGridUninitialized(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT min_lat").WillReturnError(pgx.ErrNoRows)

	_, _, err := s.LoadGrid(context.Background())
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLatestWeights(t *testing.T) {
	s, mock := newMockPostgres(t)

	cfg := weights.Default()
	coeffJSON, multJSON, err := marshalWeights(cfg)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT version, coefficients, hour_multipliers FROM weight_configs").
		WillReturnRows(pgxmock.NewRows(
			[]string{"version", "coefficients", "hour_multipliers"},
		).AddRow(cfg.Version, coeffJSON, multJSON))

	got, err := s.LatestWeights(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cfg.Version, got.Version)
	assert.Equal(t, cfg.Coefficients, got.Coefficients)
	assert.Equal(t, cfg.HourMultipliers, got.HourMultipliers)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLatestWeightsEmpty(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT version").WillReturnError(pgx.ErrNoRows)

	_, err := s.LatestWeights(context.Background())
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestPostgresSaveWeights(t *testing.T) {
	s, mock := newMockPostgres(t)

	cfg := weights.Default()
	mock.ExpectExec("INSERT INTO weight_configs").
		WithArgs(cfg.Version, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveWeights(context.Background(), cfg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveWeightsRejectsInvalid(t *testing.T) {
	s, _ := newMockPostgres(t)

	bad := weights.Default()
	bad.HourMultipliers = map[int]float64{0: 1.0}
	assert.Error(t, s.SaveWeights(context.Background(), bad))
}

func TestPostgresBulkUpsertFeatures(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_cell_features"},
		[]string{"cell_id", "feature", "value", "updated_at"}).
		WillReturnResult(2)
	mock.ExpectExec("INSERT INTO \"cell_features\"").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.BulkUpsertFeatures(context.Background(), map[string]feature.Vector{
		"c250-0000-0000": {feature.BarsCount: 2, feature.NightclubsCount: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStationsWithin(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT id, name, COALESCE").
		WithArgs(42.5, 42.9, -74.1, -73.5).
		WillReturnRows(pgxmock.NewRows(
			[]string{"id", "name", "address", "lat", "lon"},
		).AddRow("a", "Central", "165 Henry Johnson Blvd", 42.66, -73.76))

	got, err := s.StationsWithin(context.Background(), 42.5, -74.1, 42.9, -73.5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Central", got[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoadFeatures(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT cell_id, feature, value FROM cell_features").
		WillReturnRows(pgxmock.NewRows([]string{"cell_id", "feature", "value"}).
			AddRow("c250-0000-0000", feature.BarsCount, 3.0).
			AddRow("c250-0000-0000", feature.MedianIncome, 41000.0).
			AddRow("c250-0000-0001", feature.BarsCount, 1.0))

	got, err := s.LoadFeatures(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 41000.0, got["c250-0000-0000"][feature.MedianIncome])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMigrate(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS grid_meta").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPing(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectExec("SELECT 1").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	require.NoError(t, s.Ping(context.Background()))

	mock.ExpectExec("SELECT 1").WillReturnError(eris.New("connection refused"))
	require.Error(t, s.Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
