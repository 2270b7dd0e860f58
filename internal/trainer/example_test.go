package trainer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/riskmap/internal/grid"
)

func TestLoadCSV(t *testing.T) {
	csv := strings.Join([]string{
		"id,latitude,longitude,crime_date,offense",
		"1,42.6526,-73.7562,2025-11-03 22:15:00,larceny",
		"2,42.6601,-73.7711,2025-11-04,burglary",
		"3,42.6489,-73.7490,2025-11-05T01:30:00Z,assault",
	}, "\n")

	got, err := LoadCSV(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, 42.6526, got[0].Lat)
	assert.Equal(t, -73.7562, got[0].Lon)
	assert.Equal(t, time.Date(2025, 11, 3, 22, 15, 0, 0, time.UTC), got[0].OccurredAt)
	assert.Equal(t, time.Date(2025, 11, 4, 0, 0, 0, 0, time.UTC), got[1].OccurredAt)
	assert.Equal(t, time.Date(2025, 11, 5, 1, 30, 0, 0, time.UTC), got[2].OccurredAt)
}

func TestLoadCSVMissingColumns(t *testing.T) {
	_, err := LoadCSV(strings.NewReader("lat,lon\n42.65,-73.75"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required columns")
}

func TestLoadCSVMalformedRow(t *testing.T) {
	csv := "latitude,longitude,crime_date\nnot-a-number,-73.75,2025-11-03"
	_, err := LoadCSV(strings.NewReader(csv))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse latitude")

	csv = "latitude,longitude,crime_date\n42.65,-73.75,yesterday"
	_, err = LoadCSV(strings.NewReader(csv))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse crime_date")
}

func TestLoadCSVEmpty(t *testing.T) {
	_, err := LoadCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestAggregate(t *testing.T) {
	region := grid.Region{MinLat: 42.60, MaxLat: 42.64, MinLon: -73.80, MaxLon: -73.74}
	idx, err := grid.New(region, 1.0)
	require.NoError(t, err)

	inCell, ok := idx.ContainingCell(42.61, -73.79)
	require.True(t, ok)

	examples := []Example{
		{Lat: 42.61, Lon: -73.79},       // inside
		{Lat: 42.611, Lon: -73.789},     // same cell
		{Lat: 40.0, Lon: -75.0},         // outside the region, dropped
	}

	cellIDs, labels := Aggregate(idx, examples)
	require.Len(t, cellIDs, idx.Len())
	require.Len(t, labels, idx.Len())

	positives := 0
	for i, id := range cellIDs {
		if labels[i] == 1 {
			positives++
			assert.Equal(t, inCell.ID, id)
		}
	}
	assert.Equal(t, 1, positives)

	// Row-major order matches the index.
	for i, c := range idx.Cells() {
		assert.Equal(t, c.ID, cellIDs[i])
	}
}
