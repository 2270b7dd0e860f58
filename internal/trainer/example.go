// Package trainer fits weight configurations from historical incident data.
// The engine consumes only the resulting configuration; training is an
// offline concern.
package trainer

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/riskmap/internal/grid"
)

// Example is one historical incident record.
type Example struct {
	Lat        float64
	Lon        float64
	OccurredAt time.Time
}

// Timestamp layouts accepted in incident exports, tried in order.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// LoadCSV reads incident records from a CSV export with latitude, longitude,
// and crime_date columns. Extra columns are ignored; rows with malformed
// coordinates or timestamps fail the load rather than silently skewing the
// label distribution.
func LoadCSV(r io.Reader) ([]Example, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.New("trainer: empty csv")
	}
	if err != nil {
		return nil, eris.Wrap(err, "trainer: read csv header")
	}

	latIdx, lonIdx, dateIdx := -1, -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "latitude":
			latIdx = i
		case "longitude":
			lonIdx = i
		case "crime_date":
			dateIdx = i
		}
	}
	if latIdx < 0 || lonIdx < 0 || dateIdx < 0 {
		return nil, eris.Errorf("trainer: csv header missing required columns, got %v", header)
	}

	var out []Example
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "trainer: read csv line %d", line+1)
		}
		line++

		ex, err := parseExample(record, latIdx, lonIdx, dateIdx)
		if err != nil {
			return nil, eris.Wrapf(err, "trainer: csv line %d", line)
		}
		out = append(out, ex)
	}
	return out, nil
}

func parseExample(record []string, latIdx, lonIdx, dateIdx int) (Example, error) {
	max := latIdx
	if lonIdx > max {
		max = lonIdx
	}
	if dateIdx > max {
		max = dateIdx
	}
	if len(record) <= max {
		return Example{}, eris.Errorf("trainer: row has %d fields, need %d", len(record), max+1)
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(record[latIdx]), 64)
	if err != nil {
		return Example{}, eris.Wrap(err, "trainer: parse latitude")
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(record[lonIdx]), 64)
	if err != nil {
		return Example{}, eris.Wrap(err, "trainer: parse longitude")
	}

	raw := strings.TrimSpace(record[dateIdx])
	var at time.Time
	var lastErr error
	for _, layout := range timeLayouts {
		at, lastErr = time.Parse(layout, raw)
		if lastErr == nil {
			break
		}
	}
	if lastErr != nil {
		return Example{}, eris.Wrapf(lastErr, "trainer: parse crime_date %q", raw)
	}

	return Example{Lat: lat, Lon: lon, OccurredAt: at}, nil
}

// Aggregate folds incidents onto the grid: every known cell gets a binary
// label, 1 when at least one incident falls inside it. Incidents outside the
// region are dropped. Cells come back in the index's row-major order so the
// design matrix is deterministic.
func Aggregate(idx *grid.Index, examples []Example) (cellIDs []string, labels []int) {
	hit := make(map[string]bool)
	for _, ex := range examples {
		if c, ok := idx.ContainingCell(ex.Lat, ex.Lon); ok {
			hit[c.ID] = true
		}
	}

	cells := idx.Cells()
	cellIDs = make([]string, 0, len(cells))
	labels = make([]int, 0, len(cells))
	for _, c := range cells {
		cellIDs = append(cellIDs, c.ID)
		if hit[c.ID] {
			labels = append(labels, 1)
		} else {
			labels = append(labels, 0)
		}
	}
	return cellIDs, labels
}
