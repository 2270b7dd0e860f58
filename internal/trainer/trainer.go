package trainer

import (
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/riskmap/internal/feature"
	"github.com/sells-group/riskmap/internal/grid"
	"github.com/sells-group/riskmap/internal/weights"
)

// Trainer fits a new weight configuration from incident history and the
// current feature vectors.
type Trainer struct {
	fitter Fitter
	logger *zap.Logger
}

// New builds a trainer around a fitting strategy.
func New(fitter Fitter) *Trainer {
	return &Trainer{fitter: fitter, logger: zap.L().Named("trainer")}
}

// Train aggregates incidents onto the grid, fits coefficients for every
// catalog feature, and packages them as a new validated configuration. Hour
// multipliers carry over from the active configuration; fitting them would
// need per-hour labels the incident exports do not reliably carry.
func (t *Trainer) Train(idx *grid.Index, vectors map[string]feature.Vector, examples []Example, active *weights.Config) (*weights.Config, error) {
	if len(examples) == 0 {
		return nil, eris.New("trainer: no incident records")
	}

	cellIDs, labels := Aggregate(idx, examples)
	if len(cellIDs) == 0 {
		return nil, eris.New("trainer: grid has no cells")
	}

	positives := 0
	for _, l := range labels {
		positives += l
	}
	if positives == 0 || positives == len(labels) {
		return nil, eris.Errorf("trainer: degenerate labels: %d positive of %d cells", positives, len(labels))
	}

	catalog := feature.Catalog()
	features := make([][]float64, len(cellIDs))
	for i, id := range cellIDs {
		row := make([]float64, len(catalog))
		vec := vectors[id]
		for j, name := range catalog {
			if vec != nil {
				row[j] = vec[name]
			}
		}
		features[i] = row
	}

	coeffs, err := t.fitter.Fit(features, labels)
	if err != nil {
		return nil, err
	}

	cfg := &weights.Config{
		Version:         "trained-" + uuid.New().String(),
		Coefficients:    make(map[string]float64, len(catalog)),
		HourMultipliers: make(map[int]float64, weights.HoursPerDay),
	}
	for j, name := range catalog {
		cfg.Coefficients[name] = coeffs[j]
	}
	for hour, mult := range active.HourMultipliers {
		cfg.HourMultipliers[hour] = mult
	}

	if err := cfg.Validate(); err != nil {
		return nil, eris.Wrap(err, "trainer: fitted config invalid")
	}

	t.logger.Info("fitted new weight configuration",
		zap.String("version", cfg.Version),
		zap.Int("cells", len(cellIDs)),
		zap.Int("positive_cells", positives),
		zap.Int("incidents", len(examples)),
	)
	return cfg, nil
}
