// Package risk implements the spatial risk scoring engine: transparent
// weighted scoring with per-feature attribution, population-relative
// normalization and tier classification.
package risk

import (
	"sort"
	"time"

	"github.com/sells-group/riskmap/internal/feature"
	"github.com/sells-group/riskmap/internal/weights"
)

// Contribution is one feature's share of a time-adjusted score.
type Contribution struct {
	Feature      string  `json:"feature"`
	Value        float64 `json:"value"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
	// Unweighted marks a feature present in the store but absent from the
	// active configuration. It contributes zero but is surfaced rather than
	// silently dropped so misconfiguration stays visible.
	Unweighted bool `json:"unweighted,omitempty"`
}

// ScoreResult is the ephemeral scoring output for one (cell, timestamp)
// pair. Never persisted; normalization depends on the full population at
// query time.
type ScoreResult struct {
	CellID         string         `json:"cell_id"`
	RawScore       float64        `json:"raw_score"`
	AdjustedScore  float64        `json:"adjusted_score"`
	Multiplier     float64        `json:"multiplier"`
	Attribution    []Contribution `json:"attribution"`
	PredictionTime time.Time      `json:"prediction_time"`
}

// scoreVector computes the raw and time-adjusted score for one feature
// vector under one configuration snapshot. The adjusted score is the exact
// sum of the attribution contributions, so the explainability invariant
// (attribution sums to the adjusted score) holds by construction.
func scoreVector(cellID string, vec feature.Vector, cfg *weights.Config, at time.Time) ScoreResult {
	mult := cfg.Multiplier(at.Hour())

	// Deterministic iteration order: the union of stored features and
	// configured coefficients, sorted by name.
	names := make([]string, 0, len(vec)+len(cfg.Coefficients))
	seen := make(map[string]bool, len(vec)+len(cfg.Coefficients))
	for name := range vec {
		names = append(names, name)
		seen[name] = true
	}
	for name := range cfg.Coefficients {
		if !seen[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	res := ScoreResult{
		CellID:         cellID,
		Multiplier:     mult,
		Attribution:    make([]Contribution, 0, len(names)),
		PredictionTime: at,
	}

	for _, name := range names {
		value := vec[name] // configured-but-unstored features score as 0
		w, weighted := cfg.Coefficient(name)
		if !weighted {
			res.Attribution = append(res.Attribution, Contribution{
				Feature:    name,
				Value:      value,
				Unweighted: true,
			})
			continue
		}
		contrib := w * value * mult
		res.RawScore += w * value
		res.AdjustedScore += contrib
		res.Attribution = append(res.Attribution, Contribution{
			Feature:      name,
			Value:        value,
			Weight:       w,
			Contribution: contrib,
		})
	}
	return res
}

// adjustedScore is the fast path used for full-population scans: same
// arithmetic as scoreVector without building attribution.
func adjustedScore(vec feature.Vector, cfg *weights.Config, hour int) float64 {
	mult := cfg.Multiplier(hour)
	var sum float64
	names := make([]string, 0, len(cfg.Coefficients))
	for name := range cfg.Coefficients {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sum += cfg.Coefficients[name] * vec[name] * mult
	}
	return sum
}
