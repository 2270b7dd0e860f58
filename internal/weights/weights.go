// Package weights defines the versioned coefficient configuration consumed
// by scoring, with validation and atomic hot-swap.
package weights

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/riskmap/internal/feature"
)

// HoursPerDay is the size of the hour-of-day multiplier table.
const HoursPerDay = 24

// Config is a versioned weight configuration: signed coefficients per feature
// plus an hour-of-day multiplier table that wraps at midnight. A Config is
// immutable once published; replacement happens through Handle.Swap.
type Config struct {
	Version         string             `yaml:"version" json:"version"`
	Coefficients    map[string]float64 `yaml:"coefficients" json:"coefficients"`
	HourMultipliers map[int]float64    `yaml:"hour_multipliers" json:"hour_multipliers"`
}

// Validate checks the configuration invariants: every catalog feature has a
// coefficient, and all 24 hours have a positive multiplier. A violation is a
// configuration error; the caller must not activate the config.
func (c *Config) Validate() error {
	var problems []string

	if c.Version == "" {
		problems = append(problems, "version tag is required")
	}

	for _, key := range feature.Catalog() {
		if _, ok := c.Coefficients[key]; !ok {
			problems = append(problems, fmt.Sprintf("missing coefficient for feature %q", key))
		}
	}

	for hour := 0; hour < HoursPerDay; hour++ {
		m, ok := c.HourMultipliers[hour]
		if !ok {
			problems = append(problems, fmt.Sprintf("missing multiplier for hour %d", hour))
			continue
		}
		if m <= 0 {
			problems = append(problems, fmt.Sprintf("multiplier for hour %d must be positive, got %g", hour, m))
		}
	}
	for hour := range c.HourMultipliers {
		if hour < 0 || hour >= HoursPerDay {
			problems = append(problems, fmt.Sprintf("multiplier hour %d out of range", hour))
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("weights: invalid configuration %q: %s", c.Version, strings.Join(problems, "; "))
	}
	return nil
}

// Coefficient returns the signed weight for a feature and whether one is
// configured. Features without a coefficient contribute nothing to a score
// but are surfaced as unweighted in attribution.
func (c *Config) Coefficient(name string) (float64, bool) {
	w, ok := c.Coefficients[name]
	return w, ok
}

// Multiplier returns the time-of-day multiplier for an hour (0-23).
func (c *Config) Multiplier(hour int) float64 {
	return c.HourMultipliers[((hour % HoursPerDay) + HoursPerDay) % HoursPerDay]
}

// Default returns the bootstrap configuration: the fixed seed coefficient set
// and hour table the system ships with before any trained configuration is
// published.
func Default() *Config {
	return &Config{
		Version: "seed-v1",
		Coefficients: map[string]float64{
			feature.BarsCount:          0.25,
			feature.NightclubsCount:    0.20,
			feature.LiquorStoresCount:  0.15,
			feature.NearestSubwayM:     -0.15,
			feature.StreetLightsCount:  -0.12,
			feature.AbandonedBuildings: 0.30,
			feature.PopulationDensity:  0.35,
			feature.UnemploymentRate:   0.18,
			feature.MedianIncome:       -0.20,
		},
		HourMultipliers: map[int]float64{
			0: 1.3, 1: 1.4, 2: 1.3, 3: 1.1,
			4: 0.9, 5: 0.7, 6: 0.6, 7: 0.7,
			8: 0.8, 9: 0.85, 10: 0.9, 11: 0.95,
			12: 1.0, 13: 1.0, 14: 1.05, 15: 1.1,
			16: 1.15, 17: 1.2, 18: 1.2, 19: 1.15,
			20: 1.15, 21: 1.15, 22: 1.2, 23: 1.25,
		},
	}
}
