package risk

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/riskmap/internal/feature"
	"github.com/sells-group/riskmap/internal/weights"
)

// flatHours returns a 24-hour multiplier table of all 1.0.
func flatHours() map[int]float64 {
	m := make(map[int]float64, 24)
	for h := 0; h < 24; h++ {
		m[h] = 1.0
	}
	return m
}

// singleFeatureConfig weights bars_count at 1.0 so a cell's score equals its
// bars_count value.
func singleFeatureConfig() *weights.Config {
	coeffs := make(map[string]float64, len(feature.Catalog()))
	for _, key := range feature.Catalog() {
		coeffs[key] = 0
	}
	coeffs[feature.BarsCount] = 1.0
	return &weights.Config{Version: "test", Coefficients: coeffs, HourMultipliers: flatHours()}
}

func snapWithScores(scores ...float64) map[string]feature.Vector {
	snap := make(map[string]feature.Vector, len(scores))
	for i, s := range scores {
		snap[fmt.Sprintf("cell-%02d", i)] = feature.Vector{feature.BarsCount: s}
	}
	return snap
}

func TestTercilesThreeCells(t *testing.T) {
	// Region with 3 known cells having raw scores [10, 50, 90]:
	// Low={10}, Medium={50}, High={90}.
	pop := buildPopulation(snapWithScores(10, 50, 90), singleFeatureConfig(), 12, 0)

	assert.Equal(t, TierLow, pop.tiers["cell-00"])
	assert.Equal(t, TierMedium, pop.tiers["cell-01"])
	assert.Equal(t, TierHigh, pop.tiers["cell-02"])
}

func TestMinMaxNormalization(t *testing.T) {
	pop := buildPopulation(snapWithScores(10, 50, 90), singleFeatureConfig(), 12, 0)

	assert.InDelta(t, 0.0, pop.normalized["cell-00"], 1e-9)
	assert.InDelta(t, 50.0, pop.normalized["cell-01"], 1e-9)
	assert.InDelta(t, 100.0, pop.normalized["cell-02"], 1e-9)
}

func TestNormalizationDegeneratePopulation(t *testing.T) {
	// All scores identical: every cell maps to 50.
	pop := buildPopulation(snapWithScores(7, 7, 7, 7), singleFeatureConfig(), 12, 0)
	for id := range pop.normalized {
		assert.InDelta(t, 50.0, pop.normalized[id], 1e-9)
	}
}

func TestTierPartitionSizes(t *testing.T) {
	// For every population size, the three groups are non-empty (n >= 3) and
	// each within one unit of n/3.
	for n := 3; n <= 40; n++ {
		scores := make([]float64, n)
		for i := range scores {
			scores[i] = float64(i)
		}
		pop := buildPopulation(snapWithScores(scores...), singleFeatureConfig(), 12, 0)

		counts := map[Tier]int{}
		for _, tier := range pop.tiers {
			counts[tier]++
		}
		third := float64(n) / 3
		for _, tier := range []Tier{TierLow, TierMedium, TierHigh} {
			assert.NotZero(t, counts[tier], "n=%d tier %s empty", n, tier)
			assert.LessOrEqual(t, float64(counts[tier]), third+1, "n=%d tier %s", n, tier)
			assert.GreaterOrEqual(t, float64(counts[tier]), third-1, "n=%d tier %s", n, tier)
		}
	}
}

func TestTierTieBreakByCellID(t *testing.T) {
	// Three cells with identical scores: the partition falls back to cell
	// identity, deterministically.
	pop := buildPopulation(snapWithScores(5, 5, 5), singleFeatureConfig(), 12, 0)
	assert.Equal(t, TierLow, pop.tiers["cell-00"])
	assert.Equal(t, TierMedium, pop.tiers["cell-01"])
	assert.Equal(t, TierHigh, pop.tiers["cell-02"])

	again := buildPopulation(snapWithScores(5, 5, 5), singleFeatureConfig(), 12, 0)
	require.Equal(t, pop.tiers, again.tiers)
}

func TestBuildPopulationEmpty(t *testing.T) {
	pop := buildPopulation(map[string]feature.Vector{}, singleFeatureConfig(), 12, 0)
	assert.Empty(t, pop.tiers)
	assert.Empty(t, pop.normalized)
}

func TestConfidence(t *testing.T) {
	// Fully populated vector yields the base confidence of 0.75.
	assert.InDelta(t, 0.75, confidence(0.75, 1.0), 1e-9)
	// Monotonic in completeness.
	prev := -1.0
	for _, completeness := range []float64{0, 0.25, 0.5, 0.75, 1.0} {
		c := confidence(0.75, completeness)
		assert.Greater(t, c, prev)
		assert.GreaterOrEqual(t, c, 0.0)
		assert.LessOrEqual(t, c, 1.0)
		prev = c
	}
	// Unset base falls back to the default.
	assert.InDelta(t, 0.75, confidence(0, 1.0), 1e-9)
	// Clamped to [0,1].
	assert.Equal(t, 1.0, confidence(2.0, 1.0))
}
