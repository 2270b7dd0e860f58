package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/riskmap/internal/feature"
)

func TestGroupContributions(t *testing.T) {
	attribution := []Contribution{
		{Feature: feature.BarsCount, Contribution: 2.0},
		{Feature: feature.NightclubsCount, Contribution: 1.0},
		{Feature: feature.StreetLightsCount, Contribution: -0.5},
		{Feature: feature.MedianIncome, Contribution: -4.0},
		{Feature: "graffiti_reports", Unweighted: true},
	}

	grouped := groupContributions(attribution)

	require.Len(t, grouped, 3)
	// Ordered by absolute contribution: socioeconomic (|-4|), alcohol (3),
	// lighting (0.5). The unweighted feature folds into socioeconomic with
	// zero contribution.
	assert.Equal(t, "socioeconomic", grouped[0].Group)
	assert.InDelta(t, -4.0, grouped[0].Contribution, 1e-12)
	assert.Equal(t, "alcohol_density", grouped[1].Group)
	assert.InDelta(t, 3.0, grouped[1].Contribution, 1e-12)
	assert.Equal(t, "lighting", grouped[2].Group)
}

func TestGroupContributionsTieBreakByName(t *testing.T) {
	attribution := []Contribution{
		{Feature: feature.BarsCount, Contribution: 1.0},
		{Feature: feature.StreetLightsCount, Contribution: -1.0},
	}
	grouped := groupContributions(attribution)
	require.Len(t, grouped, 2)
	assert.Equal(t, "alcohol_density", grouped[0].Group)
	assert.Equal(t, "lighting", grouped[1].Group)
}

func TestExplainTemplate(t *testing.T) {
	grouped := []GroupedContribution{
		{Group: "alcohol_density", Contribution: 3.0},
		{Group: "population", Contribution: 1.0},
	}

	assert.Equal(t,
		"High risk area during night. Main factors: alcohol density (75%), population (25%)",
		explain(TierHigh, 23, grouped))
	assert.Equal(t,
		"Low risk area during day. Main factors: alcohol density (75%), population (25%)",
		explain(TierLow, 12, grouped))
}

func TestExplainDayNightBoundaries(t *testing.T) {
	grouped := []GroupedContribution{{Group: "population", Contribution: 1.0}}

	night := []int{22, 23, 0, 5}
	day := []int{6, 12, 21}
	for _, h := range night {
		assert.Contains(t, explain(TierMedium, h, grouped), "during night", "hour %d", h)
	}
	for _, h := range day {
		assert.Contains(t, explain(TierMedium, h, grouped), "during day", "hour %d", h)
	}
}

func TestExplainTopThreeGroupsOnly(t *testing.T) {
	grouped := []GroupedContribution{
		{Group: "population", Contribution: 4.0},
		{Group: "alcohol_density", Contribution: 3.0},
		{Group: "vacancy", Contribution: 2.0},
		{Group: "lighting", Contribution: -1.0},
	}
	got := explain(TierHigh, 2, grouped)
	assert.Contains(t, got, "population (40%)")
	assert.Contains(t, got, "alcohol density (30%)")
	assert.Contains(t, got, "vacancy (20%)")
	assert.NotContains(t, got, "lighting")
}

func TestExplainNoContributions(t *testing.T) {
	assert.Equal(t, "Low risk area during day.", explain(TierLow, 12, nil))
}
