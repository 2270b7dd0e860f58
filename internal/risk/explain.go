package risk

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sells-group/riskmap/internal/feature"
)

// GroupedContribution is a factor group's share of the time-adjusted score.
type GroupedContribution struct {
	Group        string  `json:"group"`
	Contribution float64 `json:"contribution"`
}

// groupContributions folds per-feature contributions into explanation groups
// (alcohol density, transit proximity, lighting, vacancy, population,
// socioeconomic), ordered by descending absolute contribution then group
// name. Unweighted features carry zero and do not shift any group.
func groupContributions(attribution []Contribution) []GroupedContribution {
	byGroup := make(map[string]float64)
	for _, c := range attribution {
		byGroup[feature.Group(c.Feature)] += c.Contribution
	}

	out := make([]GroupedContribution, 0, len(byGroup))
	for group, contrib := range byGroup {
		out = append(out, GroupedContribution{Group: group, Contribution: contrib})
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := math.Abs(out[i].Contribution), math.Abs(out[j].Contribution)
		if ai != aj {
			return ai > aj
		}
		return out[i].Group < out[j].Group
	})
	return out
}

// explain renders the deterministic explanation template: tier, day/night
// qualifier, and the top three factor groups with their share of the total
// absolute contribution.
func explain(tier Tier, hour int, grouped []GroupedContribution) string {
	tod := "day"
	if hour >= 22 || hour < 6 {
		tod = "night"
	}

	var totalAbs float64
	for _, g := range grouped {
		totalAbs += math.Abs(g.Contribution)
	}

	top := grouped
	if len(top) > 3 {
		top = top[:3]
	}
	parts := make([]string, 0, len(top))
	for _, g := range top {
		share := 0.0
		if totalAbs > 0 {
			share = math.Abs(g.Contribution) / totalAbs * 100
		}
		parts = append(parts, fmt.Sprintf("%s (%.0f%%)", strings.ReplaceAll(g.Group, "_", " "), share))
	}

	if len(parts) == 0 {
		return fmt.Sprintf("%s risk area during %s.", tier, tod)
	}
	return fmt.Sprintf("%s risk area during %s. Main factors: %s", tier, tod, strings.Join(parts, ", "))
}
