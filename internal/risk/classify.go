package risk

import (
	"math"
	"sort"

	"github.com/sells-group/riskmap/internal/feature"
	"github.com/sells-group/riskmap/internal/weights"
)

// Tier is the ordinal risk classification assigned by population percentile.
type Tier string

// Tier values from lowest to highest risk.
const (
	TierLow    Tier = "Low"
	TierMedium Tier = "Medium"
	TierHigh   Tier = "High"
)

// population holds the full-cell-population scoring state for one
// (hour, configuration version, feature epoch) key. Classification is always
// relative to this population, never to a queried subset, so a radius query
// and a full-region query agree on every shared cell's tier.
type population struct {
	hour          int
	configVersion string
	epoch         uint64

	adjusted   map[string]float64
	normalized map[string]float64
	tiers      map[string]Tier
}

// buildPopulation scores every known cell at the given hour and derives the
// normalized scores and tier boundaries.
//
// Normalization method: min-max rescaling of the time-adjusted scores onto
// [0,100] over the full population. The choice is fixed; downstream tier
// expectations depend on it staying put. A degenerate population (all scores
// equal) maps every cell to 50.
func buildPopulation(snap map[string]feature.Vector, cfg *weights.Config, hour int, epoch uint64) *population {
	pop := &population{
		hour:          hour,
		configVersion: cfg.Version,
		epoch:         epoch,
		adjusted:      make(map[string]float64, len(snap)),
		normalized:    make(map[string]float64, len(snap)),
		tiers:         make(map[string]Tier, len(snap)),
	}
	if len(snap) == 0 {
		return pop
	}

	minAdj, maxAdj := math.Inf(1), math.Inf(-1)
	for id, vec := range snap {
		adj := adjustedScore(vec, cfg, hour)
		pop.adjusted[id] = adj
		if adj < minAdj {
			minAdj = adj
		}
		if adj > maxAdj {
			maxAdj = adj
		}
	}

	span := maxAdj - minAdj
	for id, adj := range pop.adjusted {
		if span == 0 {
			pop.normalized[id] = 50
		} else {
			pop.normalized[id] = (adj - minAdj) / span * 100
		}
	}

	// Exact terciles with deterministic tie-break by (normalized score,
	// cell identity).
	ids := make([]string, 0, len(pop.normalized))
	for id := range pop.normalized {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ni, nj := pop.normalized[ids[i]], pop.normalized[ids[j]]
		if ni != nj {
			return ni < nj
		}
		return ids[i] < ids[j]
	})

	n := len(ids)
	lowEnd := int(math.Round(float64(n) / 3))
	medEnd := int(math.Round(2 * float64(n) / 3))
	// Keep all three groups non-empty once the population allows it.
	if n >= 3 {
		if lowEnd < 1 {
			lowEnd = 1
		}
		if medEnd <= lowEnd {
			medEnd = lowEnd + 1
		}
		if medEnd >= n {
			medEnd = n - 1
		}
	}
	for i, id := range ids {
		switch {
		case i < lowEnd:
			pop.tiers[id] = TierLow
		case i < medEnd:
			pop.tiers[id] = TierMedium
		default:
			pop.tiers[id] = TierHigh
		}
	}
	return pop
}

// confidence converts feature-vector completeness into the [0,1] confidence
// attached to each scored cell. Monotonic in completeness; a fully-populated
// vector yields the base (0.75 by default).
func confidence(base, completeness float64) float64 {
	if base <= 0 {
		base = 0.75
	}
	c := base * completeness
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
