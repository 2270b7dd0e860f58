// Package feature holds per-cell environmental feature vectors and the
// canonical catalog of feature keys used by scoring.
package feature

// Canonical environmental feature keys. Scoring and training are statically
// checkable against this set; additional keys round-trip through the store
// with the same zero default but carry no coefficient until a configuration
// assigns one.
const (
	BarsCount          = "bars_count"
	NightclubsCount    = "nightclubs_count"
	LiquorStoresCount  = "liquor_stores_count"
	NearestSubwayM     = "nearest_subway_meters"
	StreetLightsCount  = "street_lights_count"
	AbandonedBuildings = "abandoned_buildings_count"
	PopulationDensity  = "population_density"
	UnemploymentRate   = "unemployment_rate"
	MedianIncome       = "median_income"
)

// DefaultValue is substituted for any feature never written to a cell.
const DefaultValue = 0.0

// Catalog returns the canonical feature keys in stable order.
func Catalog() []string {
	return []string{
		BarsCount,
		NightclubsCount,
		LiquorStoresCount,
		NearestSubwayM,
		StreetLightsCount,
		AbandonedBuildings,
		PopulationDensity,
		UnemploymentRate,
		MedianIncome,
	}
}

// Group maps a feature key to its explanation group. Unknown keys fall into
// the socioeconomic bucket, matching how reports aggregate residual factors.
func Group(key string) string {
	switch key {
	case BarsCount, NightclubsCount, LiquorStoresCount:
		return "alcohol_density"
	case NearestSubwayM:
		return "transit_proximity"
	case StreetLightsCount:
		return "lighting"
	case AbandonedBuildings:
		return "vacancy"
	case PopulationDensity:
		return "population"
	default:
		return "socioeconomic"
	}
}
