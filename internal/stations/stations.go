// Package stations loads and serves police station point data used as an
// overlay alongside risk zones.
package stations

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/riskmap/internal/grid"
)

// Station is one police station point.
type Station struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Address string  `json:"address,omitempty"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Validate checks coordinate sanity before persistence.
func (s Station) Validate() error {
	if s.Lat < -90 || s.Lat > 90 {
		return eris.Errorf("stations: latitude out of range: %.6f", s.Lat)
	}
	if s.Lon < -180 || s.Lon > 180 {
		return eris.Errorf("stations: longitude out of range: %.6f", s.Lon)
	}
	return nil
}

// FilterRegion keeps stations inside the region, ordered by id for
// deterministic output.
func FilterRegion(sts []Station, region grid.Region) []Station {
	out := make([]Station, 0, len(sts))
	for _, s := range sts {
		if region.Contains(s.Lat, s.Lon) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Nearest returns the station closest to a point and its distance in miles,
// or false when the slice is empty. Ties break on id.
func Nearest(sts []Station, lat, lon float64) (Station, float64, bool) {
	if len(sts) == 0 {
		return Station{}, 0, false
	}
	best := sts[0]
	bestDist := grid.Haversine(lat, lon, best.Lat, best.Lon)
	for _, s := range sts[1:] {
		d := grid.Haversine(lat, lon, s.Lat, s.Lon)
		if d < bestDist || (d == bestDist && s.ID < best.ID) {
			best, bestDist = s, d
		}
	}
	return best, bestDist, true
}
