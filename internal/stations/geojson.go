package stations

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// ParseGeoJSON reads station points from a GeoJSON FeatureCollection file.
// Non-point geometries are skipped. Name and address come from the feature
// properties when present.
func ParseGeoJSON(path string) ([]Station, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "stations: read %s", path)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, eris.Wrapf(err, "stations: parse geojson %s", path)
	}

	out := make([]Station, 0, len(fc.Features))
	for i, f := range fc.Features {
		pt, ok := f.Geometry.(*geom.Point)
		if !ok {
			continue
		}
		coords := pt.Coords()

		st := Station{
			ID:      uuid.New().String(),
			Name:    propString(f.Properties, "name"),
			Address: propString(f.Properties, "address"),
			Lon:     coords.X(),
			Lat:     coords.Y(),
		}
		if f.ID != "" {
			st.ID = f.ID
		}
		if st.Name == "" {
			st.Name = fmt.Sprintf("Station %d", i+1)
		}
		if err := st.Validate(); err != nil {
			return nil, eris.Wrapf(err, "stations: feature %d", i)
		}
		out = append(out, st)
	}
	return out, nil
}

func propString(props map[string]interface{}, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}
