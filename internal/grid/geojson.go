package grid

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// CellPolygon returns the cell's footprint as a closed lon/lat polygon.
func (idx *Index) CellPolygon(c Cell) *geom.Polygon {
	minLat, minLon, maxLat, maxLon := idx.CellBounds(c)
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{minLon, minLat},
		{maxLon, minLat},
		{maxLon, maxLat},
		{minLon, maxLat},
		{minLon, minLat},
	}})
}

// GeoJSON renders the full grid as a GeoJSON FeatureCollection for map
// display. Cells appear in row-major order.
func (idx *Index) GeoJSON() ([]byte, error) {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(idx.cells))}
	for _, c := range idx.cells {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       c.ID,
			Geometry: idx.CellPolygon(c),
			Properties: map[string]interface{}{
				"cell_id":    c.ID,
				"center_lat": c.CentroidLat,
				"center_lon": c.CentroidLon,
			},
		})
	}
	out, err := json.Marshal(&fc)
	if err != nil {
		return nil, eris.Wrap(err, "grid: marshal geojson")
	}
	return out, nil
}
