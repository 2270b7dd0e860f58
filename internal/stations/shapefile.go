package stations

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ParseShapefile reads station points from an ESRI shapefile. Attribute
// names vary across municipal exports, so the name and address columns are
// matched case-insensitively against common aliases. Records without point
// geometry or with out-of-range coordinates are skipped, not fatal.
func ParseShapefile(shpPath string) ([]Station, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "stations: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}
	nameIdx := firstField(fieldIdx, "name", "station", "facility", "facname")
	addrIdx := firstField(fieldIdx, "address", "addr", "location", "street")

	var out []Station
	var skipped int
	for reader.Next() {
		n, shape := reader.Shape()

		pt, ok := pointOf(shape)
		if !ok {
			skipped++
			continue
		}

		st := Station{
			ID:  uuid.New().String(),
			Lat: pt.Y,
			Lon: pt.X,
		}
		if nameIdx >= 0 {
			st.Name = cleanAttr(reader.Attribute(nameIdx))
		}
		if st.Name == "" {
			st.Name = fmt.Sprintf("Station %d", n+1)
		}
		if addrIdx >= 0 {
			st.Address = cleanAttr(reader.Attribute(addrIdx))
		}
		if err := st.Validate(); err != nil {
			skipped++
			continue
		}
		out = append(out, st)
	}

	if skipped > 0 {
		zap.L().Debug("stations: skipped shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}
	return out, nil
}

func firstField(fieldIdx map[string]int, names ...string) int {
	for _, name := range names {
		if i, ok := fieldIdx[name]; ok {
			return i
		}
	}
	return -1
}

func pointOf(shape shp.Shape) (shp.Point, bool) {
	switch s := shape.(type) {
	case *shp.Point:
		return *s, true
	case *shp.PointZ:
		return shp.Point{X: s.X, Y: s.Y}, true
	case *shp.PointM:
		return shp.Point{X: s.X, Y: s.Y}, true
	default:
		return shp.Point{}, false
	}
}

func cleanAttr(v string) string {
	return strings.TrimSpace(strings.TrimRight(v, "\x00"))
}
