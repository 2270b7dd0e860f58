// Package grid partitions a bounded region into a fixed tessellation of
// uniform cells and answers containment, radius, and nearest-cell queries.
package grid

import (
	"fmt"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// EarthRadiusMiles is the mean Earth radius used for great-circle distances.
const EarthRadiusMiles = 3958.8

// MilesPerDegreeLat converts latitude degrees to miles.
const MilesPerDegreeLat = EarthRadiusMiles * math.Pi / 180

// Region is the geographic bounding box covered by the grid.
type Region struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// Validate checks that the region bounds form a non-degenerate box.
func (r Region) Validate() error {
	if r.MaxLat <= r.MinLat {
		return eris.Errorf("grid: invalid region: max_lat %.4f <= min_lat %.4f", r.MaxLat, r.MinLat)
	}
	if r.MaxLon <= r.MinLon {
		return eris.Errorf("grid: invalid region: max_lon %.4f <= min_lon %.4f", r.MaxLon, r.MinLon)
	}
	if r.MinLat < -90 || r.MaxLat > 90 || r.MinLon < -180 || r.MaxLon > 180 {
		return eris.New("grid: region bounds out of range")
	}
	return nil
}

// Contains reports whether a point lies inside the region (edges inclusive).
func (r Region) Contains(lat, lon float64) bool {
	return lat >= r.MinLat && lat <= r.MaxLat && lon >= r.MinLon && lon <= r.MaxLon
}

// Diagonal returns the great-circle distance in miles across the region.
func (r Region) Diagonal() float64 {
	return Haversine(r.MinLat, r.MinLon, r.MaxLat, r.MaxLon)
}

// Cell is one static unit of the tessellation. Geometry never changes after
// the grid is built; only feature values attached elsewhere mutate.
type Cell struct {
	ID          string  `json:"cell_id"`
	Row         int     `json:"row"`
	Col         int     `json:"col"`
	CentroidLat float64 `json:"center_lat"`
	CentroidLon float64 `json:"center_lon"`
}

// Index is the immutable spatial index over the region's cells.
type Index struct {
	region   Region
	cellSize float64 // miles
	latStep  float64 // degrees
	lonStep  float64 // degrees
	rows     int
	cols     int
	cells    []Cell          // row-major
	byID     map[string]*Cell
}

// New deterministically builds the covering grid for a region. Every point in
// the region maps to exactly one cell; adjacent cells share edges with no
// gaps or overlaps. Rebuilding with the same inputs yields identical cell
// identities.
func New(region Region, cellSizeMiles float64) (*Index, error) {
	if err := region.Validate(); err != nil {
		return nil, err
	}
	if cellSizeMiles <= 0 {
		return nil, eris.New("grid: cell size must be positive")
	}

	midLat := (region.MinLat + region.MaxLat) / 2
	latStep := cellSizeMiles / MilesPerDegreeLat
	lonStep := cellSizeMiles / (MilesPerDegreeLat * math.Cos(midLat*math.Pi/180))

	rows := int(math.Ceil((region.MaxLat - region.MinLat) / latStep))
	cols := int(math.Ceil((region.MaxLon - region.MinLon) / lonStep))
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}

	idx := &Index{
		region:   region,
		cellSize: cellSizeMiles,
		latStep:  latStep,
		lonStep:  lonStep,
		rows:     rows,
		cols:     cols,
		cells:    make([]Cell, 0, rows*cols),
		byID:     make(map[string]*Cell, rows*cols),
	}

	res := int(math.Round(cellSizeMiles * 1000)) // milli-miles, part of the identity
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			idx.cells = append(idx.cells, Cell{
				ID:          fmt.Sprintf("c%d-%04d-%04d", res, row, col),
				Row:         row,
				Col:         col,
				CentroidLat: region.MinLat + (float64(row)+0.5)*latStep,
				CentroidLon: region.MinLon + (float64(col)+0.5)*lonStep,
			})
		}
	}
	for i := range idx.cells {
		idx.byID[idx.cells[i].ID] = &idx.cells[i]
	}

	zap.L().Info("grid built",
		zap.Int("rows", rows),
		zap.Int("cols", cols),
		zap.Int("cells", len(idx.cells)),
		zap.Float64("cell_size_miles", cellSizeMiles),
	)
	return idx, nil
}

// Region returns the region bounds the index was built for.
func (idx *Index) Region() Region { return idx.region }

// CellSizeMiles returns the configured cell edge length.
func (idx *Index) CellSizeMiles() float64 { return idx.cellSize }

// Len returns the number of cells in the grid.
func (idx *Index) Len() int { return len(idx.cells) }

// Cells returns all cells in deterministic row-major order. The returned
// slice is shared and must not be modified.
func (idx *Index) Cells() []Cell { return idx.cells }

// Cell looks up a cell by its identity.
func (idx *Index) Cell(id string) (Cell, bool) {
	c, ok := idx.byID[id]
	if !ok {
		return Cell{}, false
	}
	return *c, true
}

// CellBounds returns the lat/lon edges of a cell.
func (idx *Index) CellBounds(c Cell) (minLat, minLon, maxLat, maxLon float64) {
	minLat = idx.region.MinLat + float64(c.Row)*idx.latStep
	minLon = idx.region.MinLon + float64(c.Col)*idx.lonStep
	return minLat, minLon, minLat + idx.latStep, minLon + idx.lonStep
}

// ContainingCell returns the unique cell whose bounds contain the point.
// Points on a shared edge belong to the higher row/col; points on the
// region's max edges map to the last row/col so the whole boundary is
// covered. Returns false for points outside the region.
func (idx *Index) ContainingCell(lat, lon float64) (Cell, bool) {
	if !idx.region.Contains(lat, lon) {
		return Cell{}, false
	}
	row := clampInt(int(math.Floor((lat-idx.region.MinLat)/idx.latStep)), 0, idx.rows-1)
	col := clampInt(int(math.Floor((lon-idx.region.MinLon)/idx.lonStep)), 0, idx.cols-1)
	return idx.cells[row*idx.cols+col], true
}

// NearestCell returns the cell whose centroid minimizes great-circle distance
// to the point. Ties break to the lowest cell identity. Points outside the
// region boundary are served best-effort rather than rejected.
func (idx *Index) NearestCell(lat, lon float64) Cell {
	// The nearest centroid is always in the neighborhood of the clamped
	// containing position, because centroids are uniformly spaced.
	row := clampInt(int(math.Floor((lat-idx.region.MinLat)/idx.latStep)), 0, idx.rows-1)
	col := clampInt(int(math.Floor((lon-idx.region.MinLon)/idx.lonStep)), 0, idx.cols-1)

	best := idx.cells[row*idx.cols+col]
	bestDist := Haversine(lat, lon, best.CentroidLat, best.CentroidLon)

	for r := maxInt(row-2, 0); r <= minInt(row+2, idx.rows-1); r++ {
		for c := maxInt(col-2, 0); c <= minInt(col+2, idx.cols-1); c++ {
			cand := idx.cells[r*idx.cols+c]
			d := Haversine(lat, lon, cand.CentroidLat, cand.CentroidLon)
			if d < bestDist || (d == bestDist && cand.ID < best.ID) {
				best = cand
				bestDist = d
			}
		}
	}
	return best
}

// CellsWithinRadius returns every cell whose centroid lies within radiusMiles
// of the point, ordered by distance then cell identity. The cell containing
// the point is always included, even when the radius is smaller than the
// cell size.
func (idx *Index) CellsWithinRadius(lat, lon, radiusMiles float64) []Cell {
	if radiusMiles < 0 {
		radiusMiles = 0
	}

	type hit struct {
		cell Cell
		dist float64
	}

	// Candidate window in grid coordinates, padded by one cell for the
	// degree-to-mile approximation.
	dLat := radiusMiles / MilesPerDegreeLat
	cosLat := math.Cos(lat * math.Pi / 180)
	dLon := 180.0 // a degenerate cosine near the poles widens to a full scan
	if cosLat > 1e-6 {
		dLon = radiusMiles / (MilesPerDegreeLat * cosLat)
	}

	rowLo := clampInt(int(math.Floor((lat-dLat-idx.region.MinLat)/idx.latStep))-1, 0, idx.rows-1)
	rowHi := clampInt(int(math.Ceil((lat+dLat-idx.region.MinLat)/idx.latStep))+1, 0, idx.rows-1)
	colLo := clampInt(int(math.Floor((lon-dLon-idx.region.MinLon)/idx.lonStep))-1, 0, idx.cols-1)
	colHi := clampInt(int(math.Ceil((lon+dLon-idx.region.MinLon)/idx.lonStep))+1, 0, idx.cols-1)

	var hits []hit
	for r := rowLo; r <= rowHi; r++ {
		for c := colLo; c <= colHi; c++ {
			cand := idx.cells[r*idx.cols+c]
			d := Haversine(lat, lon, cand.CentroidLat, cand.CentroidLon)
			if d <= radiusMiles {
				hits = append(hits, hit{cell: cand, dist: d})
			}
		}
	}

	// The containing cell is part of the answer regardless of its centroid
	// distance.
	if home, ok := idx.ContainingCell(lat, lon); ok {
		found := false
		for _, h := range hits {
			if h.cell.ID == home.ID {
				found = true
				break
			}
		}
		if !found {
			hits = append(hits, hit{cell: home, dist: Haversine(lat, lon, home.CentroidLat, home.CentroidLon)})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].cell.ID < hits[j].cell.ID
	})

	out := make([]Cell, len(hits))
	for i, h := range hits {
		out[i] = h.cell
	}
	return out
}

// Haversine returns the great-circle distance in miles between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180
	dLat := (lat2 - lat1) * degToRad
	dLon := (lon2 - lon1) * degToRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMiles * c
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
