package enrich

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/riskmap/internal/feature"
	"github.com/sells-group/riskmap/internal/grid"
)

// MetersPerMile converts haversine miles to the meters the subway-distance
// feature is expressed in.
const MetersPerMile = 1609.344

// maxSubwayMeters caps the nearest-subway distance. Beyond 10 km the feature
// carries no proximity signal, and an uncapped value would let one remote
// cell dominate the coefficient's raw-unit scale.
const maxSubwayMeters = 10000

// FeatureSink receives the enriched vectors: the in-memory store, with
// persistence layered behind it by the caller.
type FeatureSink interface {
	SetFeatures(cellID string, values feature.Vector) error
}

// Summary reports what one enrichment run produced.
type Summary struct {
	CellsUpdated int
	POICounts    map[string]int
	SubwayCount  int
}

// Enricher fetches region-wide POI data and writes per-cell features.
type Enricher struct {
	client    *Client
	idx       *grid.Index
	sink      FeatureSink
	workers   int
	subwayPad float64
	logger    *zap.Logger
}

// EnricherOption configures an Enricher.
type EnricherOption func(*Enricher)

// WithSubwayPad widens the subway query bounding box by the given number of
// miles on every side. Border cells may sit closer to a station just outside
// the region than to any inside it; without the pad their distance reads
// high.
func WithSubwayPad(miles float64) EnricherOption {
	return func(e *Enricher) {
		if miles > 0 {
			e.subwayPad = miles
		}
	}
}

// NewEnricher assembles an enricher. workers bounds the per-cell assembly
// goroutines; zero means 8.
func NewEnricher(client *Client, idx *grid.Index, sink FeatureSink, workers int, opts ...EnricherOption) *Enricher {
	if workers <= 0 {
		workers = 8
	}
	e := &Enricher{
		client:  client,
		idx:     idx,
		sink:    sink,
		workers: workers,
		logger:  zap.L().Named("enrich"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run queries every POI category once over the whole region, assigns the
// results to cells, and writes each cell's new values in one atomic call so
// readers never observe a partially updated vector. A failed run leaves
// prior values intact.
func (e *Enricher) Run(ctx context.Context) (Summary, error) {
	categories := Categories()

	// Fetch phase. The shared limiter serializes the actual requests; the
	// group mainly overlaps decode work and keeps cancellation simple.
	points := make([][]Point, len(categories))
	var subway []Point

	g, gctx := errgroup.WithContext(ctx)
	for i, cat := range categories {
		g.Go(func() error {
			pts, err := e.client.Points(gctx, e.idx.Region(), cat.Selector)
			if err != nil {
				return err
			}
			points[i] = pts
			return nil
		})
	}
	g.Go(func() error {
		pts, err := e.client.Points(gctx, padRegion(e.idx.Region(), e.subwayPad), SubwaySelector)
		if err != nil {
			return err
		}
		subway = pts
		return nil
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	summary := Summary{POICounts: make(map[string]int, len(categories)), SubwayCount: len(subway)}

	// Count POIs per containing cell.
	counts := make([]map[string]float64, len(categories))
	for i, cat := range categories {
		counts[i] = make(map[string]float64)
		for _, p := range points[i] {
			if c, ok := e.idx.ContainingCell(p.Lat, p.Lon); ok {
				counts[i][c.ID]++
			}
		}
		summary.POICounts[cat.Feature] = len(points[i])
	}

	// Assembly phase: one vector per cell, written atomically.
	cells := e.idx.Cells()
	vectors := make([]feature.Vector, len(cells))

	ag, _ := errgroup.WithContext(ctx)
	ag.SetLimit(e.workers)
	for i, c := range cells {
		ag.Go(func() error {
			vec := feature.Vector{}
			for j, cat := range categories {
				if v, ok := counts[j][c.ID]; ok {
					vec[cat.Feature] = v
				}
			}
			// Without any station in range the distance is unknown, and
			// writing the zero default would read as "on top of a subway".
			if d, ok := nearestMeters(subway, c.CentroidLat, c.CentroidLon); ok {
				vec[feature.NearestSubwayM] = d
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := ag.Wait(); err != nil {
		return Summary{}, err
	}

	for i, c := range cells {
		if len(vectors[i]) == 0 {
			continue
		}
		if err := e.sink.SetFeatures(c.ID, vectors[i]); err != nil {
			return Summary{}, eris.Wrapf(err, "enrich: write cell %s", c.ID)
		}
		summary.CellsUpdated++
	}

	e.logger.Info("enrichment run complete",
		zap.Int("cells_updated", summary.CellsUpdated),
		zap.Int("subway_stations", summary.SubwayCount),
		zap.Any("poi_counts", summary.POICounts),
	)
	return summary, nil
}

// VectorsByCell filters a feature snapshot down to cells the index knows,
// the shape the store's bulk upsert expects.
func VectorsByCell(idx *grid.Index, snapshot map[string]feature.Vector) map[string]feature.Vector {
	out := make(map[string]feature.Vector, len(snapshot))
	for id, vec := range snapshot {
		if _, ok := idx.Cell(id); ok {
			out[id] = vec
		}
	}
	return out
}

// padRegion expands a region by the given number of miles on every side.
// Longitude degrees shrink with latitude, so the east-west pad is scaled by
// the cosine of the region's mid-latitude.
func padRegion(r grid.Region, miles float64) grid.Region {
	if miles <= 0 {
		return r
	}
	latPad := miles / grid.MilesPerDegreeLat
	midLat := (r.MinLat + r.MaxLat) / 2
	lonPad := latPad / math.Cos(midLat*math.Pi/180)
	return grid.Region{
		MinLat: r.MinLat - latPad,
		MaxLat: r.MaxLat + latPad,
		MinLon: r.MinLon - lonPad,
		MaxLon: r.MaxLon + lonPad,
	}
}

func nearestMeters(stations []Point, lat, lon float64) (float64, bool) {
	if len(stations) == 0 {
		return 0, false
	}
	best := grid.Haversine(lat, lon, stations[0].Lat, stations[0].Lon)
	for _, s := range stations[1:] {
		if d := grid.Haversine(lat, lon, s.Lat, s.Lon); d < best {
			best = d
		}
	}
	return math.Min(best*MetersPerMile, maxSubwayMeters), true
}
