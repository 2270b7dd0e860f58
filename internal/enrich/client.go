// Package enrich populates per-cell environmental features from
// OpenStreetMap via the Overpass API.
package enrich

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	overpass "github.com/serjvanilla/go-overpass"
	"golang.org/x/time/rate"

	"github.com/sells-group/riskmap/internal/feature"
	"github.com/sells-group/riskmap/internal/grid"
)

// Point is one POI location extracted from an Overpass result.
type Point struct {
	Lat float64
	Lon float64
}

// Category maps a feature key to its Overpass tag selector. One query per
// category covers the whole region; assigning results to cells locally is
// far cheaper than querying per cell.
type Category struct {
	Feature  string
	Selector string
}

// Categories are the countable POI types, in catalog order.
func Categories() []Category {
	return []Category{
		{Feature: feature.BarsCount, Selector: `["amenity"="bar"]`},
		{Feature: feature.NightclubsCount, Selector: `["amenity"="nightclub"]`},
		{Feature: feature.LiquorStoresCount, Selector: `["shop"="alcohol"]`},
		{Feature: feature.StreetLightsCount, Selector: `["highway"="street_lamp"]`},
		{Feature: feature.AbandonedBuildings, Selector: `["building"="abandoned"]`},
	}
}

// SubwaySelector matches subway stations, used for the nearest-distance
// feature rather than a count.
const SubwaySelector = `["railway"="station"]["station"="subway"]`

// Client is a rate-limited Overpass API client. Public Overpass instances
// throttle aggressively, so all queries share one limiter.
type Client struct {
	api     overpass.Client
	limiter *rate.Limiter
}

// NewClient builds a client against the given Overpass interpreter endpoint.
// minInterval spaces consecutive queries; zero means one second. timeout
// bounds each HTTP round trip; zero means 90 seconds, generous because
// region-wide Overpass queries routinely run long server-side.
func NewClient(endpoint string, minInterval, timeout time.Duration) *Client {
	if minInterval <= 0 {
		minInterval = time.Second
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	return &Client{
		api:     overpass.NewWithSettings(endpoint, 1, httpClient),
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

// Points queries one tag selector over the region and returns the matching
// POI locations: tagged nodes directly, ways by the centroid of their member
// nodes. Results come back sorted for deterministic downstream counts.
func (c *Client) Points(ctx context.Context, region grid.Region, selector string) ([]Point, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "enrich: rate limit wait")
	}

	bbox := fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", region.MinLat, region.MinLon, region.MaxLat, region.MaxLon)
	query := fmt.Sprintf(`[out:json][timeout:60];
(
  node%[1]s(%[2]s);
  way%[1]s(%[2]s);
);
out body;
>;
out skel qt;
`, selector, bbox)

	result, err := c.api.Query(query)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: overpass query %s", selector)
	}
	return extractPoints(&result), nil
}

// extractPoints keeps tagged nodes (the POIs themselves) and way centroids.
// Untagged nodes are way-member skeletons, not POIs.
func extractPoints(result *overpass.Result) []Point {
	var out []Point
	for _, node := range result.Nodes {
		if node == nil || len(node.Tags) == 0 {
			continue
		}
		out = append(out, Point{Lat: node.Lat, Lon: node.Lon})
	}
	for _, way := range result.Ways {
		if way == nil || len(way.Nodes) == 0 {
			continue
		}
		var lat, lon float64
		n := 0
		for _, member := range way.Nodes {
			if member == nil {
				continue
			}
			lat += member.Lat
			lon += member.Lon
			n++
		}
		if n == 0 {
			continue
		}
		out = append(out, Point{Lat: lat / float64(n), Lon: lon / float64(n)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Lat != out[j].Lat {
			return out[i].Lat < out[j].Lat
		}
		return out[i].Lon < out[j].Lon
	})
	return out
}
