package risk

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/riskmap/internal/feature"
	"github.com/sells-group/riskmap/internal/grid"
	"github.com/sells-group/riskmap/internal/monitoring"
	"github.com/sells-group/riskmap/internal/weights"
)

// ErrUnknownCell is returned when a query names a cell id the spatial index
// does not contain. No default is fabricated.
var ErrUnknownCell = eris.New("risk: unknown cell")

// ZoneScore is the query-boundary record for one scored cell.
type ZoneScore struct {
	CellID          string    `json:"cell_id"`
	CenterLat       float64   `json:"center_lat"`
	CenterLon       float64   `json:"center_lon"`
	RawScore        float64   `json:"raw_score"`
	AdjustedScore   float64   `json:"adjusted_score"`
	NormalizedScore float64   `json:"risk_score"`
	Tier            Tier      `json:"risk_level"`
	Confidence      float64   `json:"confidence"`
	DistanceMiles   float64   `json:"distance_miles,omitempty"`
	PredictionTime  time.Time `json:"prediction_time"`
}

// AttributionResult is the explainability record for one cell.
type AttributionResult struct {
	CellID         string                `json:"cell_id"`
	Tier           Tier                  `json:"risk_level"`
	AdjustedScore  float64               `json:"adjusted_score"`
	PerFeature     []Contribution        `json:"per_feature"`
	Grouped        []GroupedContribution `json:"grouped"`
	Explanation    string                `json:"explanation"`
	PredictionTime time.Time             `json:"prediction_time"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock swaps the time source, used to pin the default prediction time
// in tests.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithBaseConfidence overrides the confidence assigned to a fully-populated
// feature vector.
func WithBaseConfidence(base float64) Option {
	return func(e *Engine) { e.baseConfidence = base }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger overrides the engine's logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine computes relative, explainable risk scores for grid cells. Scoring
// is stateless per call: each query captures one configuration snapshot and
// one feature epoch, so concurrent queries, feature writes, and weight swaps
// never mix state within a single computation.
type Engine struct {
	idx            *grid.Index
	features       *feature.Store
	weights        *weights.Handle
	clock          clockwork.Clock
	baseConfidence float64
	metrics        *monitoring.Metrics
	logger         *zap.Logger

	// Population snapshots are the dominant cost: one full-cell scan per
	// (hour, config version, feature epoch). The last snapshot is kept and
	// reused across cells and across requests with the same key.
	popMu  sync.Mutex
	popCur *population
}

// NewEngine assembles an engine over an index, feature store, and weight
// handle. The handle's initial configuration must already be validated.
func NewEngine(idx *grid.Index, features *feature.Store, handle *weights.Handle, opts ...Option) *Engine {
	e := &Engine{
		idx:            idx,
		features:       features,
		weights:        handle,
		clock:          clockwork.NewRealClock(),
		baseConfidence: 0.75,
		logger:         zap.L().Named("risk"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Index exposes the engine's spatial index to the query boundary.
func (e *Engine) Index() *grid.Index { return e.idx }

// Features exposes the feature store for the enrichment collaborator.
func (e *Engine) Features() *feature.Store { return e.features }

// Weights exposes the configuration handle for the trainer collaborator.
func (e *Engine) Weights() *weights.Handle { return e.weights }

// resolveTime applies the default prediction time: one hour from now when
// the caller passes the zero time.
func (e *Engine) resolveTime(at time.Time) time.Time {
	if at.IsZero() {
		return e.clock.Now().Add(time.Hour)
	}
	return at
}

// populationFor returns the population snapshot for the given hour under the
// given configuration snapshot, rebuilding only when the hour, configuration
// version, or feature epoch changed.
func (e *Engine) populationFor(cfg *weights.Config, hour int) *population {
	epoch := e.features.Epoch()

	e.popMu.Lock()
	defer e.popMu.Unlock()

	if p := e.popCur; p != nil && p.hour == hour && p.configVersion == cfg.Version && p.epoch == epoch {
		if e.metrics != nil {
			e.metrics.SnapshotHits.Inc()
		}
		return p
	}

	p := buildPopulation(e.features.Snapshot(), cfg, hour, epoch)
	e.popCur = p
	if e.metrics != nil {
		e.metrics.SnapshotBuilds.Inc()
	}
	return p
}

// Score computes the raw and time-adjusted score with full attribution for
// one cell. The attribution contributions sum exactly to the adjusted score.
func (e *Engine) Score(cellID string, at time.Time) (ScoreResult, error) {
	if _, ok := e.idx.Cell(cellID); !ok {
		return ScoreResult{}, eris.Wrapf(ErrUnknownCell, "risk: score %q", cellID)
	}
	at = e.resolveTime(at)

	cfg := e.weights.Active()
	vec, err := e.features.Vector(cellID)
	if err != nil {
		return ScoreResult{}, err
	}
	return scoreVector(cellID, vec, cfg, at), nil
}

// QueryZones scores every cell whose centroid lies within radiusMiles of the
// center point. Results are ordered by distance then cell identity. Radius
// validation and clamping policy belong to the caller's boundary layer.
func (e *Engine) QueryZones(lat, lon, radiusMiles float64, at time.Time) ([]ZoneScore, error) {
	at = e.resolveTime(at)
	start := e.clock.Now()

	cfg := e.weights.Active()
	pop := e.populationFor(cfg, at.Hour())

	cells := e.idx.CellsWithinRadius(lat, lon, radiusMiles)
	out := make([]ZoneScore, 0, len(cells))
	for _, c := range cells {
		zs, err := e.zoneScore(c, cfg, pop, at)
		if err != nil {
			return nil, err
		}
		zs.DistanceMiles = grid.Haversine(lat, lon, c.CentroidLat, c.CentroidLon)
		out = append(out, zs)
	}

	if e.metrics != nil {
		e.metrics.ScoringDuration.Observe(e.clock.Since(start).Seconds())
	}
	return out, nil
}

// QueryNearest scores the single cell nearest to the point. Points outside
// the region boundary degrade to the nearest cell rather than failing.
func (e *Engine) QueryNearest(lat, lon float64, at time.Time) (ZoneScore, error) {
	at = e.resolveTime(at)

	cfg := e.weights.Active()
	pop := e.populationFor(cfg, at.Hour())

	c := e.idx.NearestCell(lat, lon)
	zs, err := e.zoneScore(c, cfg, pop, at)
	if err != nil {
		return ZoneScore{}, err
	}
	zs.DistanceMiles = grid.Haversine(lat, lon, c.CentroidLat, c.CentroidLon)
	return zs, nil
}

// QueryAttribution returns the per-feature and grouped decomposition of a
// cell's time-adjusted score plus the deterministic explanation text.
func (e *Engine) QueryAttribution(cellID string, at time.Time) (AttributionResult, error) {
	if _, ok := e.idx.Cell(cellID); !ok {
		return AttributionResult{}, eris.Wrapf(ErrUnknownCell, "risk: attribution %q", cellID)
	}
	at = e.resolveTime(at)

	// One configuration snapshot covers both the attribution and the tier.
	cfg := e.weights.Active()
	vec, err := e.features.Vector(cellID)
	if err != nil {
		return AttributionResult{}, err
	}
	res := scoreVector(cellID, vec, cfg, at)
	pop := e.populationFor(cfg, at.Hour())
	tier := pop.tiers[cellID]

	grouped := groupContributions(res.Attribution)
	return AttributionResult{
		CellID:         cellID,
		Tier:           tier,
		AdjustedScore:  res.AdjustedScore,
		PerFeature:     res.Attribution,
		Grouped:        grouped,
		Explanation:    explain(tier, res.PredictionTime.Hour(), grouped),
		PredictionTime: res.PredictionTime,
	}, nil
}

// zoneScore assembles the boundary record for one cell from a population
// snapshot. cfg must be the same snapshot the population was built with so
// one record never mixes two configurations.
func (e *Engine) zoneScore(c grid.Cell, cfg *weights.Config, pop *population, at time.Time) (ZoneScore, error) {
	completeness, err := e.features.Completeness(c.ID)
	if err != nil {
		return ZoneScore{}, err
	}

	if completeness < 1 {
		// A sparse vector is a data-quality signal: the cell scored, but its
		// confidence is discounted and the gap should be visible upstream.
		e.logger.Debug("incomplete feature vector",
			zap.String("cell_id", c.ID),
			zap.Float64("completeness", completeness))
	}

	adj := pop.adjusted[c.ID]
	raw := adj / cfg.Multiplier(pop.hour) // multipliers are validated positive

	return ZoneScore{
		CellID:          c.ID,
		CenterLat:       c.CentroidLat,
		CenterLon:       c.CentroidLon,
		RawScore:        raw,
		AdjustedScore:   adj,
		NormalizedScore: round2(pop.normalized[c.ID]),
		Tier:            pop.tiers[c.ID],
		Confidence:      confidence(e.baseConfidence, completeness),
		PredictionTime:  at,
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
