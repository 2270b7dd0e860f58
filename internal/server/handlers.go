package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/riskmap/internal/feature"
	"github.com/sells-group/riskmap/internal/risk"
	"github.com/sells-group/riskmap/internal/weights"
)

// defaultRadiusMiles applies when a risk-zones query omits the radius and
// no WithDefaultRadius override was given.
const defaultRadiusMiles = 1.0

func (s *Server) handleRiskZones(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := s.parseLatLon(w, r)
	if !ok {
		s.countQuery("risk-zones", false)
		return
	}
	at, ok := s.parseTime(w, r)
	if !ok {
		s.countQuery("risk-zones", false)
		return
	}

	radius := s.defaultRadius
	if raw := r.URL.Query().Get("radius"); raw != "" {
		var err error
		radius, err = strconv.ParseFloat(raw, 64)
		if err != nil || radius <= 0 {
			respondError(w, http.StatusBadRequest, "radius must be a positive number of miles")
			s.countQuery("risk-zones", false)
			return
		}
	}
	// Boundary policy: clamp rather than reject a radius beyond the region.
	if diag := s.engine.Index().Region().Diagonal(); radius > diag {
		radius = diag
	}

	zones, err := s.engine.QueryZones(lat, lon, radius, at)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "scoring failed")
		s.logger.Error("risk-zones query", zap.Error(err))
		s.countQuery("risk-zones", false)
		return
	}
	s.countQuery("risk-zones", true)
	respondJSON(w, http.StatusOK, map[string]any{
		"center_lat":   lat,
		"center_lon":   lon,
		"radius_miles": radius,
		"zones":        zones,
	})
}

func (s *Server) handleRiskAtPoint(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := s.parseLatLon(w, r)
	if !ok {
		s.countQuery("risk-at-point", false)
		return
	}
	at, ok := s.parseTime(w, r)
	if !ok {
		s.countQuery("risk-at-point", false)
		return
	}

	zone, err := s.engine.QueryNearest(lat, lon, at)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "scoring failed")
		s.logger.Error("risk-at-point query", zap.Error(err))
		s.countQuery("risk-at-point", false)
		return
	}
	s.countQuery("risk-at-point", true)
	respondJSON(w, http.StatusOK, zone)
}

func (s *Server) handleRiskFactors(w http.ResponseWriter, r *http.Request) {
	cellID := chi.URLParam(r, "cellID")
	at, ok := s.parseTime(w, r)
	if !ok {
		s.countQuery("risk-factors", false)
		return
	}

	res, err := s.engine.QueryAttribution(cellID, at)
	if err != nil {
		if eris.Is(err, risk.ErrUnknownCell) {
			respondError(w, http.StatusNotFound, "unknown cell: "+cellID)
		} else {
			respondError(w, http.StatusInternalServerError, "scoring failed")
			s.logger.Error("risk-factors query", zap.Error(err))
		}
		s.countQuery("risk-factors", false)
		return
	}
	s.countQuery("risk-factors", true)
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleWriteFeatures(w http.ResponseWriter, r *http.Request) {
	cellID := chi.URLParam(r, "cellID")

	var req struct {
		Features feature.Vector `json:"features"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Features) == 0 {
		respondError(w, http.StatusBadRequest, "features is required")
		return
	}

	if _, ok := s.engine.Index().Cell(cellID); !ok {
		respondError(w, http.StatusNotFound, "unknown cell: "+cellID)
		return
	}

	// Persist before applying: an error response must mean the write took
	// effect nowhere, not that a restart will quietly revert it.
	if err := s.store.UpsertFeatures(r.Context(), cellID, req.Features); err != nil {
		respondError(w, http.StatusInternalServerError, "feature persistence failed")
		s.logger.Error("feature persist", zap.String("cell", cellID), zap.Error(err))
		return
	}
	if err := s.engine.Features().SetFeatures(cellID, req.Features); err != nil {
		respondError(w, http.StatusInternalServerError, "feature write failed")
		s.logger.Error("feature write", zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.FeatureWrites.Inc()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"cell_id": cellID,
		"written": len(req.Features),
	})
}

func (s *Server) handlePublishWeights(w http.ResponseWriter, r *http.Request) {
	var cfg weights.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.engine.Weights().Swap(&cfg); err != nil {
		// The prior configuration stays active.
		if s.metrics != nil {
			s.metrics.WeightSwapsRejected.Inc()
		}
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := s.store.SaveWeights(r.Context(), &cfg); err != nil {
		s.logger.Error("weights persist", zap.String("version", cfg.Version), zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.WeightSwaps.Inc()
		s.metrics.SetActiveWeights(cfg.Version)
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "active",
		"version": cfg.Version,
	})
}

func (s *Server) handleGridGeoJSON(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.Index().GeoJSON()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "grid export failed")
		s.logger.Error("grid geojson", zap.Error(err))
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	region := s.engine.Index().Region()
	minLat, maxLat := region.MinLat, region.MaxLat
	minLon, maxLon := region.MinLon, region.MaxLon

	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *float64
	}{
		{"min_lat", &minLat}, {"max_lat", &maxLat},
		{"min_lon", &minLon}, {"max_lon", &maxLon},
	} {
		if raw := q.Get(p.name); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				respondError(w, http.StatusBadRequest, p.name+" must be a number")
				return
			}
			*p.dst = v
		}
	}

	sts, err := s.store.StationsWithin(r.Context(), minLat, minLon, maxLat, maxLon)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "station query failed")
		s.logger.Error("stations query", zap.Error(err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count":    len(sts),
		"stations": sts,
	})
}

// parseLatLon pulls the required lat/lon query parameters.
func (s *Server) parseLatLon(w http.ResponseWriter, r *http.Request) (lat, lon float64, ok bool) {
	q := r.URL.Query()
	var err error
	lat, err = strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "lat is required and must be a number")
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "lon is required and must be a number")
		return 0, 0, false
	}
	return lat, lon, true
}

// parseTime resolves the prediction time: an explicit RFC 3339 "time"
// parameter, an "hour" override on today's date, or the zero time for the
// engine's one-hour-ahead default.
func (s *Server) parseTime(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	q := r.URL.Query()
	if raw := q.Get("time"); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "time must be RFC 3339")
			return time.Time{}, false
		}
		return at, true
	}
	if raw := q.Get("hour"); raw != "" {
		hour, err := strconv.Atoi(raw)
		if err != nil || hour < 0 || hour > 23 {
			respondError(w, http.StatusBadRequest, "hour must be an integer in [0,23]")
			return time.Time{}, false
		}
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, true
}

func (s *Server) countQuery(endpoint string, ok bool) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	s.metrics.QueriesTotal.WithLabelValues(endpoint, outcome).Inc()
}
