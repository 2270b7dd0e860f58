package feature

import (
	"sync"

	"github.com/rotisserie/eris"
)

// ErrUnknownCell is returned for cell ids not present in the spatial index.
var ErrUnknownCell = eris.New("feature: unknown cell")

// Vector maps feature name to value. Vectors handed out by the store are
// copies and always fully populated over the catalog.
type Vector map[string]float64

// Store holds per-cell feature vectors. Reads see either all or none of a
// multi-feature write for a cell, never a partial update. The store owns the
// values; cell geometry lives in the spatial index and is never touched here.
type Store struct {
	mu    sync.RWMutex
	cells map[string]Vector
	epoch uint64
}

// NewStore creates a store covering exactly the given cell ids.
func NewStore(cellIDs []string) *Store {
	cells := make(map[string]Vector, len(cellIDs))
	for _, id := range cellIDs {
		cells[id] = Vector{}
	}
	return &Store{cells: cells}
}

// Len returns the number of known cells.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cells)
}

// Epoch returns a counter that advances on every successful write. Callers
// cache derived population state keyed by this value.
func (s *Store) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// Vector returns a fully-populated copy of the cell's feature vector,
// substituting the default for any feature never written. Extra keys written
// beyond the catalog are included.
func (s *Store) Vector(cellID string) (Vector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.cells[cellID]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownCell, "feature: get %q", cellID)
	}

	v := make(Vector, len(Catalog())+len(stored))
	for _, key := range Catalog() {
		v[key] = DefaultValue
	}
	for key, val := range stored {
		v[key] = val
	}
	return v, nil
}

// SetFeature writes a single feature value for a cell.
func (s *Store) SetFeature(cellID, name string, value float64) error {
	return s.SetFeatures(cellID, Vector{name: value})
}

// SetFeatures applies a multi-feature update to one cell atomically: a
// concurrent read sees all of the values or none of them. The update is
// all-or-nothing; an unknown cell leaves the store untouched.
func (s *Store) SetFeatures(cellID string, values Vector) error {
	if len(values) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.cells[cellID]
	if !ok {
		return eris.Wrapf(ErrUnknownCell, "feature: set %q", cellID)
	}
	for name, value := range values {
		stored[name] = value
	}
	s.epoch++
	return nil
}

// Completeness returns the fraction of catalog features holding a
// non-default value for the cell. Used to derive confidence.
func (s *Store) Completeness(cellID string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.cells[cellID]
	if !ok {
		return 0, eris.Wrapf(ErrUnknownCell, "feature: completeness %q", cellID)
	}

	catalog := Catalog()
	populated := 0
	for _, key := range catalog {
		if val, ok := stored[key]; ok && val != DefaultValue {
			populated++
		}
	}
	return float64(populated) / float64(len(catalog)), nil
}

// Snapshot returns a copy of every cell's fully-populated vector, suitable
// for a consistent full-population scan.
func (s *Store) Snapshot() map[string]Vector {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Vector, len(s.cells))
	for id, stored := range s.cells {
		v := make(Vector, len(Catalog())+len(stored))
		for _, key := range Catalog() {
			v[key] = DefaultValue
		}
		for key, val := range stored {
			v[key] = val
		}
		out[id] = v
	}
	return out
}
