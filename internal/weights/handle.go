package weights

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Handle owns the active configuration. Scoring in flight holds the snapshot
// it captured from Active and never observes a half-applied swap.
type Handle struct {
	active atomic.Pointer[Config]
}

// NewHandle creates a handle with the given initial configuration. The
// initial config must already be validated.
func NewHandle(initial *Config) *Handle {
	h := &Handle{}
	h.active.Store(initial)
	return h
}

// Active returns the current configuration snapshot.
func (h *Handle) Active() *Config {
	return h.active.Load()
}

// Swap validates and atomically publishes a new configuration for all
// subsequent scoring calls. On validation failure the prior configuration
// remains active and the error is returned.
func (h *Handle) Swap(next *Config) error {
	if err := next.Validate(); err != nil {
		zap.L().Warn("weights: swap rejected",
			zap.String("version", next.Version),
			zap.Error(err),
		)
		return err
	}

	prev := h.active.Swap(next)
	zap.L().Info("weights: configuration swapped",
		zap.String("from", prev.Version),
		zap.String("to", next.Version),
	)
	return nil
}
