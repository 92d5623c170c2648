// Package selector decides which station should be playing for a given
// position. Switching applies a hysteresis margin so the selection does not
// flap near equidistant boundaries between two stations' coverage areas.
package selector

import (
	"log/slog"
	"sync"

	"roamradio/pkg/catalog"
	"roamradio/pkg/config"
	"roamradio/pkg/geo"
	"roamradio/pkg/model"
)

// Selector tracks the current station choice and evaluates position samples
// against the catalog. Safe for concurrent use.
type Selector struct {
	catalog     *catalog.Catalog
	thresholdKm float64
	jumpResetKm float64

	mu      sync.Mutex
	current *model.Station
	lastPos *geo.Point
}

// New creates a Selector over the given catalog.
func New(cat *catalog.Catalog, cfg config.SelectorConfig) *Selector {
	return &Selector{
		catalog:     cat,
		thresholdKm: cfg.SwitchThreshold.Km(),
		jumpResetKm: cfg.JumpReset.Km(),
	}
}

// Update evaluates a position sample and returns the station to switch to,
// or nil when the current selection should stand.
//
// The first fix after construction or Reset selects the nearest station
// unconditionally. After that a switch only happens when the nearest
// candidate is materially closer than the current station:
//
//	distToNearest < distToCurrent - threshold
func (s *Selector) Update(sample model.PositionSample) *model.Station {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := sample.Point()

	// An implausible jump between consecutive samples means the position
	// source was relocated (simulator repositioned, stale fix replaced).
	// Start over rather than applying hysteresis across the gap.
	if s.lastPos != nil && s.jumpResetKm > 0 {
		if jump := geo.DistanceKm(*s.lastPos, pos); jump > s.jumpResetKm {
			slog.Info("Selector: position jump, resetting selection",
				"jumpKm", int(jump))
			s.current = nil
		}
	}
	s.lastPos = &pos

	nearest := s.catalog.Nearest(pos)
	if nearest == nil {
		return nil
	}

	if s.current == nil {
		s.current = nearest
		slog.Info("Selector: first fix", "station", nearest.ID)
		return nearest
	}

	if nearest.ID == s.current.ID {
		return nil
	}

	distNearest := geo.DistanceKm(pos, nearest.Point())
	distCurrent := geo.DistanceKm(pos, s.current.Point())
	if distNearest < distCurrent-s.thresholdKm {
		slog.Info("Selector: switching station",
			"from", s.current.ID, "to", nearest.ID,
			"distKm", int(distNearest), "prevDistKm", int(distCurrent))
		s.current = nearest
		return nearest
	}

	return nil
}

// Current returns the currently selected station, or nil before the first fix.
func (s *Selector) Current() *model.Station {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Reset clears the selection and position history. The next Update behaves
// as a first fix.
func (s *Selector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.lastPos = nil
}
