// Package catalog holds the fixed set of known stations and answers
// proximity queries against it.
package catalog

import (
	"fmt"

	"roamradio/pkg/geo"
	"roamradio/pkg/model"
)

// Catalog is an immutable set of stations. Read-only after construction;
// safe for concurrent use.
type Catalog struct {
	stations []model.Station
	index    *cellIndex
}

// New validates the stations and builds the catalog.
// Insertion order is preserved and breaks distance ties in Nearest.
func New(stations []model.Station) (*Catalog, error) {
	seen := make(map[string]bool, len(stations))
	for i := range stations {
		if err := stations[i].Validate(); err != nil {
			return nil, err
		}
		if seen[stations[i].ID] {
			return nil, fmt.Errorf("duplicate station id %q", stations[i].ID)
		}
		seen[stations[i].ID] = true
	}

	owned := make([]model.Station, len(stations))
	copy(owned, stations)

	idx, err := newCellIndex(owned)
	if err != nil {
		return nil, fmt.Errorf("failed to build station index: %w", err)
	}

	return &Catalog{stations: owned, index: idx}, nil
}

// All returns all stations in insertion order.
func (c *Catalog) All() []model.Station {
	out := make([]model.Station, len(c.stations))
	copy(out, c.stations)
	return out
}

// Count returns the number of stations.
func (c *Catalog) Count() int {
	return len(c.stations)
}

// Get returns the station with the given id, or nil.
func (c *Catalog) Get(id string) *model.Station {
	for i := range c.stations {
		if c.stations[i].ID == id {
			s := c.stations[i]
			return &s
		}
	}
	return nil
}

// Nearest returns the station minimizing DistanceKm to p, or nil if the
// catalog is empty. Ties go to the station inserted first.
func (c *Catalog) Nearest(p geo.Point) *model.Station {
	if len(c.stations) == 0 {
		return nil
	}

	best := 0
	bestDist := geo.DistanceKm(p, c.stations[0].Point())
	for i := 1; i < len(c.stations); i++ {
		// Strict less-than keeps the earlier station on exact ties.
		if d := geo.DistanceKm(p, c.stations[i].Point()); d < bestDist {
			best = i
			bestDist = d
		}
	}

	s := c.stations[best]
	return &s
}
