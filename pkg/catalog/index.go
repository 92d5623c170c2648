package catalog

import (
	"sort"

	"github.com/uber/h3-go/v4"

	"roamradio/pkg/geo"
	"roamradio/pkg/model"
)

const (
	// Resolution 3 cells have an average edge length of ~59.8km, a good
	// match for station coverage radii in the tens-to-hundreds of km.
	indexResolution = 3
	cellEdgeKm      = 59.81
)

// cellIndex buckets stations by H3 cell so range queries only visit the
// cells covering the query disk instead of the whole catalog.
type cellIndex struct {
	cells map[h3.Cell][]int
}

func newCellIndex(stations []model.Station) (*cellIndex, error) {
	idx := &cellIndex{cells: make(map[h3.Cell][]int)}
	for i := range stations {
		cell, err := h3.LatLngToCell(h3.NewLatLng(stations[i].Lat, stations[i].Lon), indexResolution)
		if err != nil {
			return nil, err
		}
		idx.cells[cell] = append(idx.cells[cell], i)
	}
	return idx, nil
}

// candidates returns the indices of stations inside the cells covering a
// disk of radiusKm around p. Callers must still filter by exact distance.
func (idx *cellIndex) candidates(p geo.Point, radiusKm float64) ([]int, error) {
	origin, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lon), indexResolution)
	if err != nil {
		return nil, err
	}

	// One extra ring guards against the query point sitting on a cell edge.
	k := int(radiusKm/cellEdgeKm) + 2
	disk, err := origin.GridDisk(k)
	if err != nil {
		return nil, err
	}

	var out []int
	for _, cell := range disk {
		out = append(out, idx.cells[cell]...)
	}
	return out, nil
}

// Nearby returns the stations within radiusKm of p, nearest first.
// Equidistant stations keep their catalog insertion order.
func (c *Catalog) Nearby(p geo.Point, radiusKm float64) ([]model.Station, error) {
	indices, err := c.index.candidates(p, radiusKm)
	if err != nil {
		return nil, err
	}

	type hit struct {
		idx  int
		dist float64
	}
	var hits []hit
	for _, i := range indices {
		if d := geo.DistanceKm(p, c.stations[i].Point()); d <= radiusKm {
			hits = append(hits, hit{idx: i, dist: d})
		}
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].dist != hits[b].dist {
			return hits[a].dist < hits[b].dist
		}
		return hits[a].idx < hits[b].idx
	})

	out := make([]model.Station, len(hits))
	for i, h := range hits {
		out[i] = c.stations[h.idx]
	}
	return out, nil
}
