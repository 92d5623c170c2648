package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"roamradio/pkg/catalog"
	"roamradio/pkg/geo"
	"roamradio/pkg/model"
)

const defaultNearbyRadiusKm = 150.0

// StationsHandler serves the station catalog.
type StationsHandler struct {
	catalog *catalog.Catalog
}

// NewStationsHandler creates a new StationsHandler.
func NewStationsHandler(cat *catalog.Catalog) *StationsHandler {
	return &StationsHandler{catalog: cat}
}

// HandleList handles GET /api/stations
func (h *StationsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.catalog.All()); err != nil {
		slog.Error("Failed to encode stations response", "error", err)
	}
}

// HandleNearby handles GET /api/stations/nearby?lat=..&lon=..&radius_km=..
func (h *StationsHandler) HandleNearby(w http.ResponseWriter, r *http.Request) {
	lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil {
		http.Error(w, "invalid or missing lat", http.StatusBadRequest)
		return
	}
	lon, err := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if err != nil {
		http.Error(w, "invalid or missing lon", http.StatusBadRequest)
		return
	}

	radius := defaultNearbyRadiusKm
	if raw := r.URL.Query().Get("radius_km"); raw != "" {
		radius, err = strconv.ParseFloat(raw, 64)
		if err != nil || radius <= 0 {
			http.Error(w, "invalid radius_km", http.StatusBadRequest)
			return
		}
	}

	stations, err := h.catalog.Nearby(geo.Point{Lat: lat, Lon: lon}, radius)
	if err != nil {
		slog.Error("Nearby query failed", "error", err)
		http.Error(w, "nearby query failed", http.StatusInternalServerError)
		return
	}
	if stations == nil {
		stations = []model.Station{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stations); err != nil {
		slog.Error("Failed to encode nearby response", "error", err)
	}
}
