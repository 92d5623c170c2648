package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"roamradio/pkg/catalog"
	"roamradio/pkg/store"
)

// ControlHandler handles playback control endpoints.
type ControlHandler struct {
	playback PlaybackService
	catalog  *catalog.Catalog
	store    store.StateStore
}

// NewControlHandler creates a new ControlHandler.
func NewControlHandler(pb PlaybackService, cat *catalog.Catalog, st store.StateStore) *ControlHandler {
	return &ControlHandler{playback: pb, catalog: cat, store: st}
}

// ControlRequest represents a playback control command.
type ControlRequest struct {
	Action    string `json:"action"` // "play", "pause", "stop", "play_station"
	StationID string `json:"station_id,omitempty"`
}

// VolumeRequest represents a volume change request.
type VolumeRequest struct {
	Volume float64 `json:"volume"`
}

// HandleControl handles POST /api/control
func (h *ControlHandler) HandleControl(w http.ResponseWriter, r *http.Request) {
	var req ControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	switch req.Action {
	case "play":
		h.playback.Play()
	case "pause":
		h.playback.Pause()
	case "stop":
		h.playback.Stop()
	case "play_station":
		st := h.catalog.Get(req.StationID)
		if st == nil {
			http.Error(w, fmt.Sprintf("unknown station %q", req.StationID), http.StatusNotFound)
			return
		}
		h.playback.PlayStation(*st)
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}

	slog.Debug("Playback control", "action", req.Action, "station", req.StationID)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"action": req.Action,
	}); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// HandleVolume handles POST /api/volume
func (h *ControlHandler) HandleVolume(w http.ResponseWriter, r *http.Request) {
	var req VolumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Volume < 0 || req.Volume > 1 {
		http.Error(w, "volume must be between 0 and 1", http.StatusBadRequest)
		return
	}

	h.playback.SetVolume(req.Volume)

	// Persist volume
	if h.store != nil {
		strVal := fmt.Sprintf("%.2f", req.Volume)
		if err := h.store.SetState(r.Context(), store.KeyVolume, strVal); err != nil {
			slog.Error("Failed to persist volume", "error", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"volume": h.playback.Volume(),
	}); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
