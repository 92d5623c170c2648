package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"roamradio/pkg/store"
)

// HistoryHandler serves the station play history.
type HistoryHandler struct {
	store store.HistoryStore
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(st store.HistoryStore) *HistoryHandler {
	return &HistoryHandler{store: st}
}

// HistoryEntry is one play history row in the API response.
type HistoryEntry struct {
	StationID   string    `json:"station_id"`
	StationName string    `json:"station_name"`
	StartedAt   time.Time `json:"started_at"`
}

// HandleRecent handles GET /api/history?limit=..
func (h *HistoryHandler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := h.store.RecentPlays(r.Context(), limit)
	if err != nil {
		slog.Error("History query failed", "error", err)
		http.Error(w, "history query failed", http.StatusInternalServerError)
		return
	}

	entries := make([]HistoryEntry, 0, len(events))
	for _, ev := range events {
		entries = append(entries, HistoryEntry{
			StationID:   ev.StationID,
			StationName: ev.StationName,
			StartedAt:   ev.StartedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		slog.Error("Failed to encode history response", "error", err)
	}
}
