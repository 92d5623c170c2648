package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"roamradio/pkg/location"
	"roamradio/pkg/model"
	"roamradio/pkg/playback"
)

// PlaybackService is the subset of the playback engine the API consumes.
type PlaybackService interface {
	PlayStation(st model.Station)
	Play()
	Pause()
	Stop()
	Status() playback.Status
	SetVolume(vol float64)
	Volume() float64
}

// LocationService is the subset of the location tracker the API consumes.
type LocationService interface {
	Authorization() location.Authorization
	Active() bool
	LastError() string
	LastPosition() *model.PositionSample
	RequestPermission()
}

// SelectionService reports the current station choice.
type SelectionService interface {
	Current() *model.Station
}

// StatusHandler handles the status endpoint.
type StatusHandler struct {
	playback PlaybackService
	tracker  LocationService
	selector SelectionService
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(pb PlaybackService, tr LocationService, sel SelectionService) *StatusHandler {
	return &StatusHandler{playback: pb, tracker: tr, selector: sel}
}

// PlaybackStatus is the playback portion of the status response.
type PlaybackStatus struct {
	State     string         `json:"state"`
	Station   *model.Station `json:"station,omitempty"`
	Buffering bool           `json:"buffering"`
	Error     string         `json:"error,omitempty"`
	Volume    float64        `json:"volume"`
}

// LocationStatus is the location portion of the status response.
type LocationStatus struct {
	Authorization string                `json:"authorization"`
	Active        bool                  `json:"active"`
	Error         string                `json:"error,omitempty"`
	Position      *model.PositionSample `json:"position,omitempty"`
}

// StatusResponse is the full status payload.
type StatusResponse struct {
	Playback PlaybackStatus `json:"playback"`
	Location LocationStatus `json:"location"`
	Selected *model.Station `json:"selected,omitempty"`
}

// HandleStatus handles GET /api/status
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st := h.playback.Status()
	resp := StatusResponse{
		Playback: PlaybackStatus{
			State:     string(st.State),
			Station:   st.Station,
			Buffering: st.Buffering,
			Error:     st.Error,
			Volume:    h.playback.Volume(),
		},
		Location: LocationStatus{
			Authorization: string(h.tracker.Authorization()),
			Active:        h.tracker.Active(),
			Error:         h.tracker.LastError(),
			Position:      h.tracker.LastPosition(),
		},
		Selected: h.selector.Current(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode status response", "error", err)
	}
}

// HandleRequestPermission handles POST /api/location/permission
func (h *StatusHandler) HandleRequestPermission(w http.ResponseWriter, r *http.Request) {
	h.tracker.RequestPermission()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"authorization": string(h.tracker.Authorization()),
		"error":         h.tracker.LastError(),
	}); err != nil {
		slog.Error("Failed to encode permission response", "error", err)
	}
}
