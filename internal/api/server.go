// Package api exposes the HTTP and websocket control surface.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"roamradio/pkg/version"
)

// NewServer creates and configures the HTTP server.
// It accepts handlers for all API endpoints and a shutdownFunc for graceful shutdown.
func NewServer(addr string, status *StatusHandler, stations *StationsHandler, control *ControlHandler, history *HistoryHandler, hub *Hub, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health Endpoint
	mux.HandleFunc("GET /health", handleHealth)

	// 2. Version Endpoint
	mux.HandleFunc("GET /api/version", handleVersion)

	// 3. Status Endpoint
	mux.HandleFunc("GET /api/status", status.HandleStatus)
	mux.HandleFunc("POST /api/location/permission", status.HandleRequestPermission)

	// 4. Catalog Endpoints
	mux.HandleFunc("GET /api/stations", stations.HandleList)
	mux.HandleFunc("GET /api/stations/nearby", stations.HandleNearby)

	// 5. Playback Endpoints
	mux.HandleFunc("POST /api/control", control.HandleControl)
	mux.HandleFunc("POST /api/volume", control.HandleVolume)

	// 6. History Endpoint
	mux.HandleFunc("GET /api/history", history.HandleRecent)

	// 7. Websocket push surface
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	// 8. Shutdown Endpoint
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Call shutdown in a goroutine to allow response to flush
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}
