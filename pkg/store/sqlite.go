package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"roamradio/pkg/db"
)

// State keys used by the application.
const (
	KeyVolume      = "volume"
	KeyLastStation = "last_station"
)

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *db.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- State ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM persistent_state WHERE key = ?", key).Scan(&val)
	if err != nil {
		// A read failure must not masquerade as a present-but-empty value.
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Error("Failed to read persistent state", "key", key, "error", err)
		}
		return "", false
	}
	return val, true
}

func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	query := `INSERT OR REPLACE INTO persistent_state (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now())
	return err
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM persistent_state WHERE key = ?", key)
	return err
}

// Volume returns the persisted volume, or the fallback when unset or invalid.
func (s *SQLiteStore) Volume(ctx context.Context, fallback float64) float64 {
	val, ok := s.GetState(ctx, KeyVolume)
	if !ok {
		return fallback
	}
	vol, err := strconv.ParseFloat(val, 64)
	if err != nil || vol < 0 || vol > 1 {
		return fallback
	}
	return vol
}

// SetVolume persists the volume level.
func (s *SQLiteStore) SetVolume(ctx context.Context, vol float64) error {
	return s.SetState(ctx, KeyVolume, strconv.FormatFloat(vol, 'f', -1, 64))
}

// LastStation returns the station id that was playing when the app last ran.
func (s *SQLiteStore) LastStation(ctx context.Context) (string, bool) {
	return s.GetState(ctx, KeyLastStation)
}

// SetLastStation persists the active station id.
func (s *SQLiteStore) SetLastStation(ctx context.Context, stationID string) error {
	return s.SetState(ctx, KeyLastStation, stationID)
}

// --- History ---

func (s *SQLiteStore) RecordPlay(ctx context.Context, stationID, stationName string) error {
	query := `INSERT INTO play_history (station_id, station_name, started_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, stationID, stationName, time.Now())
	return err
}

func (s *SQLiteStore) RecentPlays(ctx context.Context, limit int) ([]PlayEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT station_id, station_name, started_at
		 FROM play_history ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []PlayEvent
	for rows.Next() {
		var ev PlayEvent
		if err := rows.Scan(&ev.StationID, &ev.StationName, &ev.StartedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
