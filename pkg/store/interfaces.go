// Package store persists user-facing playback state between runs.
package store

import (
	"context"
	"time"
)

// PlayEvent is one row of the station play history.
type PlayEvent struct {
	StationID   string
	StationName string
	StartedAt   time.Time
}

// StateStore handles persistent application state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}

// HistoryStore records which stations were played and when.
type HistoryStore interface {
	RecordPlay(ctx context.Context, stationID, stationName string) error
	RecentPlays(ctx context.Context, limit int) ([]PlayEvent, error)
}

// Store composes all sub-interfaces for full store access.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	StateStore
	HistoryStore

	// Close closes the store connection.
	Close() error
}
