// Package location tracks the device position and manages the platform
// permission state.
package location

import (
	"roamradio/pkg/model"
)

// Authorization is the platform permission state for position access.
type Authorization string

const (
	// AuthNotDetermined indicates the user has not been asked yet.
	AuthNotDetermined Authorization = "not_determined"
	// AuthAuthorized indicates position access is granted.
	AuthAuthorized Authorization = "authorized"
	// AuthDenied indicates the user declined position access.
	AuthDenied Authorization = "denied"
	// AuthRestricted indicates position access is blocked by policy.
	AuthRestricted Authorization = "restricted"
)

// Blocked reports whether the state forbids position updates.
func (a Authorization) Blocked() bool {
	return a == AuthDenied || a == AuthRestricted
}

// EventType discriminates provider events.
type EventType int

const (
	// EventPosition carries a new position fix.
	EventPosition EventType = iota
	// EventAuthorization carries a permission state change.
	EventAuthorization
	// EventError carries a provider failure. Non-fatal; the provider keeps
	// retrying on its own schedule.
	EventError
)

// Event is a single occurrence delivered by a Provider.
type Event struct {
	Type          EventType
	Position      model.PositionSample
	Authorization Authorization
	Err           error
}

// Provider abstracts the platform position source.
// Implementations deliver events on their own goroutine via Events().
type Provider interface {
	// Authorization returns the current permission state.
	Authorization() Authorization
	// RequestAuthorization prompts for permission. The outcome arrives as
	// an EventAuthorization.
	RequestAuthorization()
	// StartUpdates begins delivering position events.
	StartUpdates() error
	// StartSignificantUpdates begins the coarser fallback delivery mode for
	// continued operation in the background. Optional; providers without a
	// distinct mode may treat it as a no-op.
	StartSignificantUpdates() error
	// StopUpdates halts all delivery. Safe to call repeatedly.
	StopUpdates()
	// Events returns the provider's event stream.
	Events() <-chan Event
}
