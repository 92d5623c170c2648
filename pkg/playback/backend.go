package playback

import "context"

// EventType identifies a stream-health event from the backend.
type EventType int

const (
	// EventReady signals the stream is delivering audio.
	EventReady EventType = iota
	// EventStalled signals a transient delivery interruption (buffering).
	EventStalled
	// EventFailed signals the stream cannot continue playing.
	EventFailed
)

// String returns the event type label.
func (t EventType) String() string {
	switch t {
	case EventReady:
		return "ready"
	case EventStalled:
		return "stalled"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is a health notification from an open stream.
type Event struct {
	Type EventType
	Err  error
}

// Handle is an open stream session. All methods are safe to call after the
// stream has failed; Stop is idempotent.
type Handle interface {
	Play()
	Pause()
	Stop()
	// Events delivers health notifications for this handle. The channel is
	// closed when the handle is stopped.
	Events() <-chan Event
}

// Backend opens stream endpoints and produces playable handles.
type Backend interface {
	// Open connects to the stream URL and prepares it for playback.
	// Blocks until the stream is ready or the context is done.
	Open(ctx context.Context, url string) (Handle, error)
	// SetVolume adjusts output volume (0.0 to 1.0) for current and
	// future handles.
	SetVolume(vol float64)
	// Volume returns the current volume level.
	Volume() float64
}

// AudioSession represents the platform audio session that must be held while
// audio is audible. Acquire and Release are paired on every engine exit path.
type AudioSession interface {
	Acquire() error
	Release()
}

// NoopSession is an AudioSession for platforms without session management.
type NoopSession struct{}

func (NoopSession) Acquire() error { return nil }
func (NoopSession) Release()       {}
