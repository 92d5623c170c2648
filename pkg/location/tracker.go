package location

import (
	"context"
	"log/slog"
	"sync"

	"roamradio/pkg/config"
	"roamradio/pkg/geo"
	"roamradio/pkg/model"
)

const sampleBuffer = 16

// Tracker consumes a Provider's event stream, filters position updates, and
// emits accepted samples. All state mutation happens on the tracker's own
// event loop goroutine; accessors are safe from any goroutine.
type Tracker struct {
	provider    Provider
	minReportKm float64
	significant bool

	mu      sync.RWMutex
	auth    Authorization
	active  bool
	lastErr string
	last    *model.PositionSample

	samples chan model.PositionSample

	startOnce sync.Once
}

// New creates a Tracker. The provider's authorization state is queried once
// and cached; later changes arrive through the event stream.
func New(provider Provider, cfg config.LocationConfig) *Tracker {
	return &Tracker{
		provider:    provider,
		minReportKm: cfg.MinReportDistance.Km(),
		significant: cfg.SignificantChange,
		auth:        provider.Authorization(),
		samples:     make(chan model.PositionSample, sampleBuffer),
	}
}

// Start launches the event loop. Call once; subsequent calls are no-ops.
func (t *Tracker) Start(ctx context.Context) {
	t.startOnce.Do(func() {
		go t.loop(ctx)
	})
}

// Samples returns the stream of accepted position samples.
func (t *Tracker) Samples() <-chan model.PositionSample {
	return t.samples
}

// Authorization returns the cached permission state.
func (t *Tracker) Authorization() Authorization {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.auth
}

// LastError returns the most recent provider error as a displayable message,
// or empty if none occurred.
func (t *Tracker) LastError() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastErr
}

// Active reports whether position updates are currently running.
func (t *Tracker) Active() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active
}

// LastPosition returns the most recently accepted sample, or nil before the
// first fix.
func (t *Tracker) LastPosition() *model.PositionSample {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.last == nil {
		return nil
	}
	s := *t.last
	return &s
}

// RequestPermission asks for position access and starts updates when
// possible. Idempotent: calling while already authorized only re-affirms
// that updates are active.
func (t *Tracker) RequestPermission() {
	t.mu.Lock()
	auth := t.auth
	t.mu.Unlock()

	switch {
	case auth.Blocked():
		t.setError("location access is " + string(auth) + "; enable location permissions to find nearby stations")
	case auth == AuthAuthorized:
		t.startUpdates()
	default:
		slog.Info("Location: requesting authorization")
		t.provider.RequestAuthorization()
	}
}

// Stop halts all update sources. Safe to call multiple times; always leaves
// the tracker quiescent.
func (t *Tracker) Stop() {
	t.provider.StopUpdates()

	t.mu.Lock()
	wasActive := t.active
	t.active = false
	t.mu.Unlock()

	if wasActive {
		slog.Info("Location: updates stopped")
	}
}

func (t *Tracker) loop(ctx context.Context) {
	events := t.provider.Events()
	for {
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			t.handleEvent(ev)
		}
	}
}

func (t *Tracker) handleEvent(ev Event) {
	switch ev.Type {
	case EventAuthorization:
		t.handleAuthorization(ev.Authorization)
	case EventPosition:
		t.handlePosition(ev.Position)
	case EventError:
		// Provider errors are surfaced, not fatal; the platform keeps
		// retrying updates on its own.
		t.setError(ev.Err.Error())
		slog.Warn("Location: provider error", "error", ev.Err)
	}
}

func (t *Tracker) handleAuthorization(auth Authorization) {
	t.mu.Lock()
	prev := t.auth
	t.auth = auth
	wasActive := t.active
	t.mu.Unlock()

	slog.Info("Location: authorization changed", "from", prev, "to", auth)

	switch {
	case auth == AuthAuthorized:
		t.startUpdates()
	case auth.Blocked():
		t.setError("location access is " + string(auth) + "; enable location permissions to find nearby stations")
		if wasActive {
			// Losing authorization while running forces an implicit stop,
			// but the tracker itself stays usable for a later grant.
			t.provider.StopUpdates()
			t.mu.Lock()
			t.active = false
			t.mu.Unlock()
		}
	}
}

func (t *Tracker) handlePosition(sample model.PositionSample) {
	t.mu.Lock()
	if t.last != nil {
		moved := geo.DistanceKm(t.last.Point(), sample.Point())
		if moved < t.minReportKm {
			t.mu.Unlock()
			return
		}
	}
	s := sample
	t.last = &s
	t.mu.Unlock()

	select {
	case t.samples <- sample:
	default:
		// A slow consumer must not stall the provider loop; the dropped
		// sample is superseded by the next one anyway.
		slog.Debug("Location: sample dropped, consumer busy")
	}
}

func (t *Tracker) startUpdates() {
	if err := t.provider.StartUpdates(); err != nil {
		t.setError(err.Error())
		return
	}
	if t.significant {
		if err := t.provider.StartSignificantUpdates(); err != nil {
			slog.Warn("Location: significant-change fallback unavailable", "error", err)
		}
	}

	t.mu.Lock()
	wasActive := t.active
	t.active = true
	t.lastErr = ""
	t.mu.Unlock()

	if !wasActive {
		slog.Info("Location: updates started", "min_report_km", t.minReportKm)
	}
}

func (t *Tracker) setError(msg string) {
	t.mu.Lock()
	t.lastErr = msg
	t.mu.Unlock()
}
