package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"roamradio/pkg/config"
	"roamradio/pkg/model"
)

type fakeHandle struct {
	mu        sync.Mutex
	plays     int
	pauses    int
	stopCalls int
	closed    bool
	events    chan Event
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{events: make(chan Event, 8)}
}

func (h *fakeHandle) Play() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.plays++
}

func (h *fakeHandle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pauses++
}

func (h *fakeHandle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopCalls++
	if !h.closed {
		h.closed = true
		close(h.events)
	}
}

func (h *fakeHandle) Events() <-chan Event { return h.events }

func (h *fakeHandle) emit(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.events <- ev
	}
}

func (h *fakeHandle) counts() (plays, pauses, stops int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.plays, h.pauses, h.stopCalls
}

type fakeBackend struct {
	mu        sync.Mutex
	openErr   error
	openDelay time.Duration
	openCalls int
	openCtxs  []context.Context
	handles   []*fakeHandle
	volume    float64
}

func (b *fakeBackend) Open(ctx context.Context, url string) (Handle, error) {
	b.mu.Lock()
	b.openCalls++
	b.openCtxs = append(b.openCtxs, ctx)
	delay := b.openDelay
	openErr := b.openErr
	b.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if openErr != nil {
		return nil, openErr
	}

	h := newFakeHandle()
	b.mu.Lock()
	b.handles = append(b.handles, h)
	b.mu.Unlock()
	return h, nil
}

func (b *fakeBackend) SetVolume(vol float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.volume = vol
}

func (b *fakeBackend) Volume() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.volume
}

func (b *fakeBackend) activeHandles() []*fakeHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	var active []*fakeHandle
	for _, h := range b.handles {
		h.mu.Lock()
		if !h.closed {
			active = append(active, h)
		}
		h.mu.Unlock()
	}
	return active
}

func (b *fakeBackend) openCtx(i int) context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i >= len(b.openCtxs) {
		return nil
	}
	return b.openCtxs[i]
}

func (b *fakeBackend) lastHandle() *fakeHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.handles) == 0 {
		return nil
	}
	return b.handles[len(b.handles)-1]
}

type countingSession struct {
	mu       sync.Mutex
	acquires int
	releases int
}

func (s *countingSession) Acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquires++
	return nil
}

func (s *countingSession) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases++
}

func (s *countingSession) counts() (acquires, releases int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquires, s.releases
}

func testPlaybackConfig() config.PlaybackConfig {
	return config.PlaybackConfig{
		Volume:      1.0,
		OpenTimeout: config.Duration(2 * time.Second),
	}
}

func newTestEngine(t *testing.T, backend Backend, session AudioSession) *Engine {
	t.Helper()
	e := New(backend, session, testPlaybackConfig())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	e.Start(ctx)
	return e
}

func sfStation() model.Station {
	return model.Station{
		ID: "kqed", Name: "KQED", StreamURL: "https://streams.kqed.org/kqedradio",
		Lat: 37.7749, Lon: -122.4194, Region: "San Francisco",
	}
}

func nycStation() model.Station {
	return model.Station{
		ID: "wnyc", Name: "WNYC", StreamURL: "https://fm939.wnyc.org/wnycfm",
		Lat: 40.7128, Lon: -74.0060, Region: "New York",
	}
}

func waitForState(t *testing.T, e *Engine, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return e.Status().State == want
	}, 2*time.Second, 5*time.Millisecond, "want state %s, have %s", want, e.Status().State)
}

func TestPlayStation(t *testing.T) {
	backend := &fakeBackend{}
	session := &countingSession{}
	e := newTestEngine(t, backend, session)

	e.PlayStation(sfStation())
	waitForState(t, e, StatePlaying)

	st := e.Status()
	require.Equal(t, "kqed", st.Station.ID)
	require.Empty(t, st.Error)

	plays, _, _ := backend.lastHandle().counts()
	require.Equal(t, 1, plays)

	acquires, releases := session.counts()
	require.Equal(t, 1, acquires)
	require.Zero(t, releases)
}

func TestStop_FromIdle(t *testing.T) {
	e := newTestEngine(t, &fakeBackend{}, &countingSession{})
	require.Equal(t, StateIdle, e.Status().State)

	e.Stop()
	waitForState(t, e, StateStopped)
}

func TestStop_PreemptsConnecting(t *testing.T) {
	backend := &fakeBackend{openDelay: 200 * time.Millisecond}
	session := &countingSession{}
	e := newTestEngine(t, backend, session)

	e.PlayStation(sfStation())
	waitForState(t, e, StateConnecting)

	e.Stop()
	waitForState(t, e, StateStopped)

	// Stopping aborts the dial; the open context is cancelled well
	// before the fake's delay or the open timeout elapse.
	require.Eventually(t, func() bool {
		ctx := backend.openCtx(0)
		return ctx != nil && ctx.Err() != nil
	}, 100*time.Millisecond, 5*time.Millisecond)

	// The delayed open completes after the stop; its handle must be
	// discarded, not promoted to a session.
	require.Never(t, func() bool {
		return e.Status().State == StatePlaying
	}, 400*time.Millisecond, 20*time.Millisecond)
	require.Empty(t, backend.activeHandles())

	acquires, releases := session.counts()
	require.Equal(t, acquires, releases, "audio session must be released")
}

func TestStop_FromPlayingAndIdempotent(t *testing.T) {
	backend := &fakeBackend{}
	session := &countingSession{}
	e := newTestEngine(t, backend, session)

	e.PlayStation(sfStation())
	waitForState(t, e, StatePlaying)

	e.Stop()
	waitForState(t, e, StateStopped)
	e.Stop()
	waitForState(t, e, StateStopped)

	_, _, stops := backend.lastHandle().counts()
	require.Equal(t, 1, stops, "no duplicate teardown")

	acquires, releases := session.counts()
	require.Equal(t, 1, acquires)
	require.Equal(t, 1, releases)
}

func TestPlayStation_SupersedesCurrentSession(t *testing.T) {
	backend := &fakeBackend{}
	session := &countingSession{}
	e := newTestEngine(t, backend, session)

	e.PlayStation(nycStation())
	waitForState(t, e, StatePlaying)
	first := backend.lastHandle()

	e.PlayStation(sfStation())
	require.Eventually(t, func() bool {
		st := e.Status()
		return st.State == StatePlaying && st.Station.ID == "kqed"
	}, 2*time.Second, 5*time.Millisecond)

	require.Len(t, backend.activeHandles(), 1, "exactly one live session")
	_, _, stops := first.counts()
	require.Equal(t, 1, stops, "superseded session torn down")

	acquires, releases := session.counts()
	require.Equal(t, 2, acquires)
	require.Equal(t, 1, releases)
}

func TestPlayStation_SupersedeCancelsPendingOpen(t *testing.T) {
	backend := &fakeBackend{openDelay: 10 * time.Second}
	session := &countingSession{}
	e := newTestEngine(t, backend, session)

	e.PlayStation(sfStation())
	waitForState(t, e, StateConnecting)

	backend.mu.Lock()
	backend.openDelay = 0
	backend.mu.Unlock()

	e.PlayStation(nycStation())
	require.Eventually(t, func() bool {
		st := e.Status()
		return st.State == StatePlaying && st.Station.ID == "wnyc"
	}, 2*time.Second, 5*time.Millisecond)

	// The superseded dial is aborted immediately rather than left to
	// run out its open timeout.
	require.Eventually(t, func() bool {
		ctx := backend.openCtx(0)
		return ctx != nil && ctx.Err() != nil
	}, 100*time.Millisecond, 5*time.Millisecond)

	require.Len(t, backend.activeHandles(), 1, "only the new session is live")
	acquires, releases := session.counts()
	require.Equal(t, 2, acquires)
	require.Equal(t, 1, releases)
}

func TestOpenFailure_RequiresStopBeforePlay(t *testing.T) {
	backend := &fakeBackend{openErr: errors.New("connection refused")}
	session := &countingSession{}
	e := newTestEngine(t, backend, session)

	e.PlayStation(sfStation())
	waitForState(t, e, StateError)
	require.Contains(t, e.LastError(), "failed to open")

	acquires, releases := session.counts()
	require.Equal(t, acquires, releases, "error path releases the session")

	// Play in error state is ignored until the error is acknowledged.
	e.Play()
	require.Never(t, func() bool {
		return e.Status().State != StateError
	}, 200*time.Millisecond, 20*time.Millisecond)

	backend.mu.Lock()
	backend.openErr = nil
	backend.mu.Unlock()

	e.Stop()
	waitForState(t, e, StateStopped)
	require.Empty(t, e.LastError())

	// Play with no session resumes the last-known station.
	e.Play()
	waitForState(t, e, StatePlaying)
	require.Equal(t, "kqed", e.Status().Station.ID)
}

func TestPauseAndResume(t *testing.T) {
	backend := &fakeBackend{}
	e := newTestEngine(t, backend, &countingSession{})

	e.PlayStation(sfStation())
	waitForState(t, e, StatePlaying)

	e.Pause()
	waitForState(t, e, StatePaused)
	_, pauses, _ := backend.lastHandle().counts()
	require.Equal(t, 1, pauses)

	e.Play()
	waitForState(t, e, StatePlaying)
	plays, _, _ := backend.lastHandle().counts()
	require.Equal(t, 2, plays, "resume reuses the session")

	backend.mu.Lock()
	opened := len(backend.handles)
	backend.mu.Unlock()
	require.Equal(t, 1, opened)
}

func TestStalledIsSubStatusNotState(t *testing.T) {
	backend := &fakeBackend{}
	e := newTestEngine(t, backend, &countingSession{})

	e.PlayStation(sfStation())
	waitForState(t, e, StatePlaying)

	backend.lastHandle().emit(Event{Type: EventStalled})
	require.Eventually(t, func() bool {
		return e.Status().Buffering
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, StatePlaying, e.Status().State)

	backend.lastHandle().emit(Event{Type: EventReady})
	require.Eventually(t, func() bool {
		return !e.Status().Buffering
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, StatePlaying, e.Status().State)
}

func TestFailedEventTearsDownSession(t *testing.T) {
	backend := &fakeBackend{}
	session := &countingSession{}
	e := newTestEngine(t, backend, session)

	e.PlayStation(sfStation())
	waitForState(t, e, StatePlaying)

	backend.lastHandle().emit(Event{Type: EventFailed, Err: errors.New("socket reset")})
	waitForState(t, e, StateError)
	require.Contains(t, e.LastError(), "socket reset")

	require.Empty(t, backend.activeHandles())
	acquires, releases := session.counts()
	require.Equal(t, acquires, releases)
}

func TestSubscribersSeeStateChanges(t *testing.T) {
	backend := &fakeBackend{}
	e := newTestEngine(t, backend, &countingSession{})

	var mu sync.Mutex
	var seen []State
	e.Subscribe(func(st Status) {
		mu.Lock()
		seen = append(seen, st.State)
		mu.Unlock()
	})

	e.PlayStation(sfStation())
	waitForState(t, e, StatePlaying)
	e.Stop()
	waitForState(t, e, StateStopped)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, StateConnecting, seen[0])
	require.Contains(t, seen, StatePlaying)
	require.Equal(t, StateStopped, seen[len(seen)-1])
}

func TestVolumePassthrough(t *testing.T) {
	backend := &fakeBackend{volume: 1.0}
	e := newTestEngine(t, backend, &countingSession{})

	e.SetVolume(0.4)
	require.InDelta(t, 0.4, e.Volume(), 1e-9)
}
