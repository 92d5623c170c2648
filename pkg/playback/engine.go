// Package playback owns the streaming session for the active station. A
// single event loop serializes commands, stream-open results, and backend
// health events, so state transitions are atomic without locking the world.
package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"roamradio/pkg/config"
	"roamradio/pkg/model"
)

// State is the engine's primary lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StatePlaying    State = "playing"
	StatePaused     State = "paused"
	StateError      State = "error"
	StateStopped    State = "stopped"
)

// Status is a snapshot of the engine's observable state. Buffering is an
// advisory sub-status: a stalled stream stays in StatePlaying.
type Status struct {
	State     State
	Station   *model.Station
	Buffering bool
	Error     string
}

type cmdKind int

const (
	cmdPlayStation cmdKind = iota
	cmdPlay
	cmdPause
	cmdStop
)

type command struct {
	kind    cmdKind
	station *model.Station
}

// openResult carries the outcome of an asynchronous stream open back into
// the event loop.
type openResult struct {
	gen    uint64
	handle Handle
	err    error
}

// healthEvent tags a backend event with the generation of the session it
// belongs to, so events from superseded sessions can be discarded.
type healthEvent struct {
	gen   uint64
	event Event
}

// Engine drives the playback state machine. All mutation happens on the
// event loop goroutine started by Start.
type Engine struct {
	backend     Backend
	session     AudioSession
	openTimeout time.Duration

	cmds   chan command
	opens  chan openResult
	health chan healthEvent

	mu     sync.Mutex
	status Status
	subs   []func(Status)

	// Loop-owned state, never touched outside run().
	gen         uint64
	handle      Handle
	station     *model.Station
	sessionHeld bool
	openCancel  context.CancelFunc

	ctx       context.Context
	startOnce sync.Once
}

// New creates an Engine. Call Start before issuing commands.
func New(backend Backend, session AudioSession, cfg config.PlaybackConfig) *Engine {
	if session == nil {
		session = NoopSession{}
	}
	return &Engine{
		backend:     backend,
		session:     session,
		openTimeout: time.Duration(cfg.OpenTimeout),
		cmds:        make(chan command, 32),
		opens:       make(chan openResult, 4),
		health:      make(chan healthEvent, 16),
		status:      Status{State: StateIdle},
	}
}

// Start launches the event loop. Subsequent calls are no-ops.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		e.ctx = ctx
		go e.run(ctx)
	})
}

// PlayStation tears down any current session and starts streaming the
// given station. The call returns immediately; the outcome is reported
// through the status observable.
func (e *Engine) PlayStation(st model.Station) {
	e.cmds <- command{kind: cmdPlayStation, station: &st}
}

// Play resumes a paused session, or restarts the last-known station when no
// session exists. No-op when there is no station to play.
func (e *Engine) Play() {
	e.cmds <- command{kind: cmdPlay}
}

// Pause pauses the active session. No-op unless currently playing.
func (e *Engine) Pause() {
	e.cmds <- command{kind: cmdPause}
}

// Stop tears down the session and enters StateStopped. Safe from any state
// and idempotent; also cancels an in-flight connection attempt.
func (e *Engine) Stop() {
	e.cmds <- command{kind: cmdStop}
}

// Subscribe registers a callback invoked from the event loop after every
// status change. Callbacks must not block.
func (e *Engine) Subscribe(fn func(Status)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = append(e.subs, fn)
}

// Status returns the current status snapshot.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// LastError returns the most recent playback error message, empty if none.
func (e *Engine) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status.Error
}

// SetVolume adjusts backend output volume (0.0 to 1.0).
func (e *Engine) SetVolume(vol float64) {
	e.backend.SetVolume(vol)
}

// Volume returns the backend's current volume level.
func (e *Engine) Volume() float64 {
	return e.backend.Volume()
}

func (e *Engine) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			e.teardownSession()
			return
		case cmd := <-e.cmds:
			e.handleCommand(cmd)
		case res := <-e.opens:
			e.handleOpenResult(res)
		case ev := <-e.health:
			e.handleHealth(ev)
		}
	}
}

func (e *Engine) handleCommand(cmd command) {
	switch cmd.kind {
	case cmdPlayStation:
		e.startSession(*cmd.station)
	case cmdPlay:
		if e.Status().State == StateError {
			// A failed session must be acknowledged with stop before
			// resuming; PlayStation is the other way out.
			slog.Debug("Playback: play ignored in error state")
			return
		}
		if e.handle != nil {
			e.handle.Play()
			e.setState(StatePlaying, "")
			return
		}
		if e.station != nil {
			e.startSession(*e.station)
			return
		}
		slog.Debug("Playback: play with no station, ignoring")
	case cmdPause:
		if e.handle != nil && e.Status().State == StatePlaying {
			e.handle.Pause()
			e.setState(StatePaused, "")
		}
	case cmdStop:
		e.teardownSession()
		e.setStatus(Status{State: StateStopped, Station: e.station})
	}
}

// startSession begins a new generation: any previous session is torn down,
// the audio session is acquired, and the stream open runs off-loop so the
// event loop stays responsive (a stop can still preempt the attempt).
func (e *Engine) startSession(st model.Station) {
	e.teardownSession()

	e.station = &st
	if err := e.session.Acquire(); err != nil {
		e.setStatus(Status{
			State:   StateError,
			Station: e.station,
			Error:   fmt.Sprintf("audio session unavailable: %v", err),
		})
		return
	}
	e.sessionHeld = true
	e.setStatus(Status{State: StateConnecting, Station: e.station})
	slog.Info("Playback: connecting", "station", st.ID, "url", st.StreamURL)

	gen := e.gen
	url := st.StreamURL

	// The open context is cancelled by teardown, so superseding or
	// stopping aborts the dial instead of letting it run out its timeout.
	var octx context.Context
	if e.openTimeout > 0 {
		octx, e.openCancel = context.WithTimeout(e.ctx, e.openTimeout)
	} else {
		octx, e.openCancel = context.WithCancel(e.ctx)
	}
	go func() {
		handle, err := e.backend.Open(octx, url)
		select {
		case e.opens <- openResult{gen: gen, handle: handle, err: err}:
		case <-e.ctx.Done():
			if handle != nil {
				handle.Stop()
			}
		}
	}()
}

func (e *Engine) handleOpenResult(res openResult) {
	if res.gen != e.gen {
		// Superseded by a newer playStation or a stop.
		if res.handle != nil {
			res.handle.Stop()
		}
		return
	}

	if e.openCancel != nil {
		e.openCancel()
		e.openCancel = nil
	}

	if res.err != nil {
		e.teardownSession()
		e.setStatus(Status{
			State:   StateError,
			Station: e.station,
			Error:   fmt.Sprintf("stream failed to open: %v", res.err),
		})
		slog.Warn("Playback: stream open failed", "error", res.err)
		return
	}

	e.handle = res.handle
	go e.pumpEvents(res.gen, res.handle)
	e.handle.Play()
	e.setStatus(Status{State: StatePlaying, Station: e.station})
	slog.Info("Playback: playing", "station", e.station.ID)
}

// pumpEvents forwards a handle's health events into the loop, tagged with
// the session generation.
func (e *Engine) pumpEvents(gen uint64, h Handle) {
	for ev := range h.Events() {
		select {
		case e.health <- healthEvent{gen: gen, event: ev}:
		case <-e.ctx.Done():
			return
		}
	}
}

func (e *Engine) handleHealth(ev healthEvent) {
	if ev.gen != e.gen {
		return
	}

	switch ev.event.Type {
	case EventReady:
		st := e.Status()
		st.Buffering = false
		st.Error = ""
		if st.State == StateConnecting {
			st.State = StatePlaying
		}
		e.setStatus(st)
	case EventStalled:
		st := e.Status()
		if st.State == StatePlaying && !st.Buffering {
			slog.Info("Playback: stream stalled, buffering", "station", e.station.ID)
			st.Buffering = true
			e.setStatus(st)
		}
	case EventFailed:
		e.teardownSession()
		msg := "stream failed"
		if ev.event.Err != nil {
			msg = fmt.Sprintf("stream failed: %v", ev.event.Err)
		}
		e.setStatus(Status{State: StateError, Station: e.station, Error: msg})
		slog.Warn("Playback: stream failed", "station", e.station.ID, "error", ev.event.Err)
	}
}

// teardownSession invalidates the current generation and releases the
// stream handle and audio session if held. Safe to call repeatedly.
func (e *Engine) teardownSession() {
	e.gen++
	if e.openCancel != nil {
		e.openCancel()
		e.openCancel = nil
	}
	if e.handle != nil {
		e.handle.Stop()
		e.handle = nil
	}
	if e.sessionHeld {
		e.session.Release()
		e.sessionHeld = false
	}
}

func (e *Engine) setState(state State, errMsg string) {
	st := e.Status()
	st.State = state
	st.Error = errMsg
	st.Buffering = false
	e.setStatus(st)
}

func (e *Engine) setStatus(st Status) {
	e.mu.Lock()
	e.status = st
	subs := make([]func(Status), len(e.subs))
	copy(subs, e.subs)
	e.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}
