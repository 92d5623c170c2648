// Package beepstream implements the playback backend on gopxl/beep,
// streaming MP3 audio over HTTP to the system speaker.
package beepstream

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"

	"roamradio/pkg/config"
	"roamradio/pkg/playback"
)

const targetSampleRate = 48000

// Backend opens HTTP audio streams and plays them through beep's speaker.
// The speaker is a process-wide resource; the engine guarantees at most one
// active handle.
type Backend struct {
	client       *http.Client
	stallTimeout time.Duration

	mu                 sync.Mutex
	volume             float64
	speakerInitialized bool
	sampleRate         beep.SampleRate
	// current is the promoted handle; live volume changes apply to it.
	// Opening never promotes, only the first Play does, so a superseded
	// open that finishes late cannot displace the active session.
	current *Handle
}

// New creates a Backend. The speaker is initialized lazily on first Open.
func New(cfg config.PlaybackConfig) *Backend {
	return &Backend{
		// No client timeout: a live stream body never ends.
		client:       &http.Client{},
		stallTimeout: time.Duration(cfg.StallTimeout),
		volume:       cfg.Volume,
	}
}

// Open connects to the stream URL and prepares a paused handle. The context
// bounds the connection attempt only; the stream body outlives it.
func (b *Backend) Open(ctx context.Context, url string) (playback.Handle, error) {
	streamCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("invalid stream endpoint %q: %w", url, err)
	}
	req.Header.Set("Icy-MetaData", "0")

	type dialResult struct {
		resp *http.Response
		err  error
	}
	dialCh := make(chan dialResult, 1)
	go func() {
		resp, err := b.client.Do(req)
		dialCh <- dialResult{resp, err}
	}()

	var resp *http.Response
	select {
	case res := <-dialCh:
		if res.err != nil {
			cancel()
			return nil, fmt.Errorf("stream connect failed: %w", res.err)
		}
		resp = res.resp
	case <-ctx.Done():
		cancel()
		return nil, fmt.Errorf("stream connect timed out: %w", ctx.Err())
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("stream returned status %s", resp.Status)
	}

	body := newStallReader(resp.Body)
	streamer, format, err := mp3.Decode(body)
	if err != nil {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("stream decode failed: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureSpeakerLocked(); err != nil {
		streamer.Close()
		cancel()
		return nil, err
	}

	resampled := beep.Resample(3, format.SampleRate, b.sampleRate, streamer)
	vol := &effects.Volume{
		Streamer: resampled,
		Base:     2,
		Volume:   volumeToPower(b.volume),
		Silent:   b.volume <= 0.01,
	}
	ctrl := &beep.Ctrl{Streamer: vol, Paused: true}

	h := &Handle{
		backend: b,
		cancel:  cancel,
		ctrl:    ctrl,
		vol:     vol,
		body:    body,
		events:  make(chan playback.Event, 4),
	}

	speaker.Play(beep.Seq(ctrl, beep.Callback(func() {
		// A live broadcast never drains; reaching the end means the
		// stream died.
		h.emit(playback.Event{Type: playback.EventFailed,
			Err: fmt.Errorf("stream ended unexpectedly")})
	})))

	go h.watchStalls(streamCtx, b.stallTimeout)

	slog.Debug("Beepstream: stream opened", "url", url, "sampleRate", int(format.SampleRate))
	return h, nil
}

// SetVolume adjusts output volume (0.0 to 1.0), live and for future handles.
func (b *Backend) SetVolume(vol float64) {
	if vol < 0 {
		vol = 0
	} else if vol > 1 {
		vol = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.volume = vol

	if b.current != nil {
		speaker.Lock()
		b.current.vol.Volume = volumeToPower(vol)
		b.current.vol.Silent = vol <= 0.01
		speaker.Unlock()
	}
}

// Volume returns the current volume level.
func (b *Backend) Volume() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.volume
}

func (b *Backend) ensureSpeakerLocked() error {
	if b.speakerInitialized {
		return nil
	}
	sr := beep.SampleRate(targetSampleRate)
	if err := speaker.Init(sr, sr.N(time.Second/10)); err != nil {
		return fmt.Errorf("speaker init failed: %w", err)
	}
	b.speakerInitialized = true
	b.sampleRate = sr
	return nil
}

// promote makes h the handle that live volume changes apply to, and
// applies any volume change made while the stream was still connecting.
func (b *Backend) promote(h *Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = h
	speaker.Lock()
	h.vol.Volume = volumeToPower(b.volume)
	h.vol.Silent = b.volume <= 0.01
	speaker.Unlock()
}

func (b *Backend) releaseCurrent(h *Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == h {
		b.current = nil
	}
}

// Handle is one open stream session.
type Handle struct {
	backend *Backend
	cancel  context.CancelFunc
	ctrl    *beep.Ctrl
	vol     *effects.Volume
	body    *stallReader

	mu      sync.Mutex
	closed  bool
	playing bool

	events chan playback.Event
}

// Play unpauses the stream and promotes this handle to current.
func (h *Handle) Play() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	first := !h.playing
	h.playing = true
	h.mu.Unlock()

	h.backend.promote(h)
	speaker.Lock()
	h.ctrl.Paused = false
	speaker.Unlock()

	if first {
		h.emit(playback.Event{Type: playback.EventReady})
	}
}

// Pause pauses the stream without closing the connection.
func (h *Handle) Pause() {
	speaker.Lock()
	h.ctrl.Paused = true
	speaker.Unlock()

	h.mu.Lock()
	h.playing = false
	h.mu.Unlock()
}

// Stop closes the connection and silences this stream. Idempotent.
func (h *Handle) Stop() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.events)
	h.mu.Unlock()

	// Detach only this handle's streamer; a global speaker clear would
	// also silence a newer session that superseded this one.
	speaker.Lock()
	h.ctrl.Paused = true
	h.ctrl.Streamer = nil
	speaker.Unlock()

	h.cancel()
	h.backend.releaseCurrent(h)
}

// Events delivers health notifications for this handle.
func (h *Handle) Events() <-chan playback.Event {
	return h.events
}

func (h *Handle) emit(ev playback.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	select {
	case h.events <- ev:
	default:
	}
}

// watchStalls reports buffering: when no bytes arrive from the network for
// longer than the stall timeout while playing, emit Stalled; when data
// resumes, emit Ready.
func (h *Handle) watchStalls(ctx context.Context, timeout time.Duration) {
	if timeout <= 0 {
		return
	}

	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()

	stalled := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		h.mu.Lock()
		playing := h.playing
		h.mu.Unlock()
		if !playing {
			continue
		}

		idle := time.Since(h.body.lastRead())
		if !stalled && idle > timeout {
			stalled = true
			h.emit(playback.Event{Type: playback.EventStalled})
		} else if stalled && idle <= timeout {
			stalled = false
			h.emit(playback.Event{Type: playback.EventReady})
		}
	}
}
