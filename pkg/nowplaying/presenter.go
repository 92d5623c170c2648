// Package nowplaying projects playback state onto an external now-playing
// surface and routes remote transport commands back into the engine.
package nowplaying

import (
	"fmt"
	"log/slog"
	"sync"

	"roamradio/pkg/model"
	"roamradio/pkg/playback"
)

// Surface is the external metadata display (an OS media widget, a websocket
// hub pushing to connected clients).
type Surface interface {
	SetNowPlaying(np model.NowPlaying)
	ClearNowPlaying()
}

// Controls is the subset of the playback engine driven by remote transport
// commands.
type Controls interface {
	Play()
	Pause()
	Stop()
}

// Presenter wires engine status changes to a Surface. Register it with
// engine.Subscribe(p.HandleStatus).
type Presenter struct {
	surface  Surface
	controls Controls

	mu        sync.Mutex
	current   *model.NowPlaying
	published bool
}

// New creates a Presenter.
func New(surface Surface, controls Controls) *Presenter {
	return &Presenter{surface: surface, controls: controls}
}

// HandleStatus reacts to an engine status change. Playing publishes the
// station metadata as a live broadcast; Stopped and Error clear it. Paused
// keeps the metadata up so the surface can offer resume.
func (p *Presenter) HandleStatus(st playback.Status) {
	switch st.State {
	case playback.StatePlaying:
		if st.Station == nil {
			return
		}
		title := st.Station.Name
		if st.Station.Frequency != "" {
			title += " " + st.Station.Frequency
		}
		subtitle := st.Station.Region
		if st.Buffering {
			subtitle = "Buffering…"
		}
		p.publish(model.NowPlaying{
			Title:    title,
			Subtitle: subtitle,
			IsLive:   true,
		})
	case playback.StateStopped, playback.StateError:
		p.clear()
	}
}

// HandleCommand dispatches a remote transport command to the engine.
func (p *Presenter) HandleCommand(cmd string) error {
	switch cmd {
	case "play":
		p.controls.Play()
	case "pause":
		p.controls.Pause()
	case "stop":
		p.controls.Stop()
	default:
		return fmt.Errorf("unknown transport command %q", cmd)
	}
	slog.Debug("NowPlaying: transport command", "cmd", cmd)
	return nil
}

// Current returns the last published metadata, nil when cleared.
func (p *Presenter) Current() *model.NowPlaying {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	np := *p.current
	return &np
}

func (p *Presenter) publish(np model.NowPlaying) {
	p.mu.Lock()
	if p.published && p.current != nil && *p.current == np {
		p.mu.Unlock()
		return
	}
	p.current = &np
	p.published = true
	p.mu.Unlock()

	p.surface.SetNowPlaying(np)
}

func (p *Presenter) clear() {
	p.mu.Lock()
	if !p.published {
		p.mu.Unlock()
		return
	}
	p.current = nil
	p.published = false
	p.mu.Unlock()

	p.surface.ClearNowPlaying()
}
