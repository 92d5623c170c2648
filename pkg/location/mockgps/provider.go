// Package mockgps provides a simulated position provider that moves along a
// fixed bearing at a configured speed. Useful for development without a GPS
// receiver.
package mockgps

import (
	"sync"
	"time"

	"roamradio/pkg/config"
	"roamradio/pkg/geo"
	"roamradio/pkg/location"
	"roamradio/pkg/model"
)

// Provider implements location.Provider with simulated movement.
type Provider struct {
	interval time.Duration
	speedKmh float64
	heading  float64

	mu      sync.Mutex
	auth    location.Authorization
	pos     geo.Point
	running bool
	stop    chan struct{}

	events chan location.Event
}

// New creates a mock provider starting at the configured coordinate.
func New(cfg config.MockGPSConfig) *Provider {
	interval := time.Duration(cfg.Interval)
	if interval <= 0 {
		interval = time.Second
	}
	return &Provider{
		interval: interval,
		speedKmh: cfg.SpeedKmh,
		heading:  cfg.Heading,
		auth:     location.AuthNotDetermined,
		pos:      geo.Point{Lat: cfg.StartLat, Lon: cfg.StartLon},
		events:   make(chan location.Event, 16),
	}
}

// Authorization returns the current simulated permission state.
func (p *Provider) Authorization() location.Authorization {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.auth
}

// RequestAuthorization grants access immediately; the mock has no user to ask.
func (p *Provider) RequestAuthorization() {
	p.mu.Lock()
	p.auth = location.AuthAuthorized
	p.mu.Unlock()
	p.events <- location.Event{Type: location.EventAuthorization, Authorization: location.AuthAuthorized}
}

// StartUpdates begins the movement loop.
func (p *Provider) StartUpdates() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	p.running = true
	p.stop = make(chan struct{})
	go p.run(p.stop)
	return nil
}

// StartSignificantUpdates is a no-op; the mock has a single delivery mode.
func (p *Provider) StartSignificantUpdates() error {
	return nil
}

// StopUpdates halts the movement loop. Safe to call repeatedly.
func (p *Provider) StopUpdates() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	close(p.stop)
}

// Events returns the provider's event stream.
func (p *Provider) Events() <-chan location.Event {
	return p.events
}

func (p *Provider) run(stop chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Emit the starting position immediately so consumers get a first fix
	// without waiting a full interval.
	p.emit()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.advance()
			p.emit()
		}
	}
}

func (p *Provider) advance() {
	p.mu.Lock()
	defer p.mu.Unlock()
	stepKm := p.speedKmh * p.interval.Hours()
	p.pos = geo.DestinationPoint(p.pos, stepKm, p.heading)
}

func (p *Provider) emit() {
	p.mu.Lock()
	pos := p.pos
	p.mu.Unlock()

	sample := model.PositionSample{
		Lat:       pos.Lat,
		Lon:       pos.Lon,
		AccuracyM: 5,
		Timestamp: time.Now(),
	}
	select {
	case p.events <- location.Event{Type: location.EventPosition, Position: sample}:
	default:
		// Consumer is behind; the next tick supersedes this sample.
	}
}
