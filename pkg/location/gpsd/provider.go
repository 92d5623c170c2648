// Package gpsd provides a position provider backed by the gpsd daemon's
// JSON protocol (WATCH/TPV reports over TCP).
package gpsd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"roamradio/pkg/config"
	"roamradio/pkg/location"
	"roamradio/pkg/model"
)

const (
	dialTimeout   = 5 * time.Second
	retryInterval = 5 * time.Second
	watchCommand  = `?WATCH={"enable":true,"json":true};` + "\n"
)

// Provider implements location.Provider against a gpsd instance.
type Provider struct {
	addr string

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	conn    net.Conn

	events chan location.Event
}

// New creates a gpsd provider. No connection is made until StartUpdates.
func New(cfg config.GpsdConfig) *Provider {
	return &Provider{
		addr:   cfg.Address,
		events: make(chan location.Event, 16),
	}
}

// Authorization always reports authorized; gpsd is a host daemon with no
// per-application permission model.
func (p *Provider) Authorization() location.Authorization {
	return location.AuthAuthorized
}

// RequestAuthorization re-affirms the granted state.
func (p *Provider) RequestAuthorization() {
	p.events <- location.Event{Type: location.EventAuthorization, Authorization: location.AuthAuthorized}
}

// StartUpdates begins the read loop. The loop reconnects on failure until
// StopUpdates is called.
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

// StartSignificantUpdates is a no-op; gpsd has a single delivery mode.
func (p *Provider) StartSignificantUpdates() error {
	return nil
}

// StopUpdates halts the read loop and closes any open connection.
func (p *Provider) StopUpdates() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	close(p.stop)
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

// Events returns the provider's event stream.
func (p *Provider) Events() <-chan location.Event {
	return p.events
}

func (p *Provider) run(stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		if err := p.watch(stop); err != nil {
			p.emitError(err)
		}

		select {
		case <-stop:
			return
		case <-time.After(retryInterval):
		}
	}
}

func (p *Provider) watch(stop chan struct{}) error {
	conn, err := net.DialTimeout("tcp", p.addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("gpsd unreachable at %s: %w", p.addr, err)
	}

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		conn.Close()
		return nil
	}
	p.conn = conn
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.conn == conn {
			p.conn = nil
		}
		p.mu.Unlock()
		conn.Close()
	}()

	if _, err := conn.Write([]byte(watchCommand)); err != nil {
		return fmt.Errorf("gpsd watch request failed: %w", err)
	}
	slog.Info("Location: gpsd watch established", "addr", p.addr)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-stop:
			return nil
		default:
		}
		p.handleReport(scanner.Bytes())
	}

	if err := scanner.Err(); err != nil {
		select {
		case <-stop:
			return nil
		default:
			return fmt.Errorf("gpsd stream ended: %w", err)
		}
	}
	return nil
}

// tpvReport is the subset of gpsd's TPV class this provider consumes.
type tpvReport struct {
	Class string  `json:"class"`
	Mode  int     `json:"mode"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Epx   float64 `json:"epx"`
	Epy   float64 `json:"epy"`
}

func (p *Provider) handleReport(line []byte) {
	var report tpvReport
	if err := json.Unmarshal(line, &report); err != nil {
		return
	}
	// Mode 2 is a 2D fix, mode 3 a 3D fix; anything lower has no position.
	if report.Class != "TPV" || report.Mode < 2 {
		return
	}

	accuracy := report.Epx
	if report.Epy > accuracy {
		accuracy = report.Epy
	}

	sample := model.PositionSample{
		Lat:       report.Lat,
		Lon:       report.Lon,
		AccuracyM: accuracy,
		Timestamp: time.Now(),
	}
	select {
	case p.events <- location.Event{Type: location.EventPosition, Position: sample}:
	default:
	}
}

func (p *Provider) emitError(err error) {
	select {
	case p.events <- location.Event{Type: location.EventError, Err: err}:
	default:
	}
}
