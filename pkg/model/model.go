// Package model contains the shared domain types.
package model

import (
	"fmt"
	"net/url"
	"time"

	"roamradio/pkg/geo"
)

// Station is a radio station known to the catalog.
// Stations are immutable once loaded.
type Station struct {
	ID          string  `yaml:"id" json:"id"`
	Name        string  `yaml:"name" json:"name"`
	StreamURL   string  `yaml:"stream_url" json:"stream_url"`
	Lat         float64 `yaml:"lat" json:"lat"`
	Lon         float64 `yaml:"lon" json:"lon"`
	Region      string  `yaml:"region" json:"region"`
	Frequency   string  `yaml:"frequency,omitempty" json:"frequency,omitempty"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
}

// Validate checks the catalog invariants: coordinate ranges and a
// syntactically valid stream URL.
func (s *Station) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("station missing id")
	}
	if s.Lat < -90 || s.Lat > 90 {
		return fmt.Errorf("station %s: latitude %.4f out of range", s.ID, s.Lat)
	}
	if s.Lon < -180 || s.Lon > 180 {
		return fmt.Errorf("station %s: longitude %.4f out of range", s.ID, s.Lon)
	}
	u, err := url.Parse(s.StreamURL)
	if err != nil {
		return fmt.Errorf("station %s: invalid stream url: %w", s.ID, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("station %s: stream url %q missing scheme or host", s.ID, s.StreamURL)
	}
	return nil
}

// Point returns the station's coordinate.
func (s *Station) Point() geo.Point {
	return geo.Point{Lat: s.Lat, Lon: s.Lon}
}

// DisplayName returns the name with the region appended when present.
func (s *Station) DisplayName() string {
	if s.Region == "" {
		return s.Name
	}
	return s.Name + " (" + s.Region + ")"
}

// PositionSample is a single accepted position fix.
// Transient; superseded by the next sample.
type PositionSample struct {
	Lat       float64
	Lon       float64
	AccuracyM float64
	Timestamp time.Time
}

// Point returns the sample's coordinate.
func (p PositionSample) Point() geo.Point {
	return geo.Point{Lat: p.Lat, Lon: p.Lon}
}

// NowPlaying is the metadata projected onto the transport surface.
type NowPlaying struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	IsLive   bool   `json:"is_live"`
}
