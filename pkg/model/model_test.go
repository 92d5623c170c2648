package model

import (
	"strings"
	"testing"
)

func TestStationValidate(t *testing.T) {
	valid := Station{
		ID:        "kqed",
		Name:      "KQED",
		StreamURL: "https://streams.kqed.org/kqedradio",
		Lat:       37.7749,
		Lon:       -122.4194,
		Region:    "San Francisco",
	}

	tests := []struct {
		name    string
		mutate  func(*Station)
		wantErr string
	}{
		{"valid", func(*Station) {}, ""},
		{"missing id", func(s *Station) { s.ID = "" }, "missing id"},
		{"latitude too high", func(s *Station) { s.Lat = 90.1 }, "latitude"},
		{"latitude too low", func(s *Station) { s.Lat = -91 }, "latitude"},
		{"longitude too high", func(s *Station) { s.Lon = 181 }, "longitude"},
		{"longitude too low", func(s *Station) { s.Lon = -180.5 }, "longitude"},
		{"relative url", func(s *Station) { s.StreamURL = "/stream.mp3" }, "missing scheme"},
		{"garbage url", func(s *Station) { s.StreamURL = "://nope" }, "invalid stream url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestStationDisplayName(t *testing.T) {
	s := Station{Name: "KQED", Region: "San Francisco"}
	if got := s.DisplayName(); got != "KQED (San Francisco)" {
		t.Errorf("DisplayName() = %q", got)
	}
	s.Region = ""
	if got := s.DisplayName(); got != "KQED" {
		t.Errorf("DisplayName() = %q", got)
	}
}
