// Package config loads and persists the application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	DB       DBConfig       `yaml:"db"`
	Server   ServerConfig   `yaml:"server"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Location LocationConfig `yaml:"location"`
	Selector SelectorConfig `yaml:"selector"`
	Playback PlaybackConfig `yaml:"playback"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
	// HistoryRetention bounds how long play history rows are kept.
	// Zero disables pruning.
	HistoryRetention Duration `yaml:"history_retention"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// CatalogConfig holds station catalog settings.
type CatalogConfig struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"` // "yaml", "geojson"
}

// LocationConfig holds settings for the position provider.
type LocationConfig struct {
	Provider          string        `yaml:"provider"` // "gpsd", "mock"
	MinReportDistance Distance      `yaml:"min_report_distance"`
	SignificantChange bool          `yaml:"significant_change"`
	Gpsd              GpsdConfig    `yaml:"gpsd"`
	Mock              MockGPSConfig `yaml:"mock"`
}

// GpsdConfig holds settings for the gpsd provider.
type GpsdConfig struct {
	Address string `yaml:"address"`
}

// MockGPSConfig holds settings for the simulated position provider.
type MockGPSConfig struct {
	StartLat float64  `yaml:"start_lat"`
	StartLon float64  `yaml:"start_lon"`
	Heading  float64  `yaml:"heading"`
	SpeedKmh float64  `yaml:"speed_kmh"`
	Interval Duration `yaml:"interval"`
}

// SelectorConfig holds station selection settings.
type SelectorConfig struct {
	SwitchThreshold Distance `yaml:"switch_threshold"`
	JumpReset       Distance `yaml:"jump_reset"`
}

// PlaybackConfig holds playback settings.
type PlaybackConfig struct {
	Volume       float64  `yaml:"volume"`
	OpenTimeout  Duration `yaml:"open_timeout"`
	StallTimeout Duration `yaml:"stall_timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path:             "./data/roamradio.db",
			HistoryRetention: Duration(90 * 24 * time.Hour),
		},
		Server: ServerConfig{
			Address: "localhost:2480",
		},
		Catalog: CatalogConfig{
			Path:   "configs/stations.yaml",
			Format: "yaml",
		},
		Location: LocationConfig{
			Provider:          "gpsd",
			MinReportDistance: Distance(1000), // 1km
			SignificantChange: true,
			Gpsd: GpsdConfig{
				Address: "localhost:2947",
			},
			Mock: MockGPSConfig{
				StartLat: 37.7749,
				StartLon: -122.4194,
				Heading:  90,
				SpeedKmh: 100,
				Interval: Duration(1 * time.Second),
			},
		},
		Selector: SelectorConfig{
			SwitchThreshold: Distance(50000),  // 50km
			JumpReset:       Distance(500000), // 500km
		},
		Playback: PlaybackConfig{
			Volume:       1.0,
			OpenTimeout:  Duration(30 * time.Second),
			StallTimeout: Duration(5 * time.Second),
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT
// save back to disk (to preserve user formatting and comments).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		// Env fallbacks fill gaps without being written back to disk.
		if cfg.Gpsd().Address == "" {
			if addr := os.Getenv("ROAMRADIO_GPSD_ADDR"); addr != "" {
				cfg.Location.Gpsd.Address = addr
			}
		}
		if cfg.Server.Address == "" {
			if addr := os.Getenv("ROAMRADIO_LISTEN_ADDR"); addr != "" {
				cfg.Server.Address = addr
			}
		}

		return cfg, nil
	}

	if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	return cfg, nil
}

// Gpsd is a shorthand accessor for the gpsd provider settings.
func (c *Config) Gpsd() GpsdConfig {
	return c.Location.Gpsd
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# RoamRadio Configuration
# ----------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers), nm (nautical miles)

`)
	data = append(header, data...)

	// Inject comments for enum fields.
	reProvider := regexp.MustCompile(`(?m)^(\s+)provider:`)
	data = reProvider.ReplaceAll(data, []byte("${1}# Options: gpsd, mock\n${1}provider:"))

	reFormat := regexp.MustCompile(`(?m)^(\s+)format:`)
	data = reFormat.ReplaceAll(data, []byte("${1}# Options: yaml, geojson\n${1}format:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
