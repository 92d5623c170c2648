package catalog

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gopkg.in/yaml.v3"

	"roamradio/pkg/config"
	"roamradio/pkg/model"
)

// stationFile is the on-disk YAML shape.
type stationFile struct {
	Stations []model.Station `yaml:"stations"`
}

// Load reads the catalog from the configured path and format.
func Load(cfg config.CatalogConfig) (*Catalog, error) {
	switch cfg.Format {
	case "", "yaml":
		return LoadYAML(cfg.Path)
	case "geojson":
		return LoadGeoJSON(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown catalog format %q", cfg.Format)
	}
}

// LoadYAML loads stations from a YAML file.
func LoadYAML(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read station catalog: %w", err)
	}

	var file stationFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse station catalog: %w", err)
	}

	return New(file.Stations)
}

// LoadGeoJSON loads stations from a GeoJSON FeatureCollection of points.
// Station fields are read from feature properties; coordinates from the
// point geometry.
func LoadGeoJSON(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read station catalog: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse station geojson: %w", err)
	}

	stations := make([]model.Station, 0, len(fc.Features))
	for _, f := range fc.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			return nil, fmt.Errorf("station feature %v: geometry is not a point", f.ID)
		}
		stations = append(stations, model.Station{
			ID:          getStringProp(f.Properties, "id"),
			Name:        getStringProp(f.Properties, "name"),
			StreamURL:   getStringProp(f.Properties, "stream_url"),
			Lat:         pt.Lat(),
			Lon:         pt.Lon(),
			Region:      getStringProp(f.Properties, "region"),
			Frequency:   getStringProp(f.Properties, "frequency"),
			Description: getStringProp(f.Properties, "description"),
		})
	}

	return New(stations)
}

// getStringProp safely extracts a string property from GeoJSON properties.
func getStringProp(props geojson.Properties, key string) string {
	if val, ok := props[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}
