// Package catalog holds the known locations offered to clients.
package catalog

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"wayrafrost/internal/geofence"
	"wayrafrost/internal/types"
)

//go:embed locations.yaml
var builtin []byte

type file struct {
	Locations []types.KnownLocation `yaml:"locations" validate:"required,min=1,dive"`
}

// Catalog is an ordered, immutable list of known locations.
type Catalog struct {
	locations []types.KnownLocation
}

// Entry is a known location annotated with its geofence result.
type Entry struct {
	types.KnownLocation
	IsValid    bool    `json:"is_valid"`
	DistanceKm float64 `json:"distance_from_station_km"`
}

// Load reads the catalog at path, or the built-in catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Parse(builtin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return &Catalog{locations: f.Locations}, nil
}

// Default is the first location.
func (c *Catalog) Default() types.KnownLocation { return c.locations[0] }

// Find looks a location up by name, ignoring case.
func (c *Catalog) Find(name string) (types.KnownLocation, bool) {
	for _, l := range c.locations {
		if strings.EqualFold(l.Name, name) {
			return l, true
		}
	}
	return types.KnownLocation{}, false
}

// Validated annotates every location with its distance from the station,
// rounded to two decimals.
func (c *Catalog) Validated(v *geofence.Validator) []Entry {
	out := make([]Entry, 0, len(c.locations))
	for _, l := range c.locations {
		r := v.Validate(l.Latitude, l.Longitude)
		out = append(out, Entry{
			KnownLocation: l,
			IsValid:       r.Valid,
			DistanceKm:    math.Round(r.DistanceKm*100) / 100,
		})
	}
	return out
}
