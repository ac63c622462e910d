package track

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed tracks.yaml
var defaultTracks []byte

// Spawn kinds.
const (
	KindHazard  = "hazard"
	KindPowerup = "powerup"
)

// Hazard and powerup types.
const (
	HazardOil      = "oil"
	HazardSpikes   = "spikes"
	HazardBoostPad = "boost_pad"

	PowerupNitro   = "nitro"
	PowerupShield  = "shield"
	PowerupMissile = "missile"
)

var spawnTypes = map[string]map[string]struct{}{
	KindHazard:  {HazardOil: {}, HazardSpikes: {}, HazardBoostPad: {}},
	KindPowerup: {PowerupNitro: {}, PowerupShield: {}, PowerupMissile: {}},
}

// Segment is one stretch of track. Elevation and friction are optional;
// missing elevation reads as 0 and missing friction as 1.
type Segment struct {
	Length         float64  `yaml:"length" json:"length"`
	Friction       *float64 `yaml:"friction,omitempty" json:"friction,omitempty"`
	ElevationStart *float64 `yaml:"elevationStart,omitempty" json:"elevationStart,omitempty"`
	ElevationEnd   *float64 `yaml:"elevationEnd,omitempty" json:"elevationEnd,omitempty"`
	// Bank is in degrees.
	Bank float64 `yaml:"bank,omitempty" json:"bank,omitempty"`
}

// FrictionMultiplier returns the segment friction, defaulting to 1.
func (s Segment) FrictionMultiplier() float64 {
	if s.Friction == nil {
		return 1
	}
	return *s.Friction
}

// Elevations returns the start and end elevation, defaulting to 0.
func (s Segment) Elevations() (float64, float64) {
	var start, end float64
	if s.ElevationStart != nil {
		start = *s.ElevationStart
	}
	if s.ElevationEnd != nil {
		end = *s.ElevationEnd
	}
	return start, end
}

// Spawn places a hazard or powerup. Z is the lap distance, X the lateral
// offset from the centre line.
type Spawn struct {
	ID     string  `yaml:"id" json:"id"`
	Kind   string  `yaml:"kind" json:"kind"`
	Type   string  `yaml:"type" json:"type"`
	X      float64 `yaml:"x" json:"x"`
	Z      float64 `yaml:"z" json:"z"`
	Radius float64 `yaml:"radius" json:"radius"`
}

// Manifest is the static description of one track.
type Manifest struct {
	ID          string    `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Length      float64   `yaml:"length" json:"length"`
	Width       float64   `yaml:"width" json:"width"`
	Laps        int       `yaml:"laps" json:"laps"`
	Checkpoints []float64 `yaml:"checkpoints" json:"checkpoints"`
	Segments    []Segment `yaml:"segments" json:"segments"`
	Spawns      []Spawn   `yaml:"spawns" json:"spawns"`
}

// LastCheckpoint returns the index of the final checkpoint of a lap.
func (m *Manifest) LastCheckpoint() int {
	return len(m.Checkpoints) - 1
}

type document struct {
	Default string     `yaml:"default"`
	Tracks  []Manifest `yaml:"tracks"`
}

// Catalog is the validated set of tracks.
type Catalog struct {
	tracks    map[string]*Manifest
	order     []string
	defaultID string
}

// DefaultCatalog loads the embedded tracks.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(defaultTracks)
}

// LoadCatalog parses and validates a YAML track document.
func LoadCatalog(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse track manifest: %w", err)
	}
	return NewCatalog(doc.Default, doc.Tracks)
}

// NewCatalog validates every manifest and indexes them by id.
func NewCatalog(defaultID string, manifests []Manifest) (*Catalog, error) {
	if err := ValidateAll(defaultID, manifests); err != nil {
		return nil, err
	}
	catalog := &Catalog{
		tracks:    make(map[string]*Manifest, len(manifests)),
		defaultID: defaultID,
	}
	for i := range manifests {
		m := manifests[i]
		catalog.tracks[m.ID] = &m
		catalog.order = append(catalog.order, m.ID)
	}
	return catalog, nil
}

// Resolve returns the track for id, falling back to the default track.
func (c *Catalog) Resolve(id string) *Manifest {
	if c == nil {
		return nil
	}
	if m, ok := c.tracks[strings.TrimSpace(id)]; ok {
		return m
	}
	return c.tracks[c.defaultID]
}

// Has reports whether id names a known track.
func (c *Catalog) Has(id string) bool {
	if c == nil {
		return false
	}
	_, ok := c.tracks[id]
	return ok
}

// DefaultID returns the fallback track id.
func (c *Catalog) DefaultID() string {
	if c == nil {
		return ""
	}
	return c.defaultID
}

// IDs lists track ids in manifest order.
func (c *Catalog) IDs() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.order...)
}
