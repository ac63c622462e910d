package motion

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed vehicles.yaml
var defaultVehicles []byte

// VehicleClass is one entry of the vehicle manifest.
type VehicleClass struct {
	ID            string `yaml:"id" json:"id"`
	Name          string `yaml:"name" json:"name"`
	PhysicsConfig `yaml:",inline" json:"physics"`
}

// Manifest mirrors the YAML document listing every vehicle class.
type Manifest struct {
	Default  string         `yaml:"default"`
	Vehicles []VehicleClass `yaml:"vehicles"`
}

// Catalog is an immutable, validated lookup of vehicle classes.
type Catalog struct {
	classes   map[string]VehicleClass
	order     []string
	defaultID string
}

// DefaultCatalog loads the embedded vehicle manifest.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(defaultVehicles)
}

// LoadCatalog parses and validates a YAML vehicle manifest.
func LoadCatalog(data []byte) (*Catalog, error) {
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse vehicle manifest: %w", err)
	}
	return NewCatalog(manifest)
}

// NewCatalog validates the manifest and indexes it by id.
func NewCatalog(manifest Manifest) (*Catalog, error) {
	if err := ValidateManifest(manifest); err != nil {
		return nil, err
	}
	catalog := &Catalog{
		classes:   make(map[string]VehicleClass, len(manifest.Vehicles)),
		order:     make([]string, 0, len(manifest.Vehicles)),
		defaultID: manifest.Default,
	}
	for _, class := range manifest.Vehicles {
		catalog.classes[class.ID] = class
		catalog.order = append(catalog.order, class.ID)
	}
	return catalog, nil
}

// Resolve returns the class for id. Unknown ids resolve to the default class.
func (c *Catalog) Resolve(id string) VehicleClass {
	if c == nil {
		return VehicleClass{}
	}
	if class, ok := c.classes[strings.TrimSpace(id)]; ok {
		return class
	}
	return c.classes[c.defaultID]
}

// Has reports whether id names a known class.
func (c *Catalog) Has(id string) bool {
	if c == nil {
		return false
	}
	_, ok := c.classes[id]
	return ok
}

// DefaultID returns the fallback class id.
func (c *Catalog) DefaultID() string {
	if c == nil {
		return ""
	}
	return c.defaultID
}

// IDs lists the class ids in manifest order.
func (c *Catalog) IDs() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.order...)
}

// ValidateManifest checks every class and returns all problems joined.
func ValidateManifest(manifest Manifest) error {
	var errs []error
	if len(manifest.Vehicles) == 0 {
		errs = append(errs, errors.New("vehicle manifest is empty"))
	}
	seen := make(map[string]struct{}, len(manifest.Vehicles))
	for i, class := range manifest.Vehicles {
		id := strings.TrimSpace(class.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("vehicle %d: missing id", i))
			continue
		}
		if _, dup := seen[id]; dup {
			errs = append(errs, fmt.Errorf("vehicle %q: duplicate id", id))
		}
		seen[id] = struct{}{}
		errs = append(errs, validatePhysics(id, class.PhysicsConfig)...)
	}
	if _, ok := seen[manifest.Default]; !ok && len(manifest.Vehicles) > 0 {
		errs = append(errs, fmt.Errorf("default vehicle %q is not declared", manifest.Default))
	}
	return errors.Join(errs...)
}

func validatePhysics(id string, cfg PhysicsConfig) []error {
	positive := map[string]float64{
		"acceleration":    cfg.Acceleration,
		"deceleration":    cfg.Deceleration,
		"friction":        cfg.Friction,
		"turnRate":        cfg.TurnRate,
		"maxForwardSpeed": cfg.MaxForwardSpeed,
		"maxReverseSpeed": cfg.MaxReverseSpeed,
		"mass":            cfg.Mass,
	}
	names := make([]string, 0, len(positive))
	for name := range positive {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		value := positive[name]
		if !isFinite(value) || value <= 0 {
			errs = append(errs, fmt.Errorf("vehicle %q: %s must be a positive number, got %v", id, name, value))
		}
	}
	if !isFinite(cfg.MinTurnSpeed) || cfg.MinTurnSpeed < 0 {
		errs = append(errs, fmt.Errorf("vehicle %q: minTurnSpeed must be >= 0, got %v", id, cfg.MinTurnSpeed))
	}
	return errs
}
