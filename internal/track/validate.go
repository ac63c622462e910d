package track

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	// MaxBankDegrees bounds the absolute bank angle of any segment.
	MaxBankDegrees = 45.0

	lengthTolerance    = 1e-6
	elevationTolerance = 1e-6
)

// ValidateAll checks every manifest plus cross-track rules.
func ValidateAll(defaultID string, manifests []Manifest) error {
	var errs []error
	if len(manifests) == 0 {
		errs = append(errs, errors.New("track manifest is empty"))
	}
	seen := make(map[string]struct{}, len(manifests))
	for i := range manifests {
		id := strings.TrimSpace(manifests[i].ID)
		if id != "" {
			if _, dup := seen[id]; dup {
				errs = append(errs, fmt.Errorf("track %q: duplicate id", id))
			}
			seen[id] = struct{}{}
		}
		if err := Validate(&manifests[i]); err != nil {
			errs = append(errs, err)
		}
	}
	if _, ok := seen[defaultID]; !ok && len(manifests) > 0 {
		errs = append(errs, fmt.Errorf("default track %q is not declared", defaultID))
	}
	return errors.Join(errs...)
}

// Validate checks one manifest and returns all problems joined.
func Validate(m *Manifest) error {
	if m == nil {
		return errors.New("track: nil manifest")
	}
	id := strings.TrimSpace(m.ID)
	if id == "" {
		id = "<unnamed>"
	}
	fail := func(format string, args ...any) error {
		return fmt.Errorf("track %q: %s", id, fmt.Sprintf(format, args...))
	}

	var errs []error
	if strings.TrimSpace(m.ID) == "" {
		errs = append(errs, fail("missing id"))
	}
	if !finite(m.Length) || m.Length <= 0 {
		errs = append(errs, fail("length must be positive, got %v", m.Length))
	}
	if !finite(m.Width) || m.Width <= 0 {
		errs = append(errs, fail("width must be positive, got %v", m.Width))
	}
	if m.Laps < 1 {
		errs = append(errs, fail("laps must be at least 1, got %d", m.Laps))
	}

	if len(m.Checkpoints) < 2 {
		errs = append(errs, fail("needs at least 2 checkpoints, got %d", len(m.Checkpoints)))
	}
	// Race distance and the lap wrap both assume the lap line is checkpoint 0.
	if len(m.Checkpoints) > 0 && m.Checkpoints[0] != 0 {
		errs = append(errs, fail("checkpoint 0 must be on the lap line at 0, got %v", m.Checkpoints[0]))
	}
	for i, cp := range m.Checkpoints {
		if !finite(cp) || cp < 0 || (m.Length > 0 && cp >= m.Length) {
			errs = append(errs, fail("checkpoint %d at %v is outside [0, length)", i, cp))
		}
		if i > 0 && cp <= m.Checkpoints[i-1] {
			errs = append(errs, fail("checkpoint %d at %v is not after checkpoint %d", i, cp, i-1))
		}
	}

	if len(m.Segments) == 0 {
		errs = append(errs, fail("has no segments"))
	}
	sum := 0.0
	for i, seg := range m.Segments {
		if !finite(seg.Length) || seg.Length <= 0 {
			errs = append(errs, fail("segment %d length must be positive, got %v", i, seg.Length))
		} else {
			sum += seg.Length
		}
		if f := seg.FrictionMultiplier(); !finite(f) || f < 0 {
			errs = append(errs, fail("segment %d friction must be a non-negative number, got %v", i, f))
		}
		start, end := seg.Elevations()
		if !finite(start) || !finite(end) {
			errs = append(errs, fail("segment %d elevation must be finite", i))
		}
		if !finite(seg.Bank) || math.Abs(seg.Bank) > MaxBankDegrees {
			errs = append(errs, fail("segment %d bank %v exceeds %v degrees", i, seg.Bank, MaxBankDegrees))
		}
	}
	if len(m.Segments) > 0 && finite(m.Length) && math.Abs(sum-m.Length) > lengthTolerance*math.Max(1, m.Length) {
		errs = append(errs, fail("segment lengths sum to %v, want %v", sum, m.Length))
	}
	for i := range m.Segments {
		next := (i + 1) % len(m.Segments)
		_, end := m.Segments[i].Elevations()
		start, _ := m.Segments[next].Elevations()
		if math.Abs(end-start) > elevationTolerance {
			boundary := fmt.Sprintf("segments %d and %d", i, next)
			if next == 0 {
				boundary = "lap wrap-around"
			}
			errs = append(errs, fail("elevation jumps from %v to %v at %s", end, start, boundary))
		}
	}

	spawnIDs := make(map[string]struct{}, len(m.Spawns))
	for i, spawn := range m.Spawns {
		if spawn.ID == "" {
			errs = append(errs, fail("spawn %d missing id", i))
		} else if _, dup := spawnIDs[spawn.ID]; dup {
			errs = append(errs, fail("spawn %q: duplicate id", spawn.ID))
		}
		spawnIDs[spawn.ID] = struct{}{}
		types, ok := spawnTypes[spawn.Kind]
		if !ok {
			errs = append(errs, fail("spawn %q: unknown kind %q", spawn.ID, spawn.Kind))
		} else if _, ok := types[spawn.Type]; !ok {
			errs = append(errs, fail("spawn %q: unknown %s type %q", spawn.ID, spawn.Kind, spawn.Type))
		}
		if !finite(spawn.Radius) || spawn.Radius <= 0 {
			errs = append(errs, fail("spawn %q: radius must be positive", spawn.ID))
		}
		if !finite(spawn.Z) || spawn.Z < 0 || (m.Length > 0 && spawn.Z >= m.Length) {
			errs = append(errs, fail("spawn %q: z %v is outside [0, length)", spawn.ID, spawn.Z))
		}
		if !finite(spawn.X) || math.Abs(spawn.X) > m.Width/2 {
			errs = append(errs, fail("spawn %q: x %v is outside the track width", spawn.ID, spawn.X))
		}
	}
	return errors.Join(errs...)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
