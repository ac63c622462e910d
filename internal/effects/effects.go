package effects

import (
	"math"
	"sort"
	"time"
)

// Type names one status effect from the fixed catalog.
type Type string

const (
	FlatTire   Type = "flat_tire"
	OilSlick   Type = "oil_slick"
	Stun       Type = "stun"
	Flipped    Type = "flipped"
	DriveLock  Type = "drive_lock"
	Shielded   Type = "shielded"
	Slipstream Type = "slipstream"
)

// Types lists the catalog in bitmask order. Appending is safe; reordering
// changes the meaning of snapshot masks.
var Types = []Type{FlatTire, OilSlick, Stun, Flipped, DriveLock, Shielded, Slipstream}

// Definition is the static description of an effect type.
type Definition struct {
	Type     Type
	Duration time.Duration
	// Movement scales top speed and acceleration, Steering scales turn rate.
	Movement float64
	Steering float64
	// LocksThrottle forces throttle to zero while active.
	LocksThrottle bool
	// Protective effects absorb incoming hits instead of scaling physics.
	Protective bool
}

var neutral = Definition{Movement: 1, Steering: 1}

var definitions = map[Type]Definition{
	FlatTire:   {Type: FlatTire, Duration: 4 * time.Second, Movement: 0.45, Steering: 0.8},
	OilSlick:   {Type: OilSlick, Duration: 2 * time.Second, Movement: 0.85, Steering: 0.35},
	Stun:       {Type: Stun, Duration: time.Second, Movement: 0.2, Steering: 0},
	Flipped:    {Type: Flipped, Duration: 1500 * time.Millisecond, Movement: 0, Steering: 0},
	DriveLock:  {Type: DriveLock, Duration: 800 * time.Millisecond, Movement: 1, Steering: 1, LocksThrottle: true},
	Shielded:   {Type: Shielded, Duration: 5 * time.Second, Movement: 1, Steering: 1, Protective: true},
	Slipstream: {Type: Slipstream, Duration: 1500 * time.Millisecond, Movement: 1.15, Steering: 1},
}

// Lookup returns the definition for t and whether it is part of the catalog.
func Lookup(t Type) (Definition, bool) {
	def, ok := definitions[t]
	return def, ok
}

// Resolve returns the definition for t, or a neutral no-op definition for
// unknown types.
func Resolve(t Type) Definition {
	if def, ok := definitions[t]; ok {
		return def
	}
	def := neutral
	def.Type = t
	return def
}

// Instance is one active effect on a car.
type Instance struct {
	Type      Type
	SourceID  string
	Intensity float64
	AppliedAt time.Time
	ExpiresAt time.Time
}

// Active reports whether the instance still applies at now.
func (i *Instance) Active(now time.Time) bool {
	return i != nil && now.Before(i.ExpiresAt)
}

func (i *Instance) multipliers() (float64, float64) {
	def := Resolve(i.Type)
	return scale(def.Movement, i.Intensity), scale(def.Steering, i.Intensity)
}

// scale blends a base multiplier toward 1 by intensity.
func scale(base, intensity float64) float64 {
	return 1 + (base-1)*intensity
}

func normalizeIntensity(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 || v > 1 {
		return 1
	}
	return v
}

// Modifiers is the composed influence of every active effect on one car.
type Modifiers struct {
	Movement       float64
	Steering       float64
	ThrottleLocked bool
	Shielded       bool
}

// Set holds the active effects of one car, keyed by type. The zero value is
// ready to use.
type Set struct {
	active map[Type]*Instance
}

// Apply adds an effect or refreshes an existing one. It returns true when the
// effect was newly applied. Unknown types are ignored.
func (s *Set) Apply(t Type, source string, intensity float64, now time.Time) bool {
	def, ok := definitions[t]
	if !ok || def.Duration <= 0 {
		return false
	}
	return s.ApplyFor(t, source, intensity, def.Duration, now)
}

// ApplyFor is Apply with an explicit duration.
func (s *Set) ApplyFor(t Type, source string, intensity float64, duration time.Duration, now time.Time) bool {
	if _, ok := definitions[t]; !ok || duration <= 0 {
		return false
	}
	intensity = normalizeIntensity(intensity)
	if s.active == nil {
		s.active = make(map[Type]*Instance)
	}
	expiresAt := now.Add(duration)
	inst, exists := s.active[t]
	if exists && inst.Active(now) {
		inst.SourceID = source
		if expiresAt.After(inst.ExpiresAt) {
			inst.ExpiresAt = expiresAt
		}
		if intensity > inst.Intensity {
			inst.Intensity = intensity
		}
		return false
	}
	s.active[t] = &Instance{
		Type:      t,
		SourceID:  source,
		Intensity: intensity,
		AppliedAt: now,
		ExpiresAt: expiresAt,
	}
	return true
}

// Remove drops an effect regardless of its expiry.
func (s *Set) Remove(t Type) bool {
	if s == nil || s.active == nil {
		return false
	}
	if _, ok := s.active[t]; !ok {
		return false
	}
	delete(s.active, t)
	return true
}

// Has reports whether t is active at now.
func (s *Set) Has(t Type, now time.Time) bool {
	if s == nil || s.active == nil {
		return false
	}
	return s.active[t].Active(now)
}

// Prune removes every instance with now >= ExpiresAt and returns the expired
// types in catalog order.
func (s *Set) Prune(now time.Time) []Type {
	if s == nil || len(s.active) == 0 {
		return nil
	}
	var expired []Type
	for key, inst := range s.active {
		if inst == nil || !inst.Active(now) {
			delete(s.active, key)
			expired = append(expired, key)
		}
	}
	sortTypes(expired)
	return expired
}

// Clear removes every effect.
func (s *Set) Clear() {
	if s == nil {
		return
	}
	s.active = nil
}

// Len returns the number of stored instances, including not-yet-pruned ones.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.active)
}

// Modifiers composes every instance active at now by multiplication, in
// catalog order so the product is bit-identical across runs.
func (s *Set) Modifiers(now time.Time) Modifiers {
	mods := Modifiers{Movement: 1, Steering: 1}
	if s == nil {
		return mods
	}
	for _, t := range Types {
		inst := s.active[t]
		if !inst.Active(now) {
			continue
		}
		movement, steering := inst.multipliers()
		mods.add(Resolve(inst.Type), movement, steering)
	}
	return mods.clamped()
}

// MaskModifiers composes the types set in a snapshot mask at full intensity.
// Clients use it to predict under the same modifiers the server applied.
func MaskModifiers(mask uint32) Modifiers {
	mods := Modifiers{Movement: 1, Steering: 1}
	for i, t := range Types {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		def := Resolve(t)
		mods.add(def, def.Movement, def.Steering)
	}
	return mods.clamped()
}

func (m *Modifiers) add(def Definition, movement, steering float64) {
	m.Movement *= movement
	m.Steering *= steering
	m.ThrottleLocked = m.ThrottleLocked || def.LocksThrottle
	m.Shielded = m.Shielded || def.Protective
}

func (m Modifiers) clamped() Modifiers {
	if m.Movement < 0 {
		m.Movement = 0
	}
	if m.Steering < 0 {
		m.Steering = 0
	}
	return m
}

// Mask encodes the types active at now as a bitmask in Types order.
func (s *Set) Mask(now time.Time) uint32 {
	if s == nil {
		return 0
	}
	var mask uint32
	for i, t := range Types {
		if s.active[t].Active(now) {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

// Instances returns copies of the active instances in catalog order.
func (s *Set) Instances(now time.Time) []Instance {
	if s == nil {
		return nil
	}
	out := make([]Instance, 0, len(s.active))
	for _, t := range Types {
		if inst := s.active[t]; inst.Active(now) {
			out = append(out, *inst)
		}
	}
	return out
}

// TypesFromMask is the inverse of Mask.
func TypesFromMask(mask uint32) []Type {
	var out []Type
	for i, t := range Types {
		if mask&(1<<uint(i)) != 0 {
			out = append(out, t)
		}
	}
	return out
}

func sortTypes(types []Type) {
	order := make(map[Type]int, len(Types))
	for i, t := range Types {
		order[t] = i
	}
	sort.Slice(types, func(a, b int) bool {
		return order[types[a]] < order[types[b]]
	})
}
