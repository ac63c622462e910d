package motion

import "math"

// maxStepSeconds caps a single integration step. Longer gaps are integrated
// as one capped step rather than extrapolated.
const maxStepSeconds = 1.0

// State is the kinematic state of one car. Y is derived from track elevation
// and is not integrated here.
type State struct {
	Speed float64 `json:"speed"`
	Yaw   float64 `json:"yaw"`
	X     float64 `json:"x"`
	Z     float64 `json:"z"`
}

// Controls is the driver input for one tick. Throttle and Steering are
// expected in [-1, 1]; out of range values are clamped.
type Controls struct {
	Throttle  float64 `json:"throttle"`
	Steering  float64 `json:"steering"`
	Brake     bool    `json:"brake"`
	Boost     bool    `json:"boost"`
	Handbrake bool    `json:"handbrake"`
}

// Step advances state by dt seconds. It reads no clocks and no randomness, so
// identical arguments always produce identical results.
func Step(s State, c Controls, dt float64, cfg PhysicsConfig) State {
	s = Sanitize(s)
	c = SanitizeControls(c)
	cfg = cfg.sanitized()
	dt = finiteOr(dt, 0)
	if dt < 0 {
		dt = 0
	}
	if dt > maxStepSeconds {
		dt = maxStepSeconds
	}

	next := s
	next.Speed = clamp(next.Speed, -cfg.MaxReverseSpeed, cfg.MaxForwardSpeed)

	switch {
	case c.Brake:
		next.Speed = approachZero(next.Speed, cfg.Deceleration*dt)
	case c.Throttle > 0:
		next.Speed += cfg.Acceleration * c.Throttle * dt
	case c.Throttle < 0:
		next.Speed += cfg.Deceleration * c.Throttle * dt
	default:
		next.Speed = approachZero(next.Speed, cfg.Friction*dt)
	}
	next.Speed = clamp(next.Speed, -cfg.MaxReverseSpeed, cfg.MaxForwardSpeed)

	if math.Abs(next.Speed) >= cfg.MinTurnSpeed && c.Steering != 0 {
		direction := 1.0
		if next.Speed < 0 {
			direction = -1.0
		}
		next.Yaw += c.Steering * cfg.TurnRate * dt * direction
	}
	next.Yaw = WrapAngle(next.Yaw)

	next.X += math.Sin(next.Yaw) * next.Speed * dt
	next.Z += math.Cos(next.Yaw) * next.Speed * dt

	if !next.finite() {
		return s
	}
	return next
}

// Sanitize replaces any non-finite field with zero and wraps yaw.
func Sanitize(s State) State {
	s.Speed = finiteOr(s.Speed, 0)
	s.Yaw = WrapAngle(finiteOr(s.Yaw, 0))
	s.X = finiteOr(s.X, 0)
	s.Z = finiteOr(s.Z, 0)
	return s
}

// SanitizeControls zeroes non-finite axes and clamps them to [-1, 1].
func SanitizeControls(c Controls) Controls {
	c.Throttle = clamp(finiteOr(c.Throttle, 0), -1, 1)
	c.Steering = clamp(finiteOr(c.Steering, 0), -1, 1)
	return c
}

// WrapAngle maps an angle into [-pi, pi].
func WrapAngle(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return 0
	}
	return math.Remainder(a, 2*math.Pi)
}

// AngleDelta returns the shortest signed rotation from one angle to another.
func AngleDelta(from, to float64) float64 {
	return WrapAngle(to - from)
}

// Heading returns the unit forward vector (x, z) for a yaw.
func Heading(yaw float64) (float64, float64) {
	return math.Sin(yaw), math.Cos(yaw)
}

func (s State) finite() bool {
	return isFinite(s.Speed) && isFinite(s.Yaw) && isFinite(s.X) && isFinite(s.Z)
}

func approachZero(v, amount float64) float64 {
	if amount <= 0 {
		return v
	}
	if v > 0 {
		return math.Max(0, v-amount)
	}
	if v < 0 {
		return math.Min(0, v+amount)
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteOr(v, fallback float64) float64 {
	if isFinite(v) {
		return v
	}
	return fallback
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return isFinite(v)
}
