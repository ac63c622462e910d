package motion

// PhysicsConfig holds the tunables for one vehicle class. Values are per
// second: speeds in m/s, rates in m/s^2 and rad/s.
type PhysicsConfig struct {
	Acceleration    float64 `yaml:"acceleration" json:"acceleration"`
	Deceleration    float64 `yaml:"deceleration" json:"deceleration"`
	Friction        float64 `yaml:"friction" json:"friction"`
	TurnRate        float64 `yaml:"turnRate" json:"turnRate"`
	MinTurnSpeed    float64 `yaml:"minTurnSpeed" json:"minTurnSpeed"`
	MaxForwardSpeed float64 `yaml:"maxForwardSpeed" json:"maxForwardSpeed"`
	MaxReverseSpeed float64 `yaml:"maxReverseSpeed" json:"maxReverseSpeed"`
	Mass            float64 `yaml:"mass" json:"mass"`
}

// Scaled applies movement and steering multipliers. Movement scales top
// speeds and acceleration; steering scales the turn rate.
func (c PhysicsConfig) Scaled(movement, steering float64) PhysicsConfig {
	movement = nonNegative(movement)
	steering = nonNegative(steering)
	c.MaxForwardSpeed *= movement
	c.MaxReverseSpeed *= movement
	c.Acceleration *= movement
	c.TurnRate *= steering
	return c
}

// WithSurface applies a track segment friction multiplier. Rough surfaces
// (multiplier > 1) also lower the reachable top speed.
func (c PhysicsConfig) WithSurface(multiplier float64) PhysicsConfig {
	multiplier = nonNegative(multiplier)
	c.Friction *= multiplier
	if multiplier > 1 {
		c.MaxForwardSpeed /= multiplier
		c.MaxReverseSpeed /= multiplier
	}
	return c
}

func (c PhysicsConfig) sanitized() PhysicsConfig {
	c.Acceleration = nonNegative(c.Acceleration)
	c.Deceleration = nonNegative(c.Deceleration)
	c.Friction = nonNegative(c.Friction)
	c.TurnRate = nonNegative(c.TurnRate)
	c.MinTurnSpeed = nonNegative(c.MinTurnSpeed)
	c.MaxForwardSpeed = nonNegative(c.MaxForwardSpeed)
	c.MaxReverseSpeed = nonNegative(c.MaxReverseSpeed)
	c.Mass = nonNegative(c.Mass)
	return c
}

func nonNegative(v float64) float64 {
	if !isFinite(v) || v < 0 {
		return 0
	}
	return v
}
