package client

import (
	"math"

	"driftrace/internal/motion"
)

// CameraConfig tunes follow smoothing. The per-frame alpha is
// Gain / max(|speed|, MinSpeed), clamped to [MinAlpha, MaxAlpha].
type CameraConfig struct {
	Gain     float64
	MinSpeed float64
	MinAlpha float64
	MaxAlpha float64
}

// DefaultCameraConfig follows tightly at walking pace and eases off at speed.
func DefaultCameraConfig() CameraConfig {
	return CameraConfig{Gain: 2, MinSpeed: 0.5, MinAlpha: 0.05, MaxAlpha: 0.5}
}

func (c CameraConfig) normalized() CameraConfig {
	def := DefaultCameraConfig()
	if !(c.Gain > 0) {
		c.Gain = def.Gain
	}
	if !(c.MinSpeed > 0) {
		c.MinSpeed = def.MinSpeed
	}
	if !(c.MinAlpha > 0 && c.MinAlpha <= 1) {
		c.MinAlpha = def.MinAlpha
	}
	if !(c.MaxAlpha >= c.MinAlpha && c.MaxAlpha <= 1) {
		c.MaxAlpha = math.Max(c.MinAlpha, def.MaxAlpha)
	}
	return c
}

// Alpha is the follow factor for a car moving at speed: snappy when slow,
// loose when fast.
func (c CameraConfig) Alpha(speed float64) float64 {
	c = c.normalized()
	if !motion.Finite(speed) {
		return c.MinAlpha
	}
	alpha := c.Gain / math.Max(math.Abs(speed), c.MinSpeed)
	return math.Min(c.MaxAlpha, math.Max(c.MinAlpha, alpha))
}

// Camera trails a target state.
type Camera struct {
	cfg    CameraConfig
	X, Z   float64
	Yaw    float64
	placed bool
}

// NewCamera returns an unplaced camera; the first Follow snaps it onto the
// target. Invalid config fields fall back to DefaultCameraConfig.
func NewCamera(cfg CameraConfig) *Camera {
	return &Camera{cfg: cfg.normalized()}
}

// Follow moves the camera toward target and returns the alpha used. The
// first call places the camera directly on the target.
func (c *Camera) Follow(target motion.State) float64 {
	target = motion.Sanitize(target)
	if !c.placed {
		c.X, c.Z, c.Yaw = target.X, target.Z, target.Yaw
		c.placed = true
		return 1
	}
	alpha := c.cfg.Alpha(target.Speed)
	c.X += (target.X - c.X) * alpha
	c.Z += (target.Z - c.Z) * alpha
	c.Yaw = motion.WrapAngle(c.Yaw + motion.AngleDelta(c.Yaw, target.Yaw)*alpha)
	return alpha
}

// Reset unplaces the camera so the next Follow jumps to its target.
func (c *Camera) Reset() {
	c.placed = false
}
