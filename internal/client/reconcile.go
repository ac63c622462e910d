// Package client holds the client-side race core: local prediction,
// reconciliation against authoritative snapshots, camera smoothing and
// remote interpolation. Nothing in it blocks or reads a clock.
package client

import (
	"math"

	"driftrace/internal/motion"
)

// Correction classifies how a predicted state is pulled toward the server.
type Correction int

const (
	CorrectionNone Correction = iota
	CorrectionSoft
	CorrectionHardSnap
)

func (c Correction) String() string {
	switch c {
	case CorrectionSoft:
		return "soft"
	case CorrectionHardSnap:
		return "hard_snap"
	default:
		return "none"
	}
}

// ReconcileConfig holds the correction thresholds in meters and the blend
// range for soft corrections.
type ReconcileConfig struct {
	MinThreshold      float64
	HardSnapThreshold float64
	BaseAlpha         float64
	MaxAlpha          float64
	// MinYawError (radians) corrects heading on its own when position agrees.
	MinYawError float64
}

// DefaultReconcileConfig returns the tuned thresholds used by the client.
func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		MinThreshold:      0.1,
		HardSnapThreshold: 8,
		BaseAlpha:         0.15,
		MaxAlpha:          0.85,
		MinYawError:       0.02,
	}
}

func (c ReconcileConfig) normalized() ReconcileConfig {
	def := DefaultReconcileConfig()
	if !(c.MinThreshold >= 0) {
		c.MinThreshold = def.MinThreshold
	}
	if !(c.HardSnapThreshold > c.MinThreshold) {
		c.HardSnapThreshold = math.Max(def.HardSnapThreshold, c.MinThreshold*2)
	}
	if !(c.BaseAlpha > 0 && c.BaseAlpha < 1) {
		c.BaseAlpha = def.BaseAlpha
	}
	if !(c.MaxAlpha >= c.BaseAlpha && c.MaxAlpha < 1) {
		c.MaxAlpha = math.Max(c.BaseAlpha, def.MaxAlpha)
	}
	if !(c.MinYawError >= 0) {
		c.MinYawError = def.MinYawError
	}
	return c
}

// Classify maps a positional error to a correction kind.
func (c ReconcileConfig) Classify(err float64) Correction {
	c = c.normalized()
	switch {
	case !motion.Finite(err) || err >= c.HardSnapThreshold:
		return CorrectionHardSnap
	case err < c.MinThreshold:
		return CorrectionNone
	default:
		return CorrectionSoft
	}
}

// Alpha is the soft-correction blend factor for err. It rises linearly from
// BaseAlpha at MinThreshold to MaxAlpha at HardSnapThreshold and stays flat
// outside that range. It is always below 1 so a correction never erases the
// predicted motion of a tick.
func (c ReconcileConfig) Alpha(err float64) float64 {
	c = c.normalized()
	if !motion.Finite(err) || err >= c.HardSnapThreshold {
		return c.MaxAlpha
	}
	if err <= c.MinThreshold {
		return c.BaseAlpha
	}
	t := (err - c.MinThreshold) / (c.HardSnapThreshold - c.MinThreshold)
	return c.BaseAlpha + (c.MaxAlpha-c.BaseAlpha)*t
}

// Reconciliation is the outcome of one correction.
type Reconciliation struct {
	State         motion.State
	Kind          Correction
	PositionError float64
	YawError      float64
	Alpha         float64
}

// Reconcile pulls predicted toward authoritative.
func Reconcile(predicted, authoritative motion.State, cfg ReconcileConfig) Reconciliation {
	cfg = cfg.normalized()
	predicted = motion.Sanitize(predicted)
	authoritative = motion.Sanitize(authoritative)

	dx := authoritative.X - predicted.X
	dz := authoritative.Z - predicted.Z
	posErr := math.Hypot(dx, dz)
	yawErr := motion.AngleDelta(predicted.Yaw, authoritative.Yaw)

	out := Reconciliation{
		State:         predicted,
		Kind:          cfg.Classify(posErr),
		PositionError: posErr,
		YawError:      yawErr,
	}
	switch out.Kind {
	case CorrectionHardSnap:
		out.State = authoritative
		out.Alpha = 1
	case CorrectionSoft:
		out.Alpha = cfg.Alpha(posErr)
		out.State = blend(predicted, authoritative, out.Alpha)
	default:
		if math.Abs(yawErr) >= cfg.MinYawError {
			out.Alpha = cfg.BaseAlpha
			out.State.Yaw = motion.WrapAngle(predicted.Yaw + yawErr*out.Alpha)
		}
	}
	return out
}

func blend(from, to motion.State, alpha float64) motion.State {
	return motion.State{
		X:     from.X + (to.X-from.X)*alpha,
		Z:     from.Z + (to.Z-from.Z)*alpha,
		Speed: from.Speed + (to.Speed-from.Speed)*alpha,
		Yaw:   motion.WrapAngle(from.Yaw + motion.AngleDelta(from.Yaw, to.Yaw)*alpha),
	}
}
