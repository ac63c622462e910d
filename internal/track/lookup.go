package track

import "math"

// LapDistance maps any track coordinate into [0, length).
func (m *Manifest) LapDistance(z float64) float64 {
	if m == nil || m.Length <= 0 || !finite(z) {
		return 0
	}
	d := math.Mod(z, m.Length)
	if d < 0 {
		d += m.Length
	}
	if d >= m.Length {
		d = 0
	}
	return d
}

// WrapDelta returns the signed shortest distance from a to b along a lap.
func (m *Manifest) WrapDelta(a, b float64) float64 {
	if m == nil || m.Length <= 0 {
		return b - a
	}
	d := math.Mod(b-a, m.Length)
	if d > m.Length/2 {
		d -= m.Length
	} else if d < -m.Length/2 {
		d += m.Length
	}
	return d
}

// segmentAt returns the segment index containing distance z and the fraction
// travelled through it.
func (m *Manifest) segmentAt(z float64) (int, float64) {
	if m == nil || len(m.Segments) == 0 {
		return -1, 0
	}
	d := m.LapDistance(z)
	start := 0.0
	for i, seg := range m.Segments {
		end := start + seg.Length
		if d < end || i == len(m.Segments)-1 {
			if seg.Length <= 0 {
				return i, 0
			}
			t := (d - start) / seg.Length
			return i, math.Max(0, math.Min(1, t))
		}
		start = end
	}
	return len(m.Segments) - 1, 1
}

// FrictionAt returns the friction multiplier at distance z. Friction is
// constant within a segment.
func (m *Manifest) FrictionAt(z float64) float64 {
	i, _ := m.segmentAt(z)
	if i < 0 {
		return 1
	}
	return m.Segments[i].FrictionMultiplier()
}

// ElevationAt interpolates elevation linearly across the segment span.
func (m *Manifest) ElevationAt(z float64) float64 {
	i, t := m.segmentAt(z)
	if i < 0 {
		return 0
	}
	start, end := m.Segments[i].Elevations()
	return start + (end-start)*t
}

// BankAngleAt interpolates bank in degrees from this segment's value toward the
// next segment's value.
func (m *Manifest) BankAngleAt(z float64) float64 {
	i, t := m.segmentAt(z)
	if i < 0 {
		return 0
	}
	next := m.Segments[(i+1)%len(m.Segments)].Bank
	bank := m.Segments[i].Bank + (next-m.Segments[i].Bank)*t
	return math.Max(-MaxBankDegrees, math.Min(MaxBankDegrees, bank))
}

// ClampLateral keeps x within the track walls and reports wall contact.
func (m *Manifest) ClampLateral(x, margin float64) (float64, bool) {
	if m == nil || m.Width <= 0 {
		return x, false
	}
	limit := m.Width/2 - margin
	if limit < 0 {
		limit = 0
	}
	switch {
	case x > limit:
		return limit, true
	case x < -limit:
		return -limit, true
	default:
		return x, false
	}
}
