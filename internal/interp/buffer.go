// Package interp buffers timestamped remote states and samples them at a
// delayed render time.
package interp

// DefaultCapacity holds roughly one second of 20 Hz snapshots.
const DefaultCapacity = 20

// Sample is one received state of a remote entity.
type Sample[T any] struct {
	Seq    uint64
	TimeMs float64
	State  T
}

// LerpFunc blends a toward b by fraction f in [0, 1].
type LerpFunc[T any] func(a, b T, f float64) T

// Buffer keeps samples sorted by time and never holds more than its capacity.
// It is not safe for concurrent use.
type Buffer[T any] struct {
	samples  []Sample[T]
	capacity int
	lerp     LerpFunc[T]
}

// NewBuffer returns an empty buffer. A non-positive capacity selects
// DefaultCapacity.
func NewBuffer[T any](capacity int, lerp LerpFunc[T]) *Buffer[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer[T]{
		samples:  make([]Sample[T], 0, capacity+1),
		capacity: capacity,
		lerp:     lerp,
	}
}

// Push inserts s in time order. Samples repeating a buffered sequence are
// ignored and Push reports false. When the buffer is over capacity the
// oldest sample is evicted.
func (b *Buffer[T]) Push(s Sample[T]) bool {
	for _, existing := range b.samples {
		if existing.Seq == s.Seq {
			return false
		}
	}

	// Most samples arrive in order, so the scan usually stops at the tail.
	idx := len(b.samples)
	for idx > 0 && b.samples[idx-1].TimeMs > s.TimeMs {
		idx--
	}
	b.samples = append(b.samples, Sample[T]{})
	copy(b.samples[idx+1:], b.samples[idx:])
	b.samples[idx] = s

	if overflow := len(b.samples) - b.capacity; overflow > 0 {
		copy(b.samples, b.samples[overflow:])
		b.samples = b.samples[:len(b.samples)-overflow]
	}
	return true
}

// At returns the state at render time t. Times outside the buffered window
// clamp to the nearest sample; the boolean is false only when the buffer is
// empty.
func (b *Buffer[T]) At(t float64) (T, bool) {
	var zero T
	n := len(b.samples)
	if n == 0 {
		return zero, false
	}
	if t <= b.samples[0].TimeMs {
		return b.samples[0].State, true
	}
	if t >= b.samples[n-1].TimeMs {
		return b.samples[n-1].State, true
	}
	for i := 1; i < n; i++ {
		next := b.samples[i]
		if t > next.TimeMs {
			continue
		}
		prev := b.samples[i-1]
		span := next.TimeMs - prev.TimeMs
		if span <= 0 || b.lerp == nil {
			return next.State, true
		}
		return b.lerp(prev.State, next.State, (t-prev.TimeMs)/span), true
	}
	return b.samples[n-1].State, true
}

// Latest returns the newest sample.
func (b *Buffer[T]) Latest() (Sample[T], bool) {
	if len(b.samples) == 0 {
		return Sample[T]{}, false
	}
	return b.samples[len(b.samples)-1], true
}

// Samples returns a copy of the buffered samples, oldest first.
func (b *Buffer[T]) Samples() []Sample[T] {
	out := make([]Sample[T], len(b.samples))
	copy(out, b.samples)
	return out
}

func (b *Buffer[T]) Len() int      { return len(b.samples) }
func (b *Buffer[T]) Capacity() int { return b.capacity }

// Reset drops every sample.
func (b *Buffer[T]) Reset() {
	b.samples = b.samples[:0]
}

// Lerp interpolates two scalars.
func Lerp(a, b, f float64) float64 {
	return a + (b-a)*f
}
