package track

import "time"

// CheckpointMark records one validated checkpoint crossing.
type CheckpointMark struct {
	Index int
	At    time.Time
}

// Progress is the lap and checkpoint state of one car.
type Progress struct {
	// Lap counts completed laps.
	Lap int
	// CheckpointIndex is the last validated checkpoint of the current lap, or
	// -1 before the first one.
	CheckpointIndex int
	Completed       []CheckpointMark
	// Distance is cumulative race distance; negative while behind the start
	// line on the grid.
	Distance   float64
	FinishedAt time.Time
}

// NewProgress returns progress for a car that has not crossed any checkpoint.
func NewProgress() Progress {
	return Progress{CheckpointIndex: -1}
}

// Finished reports whether the car has finished the race.
func (p *Progress) Finished() bool {
	return !p.FinishedAt.IsZero()
}

// Update describes what one AdvanceRaceProgress call changed.
type Update struct {
	// Checkpoint is the index validated by this call, or -1.
	Checkpoint   int
	LapCompleted bool
	// WrapIgnored is set when the lap line was crossed without the final
	// checkpoint of the lap validated.
	WrapIgnored bool
	// Finished is the race-finished state after the call (lap >= laps).
	Finished     bool
	JustFinished bool
}

// AdvanceRaceProgress moves p along the track from prev to next, both raw
// track coordinates. At most one checkpoint is validated per call and only
// the next expected one can be. A lap counts only when the lap line is crossed
// forwards with the final checkpoint already validated. laps <= 0 uses the
// manifest lap count.
func AdvanceRaceProgress(p *Progress, prev, next float64, m *Manifest, laps int, now time.Time) Update {
	update := Update{Checkpoint: -1}
	if p == nil || m == nil || m.Length <= 0 || len(m.Checkpoints) == 0 {
		return update
	}
	if laps <= 0 {
		laps = m.Laps
	}
	if p.Finished() {
		update.Finished = true
		return update
	}
	if !finite(prev) || !finite(next) {
		return update
	}

	forward := next > prev
	lapPrev := m.LapDistance(prev)
	lapNext := m.LapDistance(next)
	wrapped := forward && lapNext < lapPrev

	if wrapped {
		if p.CheckpointIndex == m.LastCheckpoint() {
			p.Lap++
			p.CheckpointIndex = -1
			p.Completed = p.Completed[:0]
			update.LapCompleted = true
		} else {
			update.WrapIgnored = true
		}
	}

	if forward && p.Lap < laps {
		expected := p.CheckpointIndex + 1
		if expected < len(m.Checkpoints) && crossed(m.Checkpoints[expected], lapPrev, lapNext, wrapped) {
			p.CheckpointIndex = expected
			p.Completed = append(p.Completed, CheckpointMark{Index: expected, At: now})
			update.Checkpoint = expected
		}
	}

	p.Distance = float64(p.Lap)*m.Length + lapNext
	if p.CheckpointIndex < 0 && p.Lap < laps {
		p.Distance -= m.Length
	}

	if p.Lap >= laps {
		update.Finished = true
		if !p.Finished() {
			p.FinishedAt = now
			update.JustFinished = true
		}
	}
	return update
}

// crossed reports whether a forward move from lapPrev to lapNext passed cp.
func crossed(cp, lapPrev, lapNext float64, wrapped bool) bool {
	if wrapped {
		return cp > lapPrev || cp <= lapNext
	}
	return cp > lapPrev && cp <= lapNext
}
