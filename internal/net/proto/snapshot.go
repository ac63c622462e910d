package proto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"driftrace/internal/sim"
)

// Tuple lengths of the positional snapshot layout.
const (
	snapshotFields   = 7
	raceFields       = 5
	playerFields     = 16
	pickupFields     = 6
	projectileFields = 5
)

// SnapshotTuple flattens a snapshot into its array-of-arrays wire layout:
//
//	[seq, serverTimeMs, race, players, hazards, powerups, projectiles]
func SnapshotTuple(s sim.RoomSnapshot) []any {
	players := make([]any, 0, len(s.Players))
	for _, p := range s.Players {
		players = append(players, []any{
			p.ID, p.Vehicle, p.X, p.Y, p.Z, p.Yaw, p.Speed,
			p.Lap, p.Checkpoint, p.Rank, p.DriftPhase, p.DriftTier,
			p.EffectMask, p.Nitro, p.FinishedAtMs, p.LastInputSeq,
		})
	}
	projectiles := make([]any, 0, len(s.Projectiles))
	for _, p := range s.Projectiles {
		projectiles = append(projectiles, []any{p.ID, p.OwnerID, p.X, p.Z, p.Yaw})
	}
	return []any{
		s.Seq,
		s.ServerTimeMs,
		[]any{string(s.Race.Status), s.Race.TrackID, s.Race.Laps, s.Race.WinnerID, s.Race.RaceStartMs},
		players,
		pickupTuples(s.Hazards),
		pickupTuples(s.Powerups),
		projectiles,
	}
}

func pickupTuples(pickups []sim.PickupState) []any {
	out := make([]any, 0, len(pickups))
	for _, p := range pickups {
		active := 0
		if p.Active {
			active = 1
		}
		out = append(out, []any{p.ID, p.Type, p.X, p.Z, p.Radius, active})
	}
	return out
}

// EncodeSnapshot renders the positional layout as JSON.
func EncodeSnapshot(s sim.RoomSnapshot) ([]byte, error) {
	return json.Marshal(SnapshotTuple(s))
}

// DecodeSnapshot is the exact inverse of EncodeSnapshot.
func DecodeSnapshot(data []byte) (sim.RoomSnapshot, error) {
	var tuple []any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&tuple); err != nil {
		return sim.RoomSnapshot{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return SnapshotFromTuple(tuple)
}

// SnapshotFromTuple rebuilds a snapshot from its positional layout as decoded
// by either codec.
func SnapshotFromTuple(tuple []any) (sim.RoomSnapshot, error) {
	var r tupleReader
	var s sim.RoomSnapshot
	if len(tuple) != snapshotFields {
		return s, fmt.Errorf("%w: snapshot has %d fields, want %d", ErrMalformed, len(tuple), snapshotFields)
	}
	s.Seq = r.u64(tuple[0])
	s.ServerTimeMs = r.i64(tuple[1])

	race := r.array(tuple[2], raceFields)
	if len(race) == raceFields {
		s.Race = sim.RaceState{
			Status:      sim.Status(r.str(race[0])),
			TrackID:     r.str(race[1]),
			Laps:        int(r.i64(race[2])),
			WinnerID:    r.str(race[3]),
			RaceStartMs: r.i64(race[4]),
		}
	}

	for _, raw := range r.array(tuple[3], -1) {
		p := r.array(raw, playerFields)
		if len(p) != playerFields {
			break
		}
		s.Players = append(s.Players, sim.PlayerState{
			ID:           r.str(p[0]),
			Vehicle:      r.str(p[1]),
			X:            r.f64(p[2]),
			Y:            r.f64(p[3]),
			Z:            r.f64(p[4]),
			Yaw:          r.f64(p[5]),
			Speed:        r.f64(p[6]),
			Lap:          int(r.i64(p[7])),
			Checkpoint:   int(r.i64(p[8])),
			Rank:         int(r.i64(p[9])),
			DriftPhase:   int(r.i64(p[10])),
			DriftTier:    int(r.i64(p[11])),
			EffectMask:   uint32(r.u64(p[12])),
			Nitro:        int(r.i64(p[13])),
			FinishedAtMs: r.i64(p[14]),
			LastInputSeq: r.u64(p[15]),
		})
	}
	s.Hazards = r.pickups(tuple[4])
	s.Powerups = r.pickups(tuple[5])
	for _, raw := range r.array(tuple[6], -1) {
		p := r.array(raw, projectileFields)
		if len(p) != projectileFields {
			break
		}
		s.Projectiles = append(s.Projectiles, sim.ProjectileState{
			ID:      r.str(p[0]),
			OwnerID: r.str(p[1]),
			X:       r.f64(p[2]),
			Z:       r.f64(p[3]),
			Yaw:     r.f64(p[4]),
		})
	}
	if r.err != nil {
		return sim.RoomSnapshot{}, r.err
	}
	if s.Players == nil {
		s.Players = []sim.PlayerState{}
	}
	if s.Projectiles == nil {
		s.Projectiles = []sim.ProjectileState{}
	}
	return s, nil
}

// tupleReader converts loosely typed decoded values, keeping the first error.
type tupleReader struct {
	err error
}

func (r *tupleReader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: "+format, append([]any{ErrMalformed}, args...)...)
	}
}

func (r *tupleReader) pickups(v any) []sim.PickupState {
	out := []sim.PickupState{}
	for _, raw := range r.array(v, -1) {
		p := r.array(raw, pickupFields)
		if len(p) != pickupFields {
			break
		}
		out = append(out, sim.PickupState{
			ID:     r.str(p[0]),
			Type:   r.str(p[1]),
			X:      r.f64(p[2]),
			Z:      r.f64(p[3]),
			Radius: r.f64(p[4]),
			Active: r.i64(p[5]) != 0,
		})
	}
	return out
}

// array returns v as a slice. want < 0 accepts any length.
func (r *tupleReader) array(v any, want int) []any {
	if r.err != nil {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		r.fail("expected array, got %T", v)
		return nil
	}
	if want >= 0 && len(arr) != want {
		r.fail("array has %d fields, want %d", len(arr), want)
		return nil
	}
	return arr
}

func (r *tupleReader) str(v any) string {
	s, ok := v.(string)
	if !ok && r.err == nil {
		r.fail("expected string, got %T", v)
	}
	return s
}

func (r *tupleReader) f64(v any) float64 {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			r.fail("bad number %q", n)
		}
		return f
	case float64:
		return n
	case float32:
		return float64(n)
	default:
		if i, ok := integer(v); ok {
			return float64(i)
		}
		if u, ok := unsigned(v); ok {
			return float64(u)
		}
		r.fail("expected number, got %T", v)
		return 0
	}
}

func (r *tupleReader) i64(v any) int64 {
	if n, ok := v.(json.Number); ok {
		i, err := n.Int64()
		if err != nil {
			r.fail("bad integer %q", n)
		}
		return i
	}
	if i, ok := integer(v); ok {
		return i
	}
	if u, ok := unsigned(v); ok && u <= math.MaxInt64 {
		return int64(u)
	}
	if f, ok := v.(float64); ok && f == math.Trunc(f) {
		return int64(f)
	}
	r.fail("expected integer, got %T", v)
	return 0
}

func (r *tupleReader) u64(v any) uint64 {
	if n, ok := v.(json.Number); ok {
		u, err := strconv.ParseUint(n.String(), 10, 64)
		if err != nil {
			r.fail("bad unsigned %q", n)
		}
		return u
	}
	if u, ok := unsigned(v); ok {
		return u
	}
	if i, ok := integer(v); ok && i >= 0 {
		return uint64(i)
	}
	if f, ok := v.(float64); ok && f >= 0 && f == math.Trunc(f) {
		return uint64(f)
	}
	r.fail("expected unsigned integer, got %T", v)
	return 0
}

func integer(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func unsigned(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	}
	return 0, false
}
