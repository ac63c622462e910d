package room

import (
	"context"
	"errors"
	"sort"
	"sync"

	"driftrace/internal/sim"
	"driftrace/internal/telemetry"
	"driftrace/logging"
)

// RoomInfo is returned by the API for the room list.
type RoomInfo struct {
	ID      string `json:"id"`
	TrackID string `json:"trackId"`
	Players int    `json:"players"`
}

// Manager holds rooms by id. Rooms are created on first join and removed
// when the last player leaves.
type Manager struct {
	cfg     Config
	deps    sim.Deps
	clock   logging.Clock
	metrics telemetry.Metrics

	mu     sync.Mutex
	rooms  map[string]*Runner
	closed bool
}

// NewManager builds an empty registry. Every room it creates shares deps.
func NewManager(cfg Config, deps sim.Deps, clock logging.Clock) *Manager {
	return &Manager{
		cfg:     cfg.normalized(),
		deps:    deps,
		clock:   clock,
		metrics: telemetry.OrNop(deps.Metrics),
		rooms:   make(map[string]*Runner),
	}
}

// Config returns the normalized loop configuration shared by every room.
func (m *Manager) Config() Config { return m.cfg }

// Join places a player in roomID, creating the room on trackID if it does not
// exist yet. The track is ignored for rooms that already exist.
func (m *Manager) Join(ctx context.Context, roomID, trackID string, req sim.JoinRequest, conn Conn) (*Runner, string, error) {
	// A room can close between lookup and join; retry once on a fresh room.
	for attempt := 0; attempt < 2; attempt++ {
		r, err := m.getOrCreate(roomID, trackID)
		if err != nil {
			return nil, "", err
		}
		playerID, err := r.Join(ctx, req, conn)
		if errors.Is(err, ErrRoomClosed) {
			continue
		}
		if err != nil {
			r.reapIfEmpty()
			return nil, "", err
		}
		return r, playerID, nil
	}
	return nil, "", ErrRoomClosed
}

// Room returns the running room with id.
func (m *Manager) Room(id string) (*Runner, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	return r, ok
}

// List returns every active room ordered by id.
func (m *Manager) List() []RoomInfo {
	m.mu.Lock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for id, r := range m.rooms {
		out = append(out, RoomInfo{ID: id, TrackID: r.TrackID(), Players: r.Players()})
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close stops every room and refuses new joins.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	runners := make([]*Runner, 0, len(m.rooms))
	for _, r := range m.rooms {
		runners = append(runners, r)
	}
	m.mu.Unlock()

	for _, r := range runners {
		r.Close()
	}
}

func (m *Manager) getOrCreate(id, trackID string) (*Runner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrRoomClosed
	}
	if r, ok := m.rooms[id]; ok {
		select {
		case <-r.Done():
			delete(m.rooms, id)
		default:
			return r, nil
		}
	}
	r, err := newRunner(id, trackID, m.cfg, m.deps, m.clock, runnerHooks{
		onClosed: m.removeRoom,
		onChange: m.refreshGauges,
	})
	if err != nil {
		return nil, err
	}
	m.rooms[id] = r
	m.storeGaugesLocked()
	r.start()
	return r, nil
}

func (m *Manager) removeRoom(r *Runner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.rooms[r.ID()]; ok && current == r {
		delete(m.rooms, r.ID())
	}
	m.storeGaugesLocked()
}

func (m *Manager) refreshGauges() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeGaugesLocked()
}

func (m *Manager) storeGaugesLocked() {
	players := 0
	for _, r := range m.rooms {
		players += r.Players()
	}
	m.metrics.Store(telemetry.KeyActiveRooms, uint64(len(m.rooms)))
	m.metrics.Store(telemetry.KeyActivePlayers, uint64(players))
}
