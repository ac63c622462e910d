package logging

import (
	"context"
	"maps"
	"slices"
	"time"
)

// EventType names an event, e.g. "race.lap_completed".
type EventType string

type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

type EntityKind string

const (
	EntityKindPlayer     EntityKind = "player"
	EntityKindRoom       EntityKind = "room"
	EntityKindConnection EntityKind = "connection"
)

// Event categories, one per helper package.
const (
	CategoryRace       = "race"
	CategoryNetwork    = "network"
	CategorySimulation = "simulation"
	CategoryLifecycle  = "lifecycle"
)

// EntityRef points at the subject of an event.
type EntityRef struct {
	ID   string     `json:"id"`
	Kind EntityKind `json:"kind"`
}

func PlayerRef(id string) EntityRef { return EntityRef{ID: id, Kind: EntityKindPlayer} }
func RoomRef(id string) EntityRef   { return EntityRef{ID: id, Kind: EntityKindRoom} }

// Event is one observation of race state. Publishing never feeds back into
// the simulation.
type Event struct {
	Type     EventType
	Tick     uint64
	Time     time.Time
	RoomID   string
	Actor    EntityRef
	Targets  []EntityRef
	Severity Severity
	Category string
	Payload  any
	Extra    map[string]any
}

// Clone returns a copy that shares no slices or maps with e. Payload is
// shared; helpers only publish value payloads.
func (e Event) Clone() Event {
	e.Targets = slices.Clone(e.Targets)
	e.Extra = maps.Clone(e.Extra)
	return e
}

// withDefaults returns e with every key of fields it does not already carry.
func (e Event) withDefaults(fields map[string]any) Event {
	if len(fields) == 0 {
		return e
	}
	e = e.Clone()
	if e.Extra == nil {
		e.Extra = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		if _, ok := e.Extra[k]; !ok {
			e.Extra[k] = v
		}
	}
	return e
}

type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event Event)

func (f PublisherFunc) Publish(ctx context.Context, event Event) {
	if f != nil {
		f(ctx, event)
	}
}

// OrNop returns p, or a publisher that discards everything when p is nil.
func OrNop(p Publisher) Publisher {
	if p == nil {
		return PublisherFunc(nil)
	}
	return p
}

// WithFields decorates p so every event carries fields in Extra. Fields
// already present on an event win.
func WithFields(p Publisher, fields map[string]any) Publisher {
	p = OrNop(p)
	if len(fields) == 0 {
		return p
	}
	fields = maps.Clone(fields)
	return PublisherFunc(func(ctx context.Context, event Event) {
		p.Publish(ctx, event.withDefaults(fields))
	})
}
