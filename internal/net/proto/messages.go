package proto

import (
	"errors"

	"driftrace/internal/sim"
)

const (
	// Version tracks the wire-protocol revision expected by clients.
	Version = 1
)

// Client message type identifiers.
const (
	TypeJoin    = "join"
	TypeInput   = "input"
	TypeAbility = "ability"
	TypeRestart = "restart"
)

// Server message type identifiers.
const (
	TypeRoomJoined = "room_joined"
	TypeSnapshot   = "server_snapshot"
	TypeRaceEvent  = "race_event"
	TypeJoinError  = "join_error"
)

var (
	ErrPayloadTooLarge     = errors.New("proto: payload too large")
	ErrMalformed           = errors.New("proto: malformed payload")
	ErrUnsupportedProtocol = errors.New("proto: unsupported protocol version")
	ErrInvalidRoomID       = errors.New("proto: invalid room id")
	ErrUnexpectedType      = errors.New("proto: unexpected message type")
)

// Join error reasons sent to clients.
const (
	ReasonInvalidPayload      = "invalid_payload"
	ReasonPayloadTooLarge     = "payload_too_large"
	ReasonUnsupportedProtocol = "unsupported_protocol"
	ReasonInvalidRoomID       = "invalid_room_id"
	ReasonRoomFull            = "room_full"
	ReasonDuplicatePlayer     = "duplicate_player"
	ReasonServerError         = "server_error"
)

// Reason maps a decode or join error onto its machine-readable reason.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPayloadTooLarge):
		return ReasonPayloadTooLarge
	case errors.Is(err, ErrUnsupportedProtocol):
		return ReasonUnsupportedProtocol
	case errors.Is(err, ErrInvalidRoomID):
		return ReasonInvalidRoomID
	case errors.Is(err, sim.ErrRoomFull):
		return ReasonRoomFull
	case errors.Is(err, sim.ErrDuplicatePlayer):
		return ReasonDuplicatePlayer
	case errors.Is(err, ErrMalformed), errors.Is(err, ErrUnexpectedType):
		return ReasonInvalidPayload
	default:
		return ReasonServerError
	}
}

// JoinMessage opens a session in a room.
type JoinMessage struct {
	Version  int    `json:"version" jsonschema:"required,minimum=1"`
	RoomID   string `json:"roomId" validate:"roomid" jsonschema:"required,minLength=1,maxLength=32,pattern=^[A-Za-z0-9_-]+$"`
	Name     string `json:"name" validate:"max=32" jsonschema:"maxLength=32"`
	Vehicle  string `json:"vehicle,omitempty" validate:"omitempty,max=32" jsonschema:"maxLength=32"`
	Color    string `json:"color,omitempty" validate:"omitempty,hexcolor" jsonschema:"maxLength=9"`
	Track    string `json:"track,omitempty" validate:"omitempty,max=32" jsonschema:"maxLength=32"`
	Encoding string `json:"encoding,omitempty" validate:"omitempty,oneof=json msgpack" jsonschema:"enum=json,enum=msgpack"`
}

// InputMessage is one frame of controls.
type InputMessage struct {
	Version     int     `json:"version" jsonschema:"required,minimum=1"`
	Seq         uint64  `json:"seq" validate:"gte=1" jsonschema:"required,minimum=1"`
	ClientTime  int64   `json:"clientTime"`
	Throttle    float64 `json:"throttle" validate:"gte=-1,lte=1" jsonschema:"minimum=-1,maximum=1"`
	Steering    float64 `json:"steering" validate:"gte=-1,lte=1" jsonschema:"minimum=-1,maximum=1"`
	Brake       bool    `json:"brake"`
	Boost       bool    `json:"boost"`
	Handbrake   bool    `json:"handbrake"`
	Cruise      bool    `json:"cruise"`
	AckSnapshot uint64  `json:"ackSnapshot"`
}

// AbilityMessage requests an ability activation.
type AbilityMessage struct {
	AbilityID string `json:"abilityId" validate:"required,max=32" jsonschema:"required,maxLength=32"`
	Seq       uint64 `json:"seq" validate:"gte=1" jsonschema:"required,minimum=1"`
	TargetID  string `json:"targetId,omitempty" validate:"omitempty,max=64" jsonschema:"maxLength=64"`
}

// RestartMessage requests a new race once the current one has finished.
type RestartMessage struct{}

// Inbound is a decoded and validated client message. Exactly one of the
// payload pointers is set, matching Type.
type Inbound struct {
	Type    string
	Join    *JoinMessage
	Input   *InputMessage
	Ability *AbilityMessage
	Restart *RestartMessage
}

// RoomJoined confirms a join.
type RoomJoined struct {
	PlayerID   string            `json:"playerId"`
	RoomID     string            `json:"roomId"`
	Seed       string            `json:"seed"`
	Version    int               `json:"version"`
	TrackID    string            `json:"trackId"`
	Laps       int               `json:"laps"`
	SimHz      int               `json:"simHz"`
	SnapshotHz int               `json:"snapshotHz"`
	MaxInputHz int               `json:"maxInputHz"`
	Roster     []sim.RosterEntry `json:"roster"`
	Snapshot   []any             `json:"snapshot,omitempty"`
}

// RaceEvent carries one room event to clients.
type RaceEvent struct {
	Kind         string         `json:"kind"`
	PlayerID     string         `json:"playerId,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	ServerTimeMs int64          `json:"serverTimeMs"`
}

// NewRaceEvent converts a room event for the wire.
func NewRaceEvent(event sim.Event) RaceEvent {
	return RaceEvent{
		Kind:         string(event.Kind),
		PlayerID:     event.PlayerID,
		Data:         event.Data,
		ServerTimeMs: event.At.UnixMilli(),
	}
}

// JoinError rejects a join.
type JoinError struct {
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
	Version int    `json:"version"`
}

// NewJoinError builds the rejection for err.
func NewJoinError(err error) JoinError {
	msg := JoinError{Reason: Reason(err), Version: Version}
	if err != nil {
		msg.Message = err.Error()
	}
	return msg
}
