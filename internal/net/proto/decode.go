package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultMaxPayloadBytes = 1024
	DefaultMaxJoinBytes    = 2048
)

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// ValidRoomID reports whether id is an acceptable room id.
func ValidRoomID(id string) bool {
	return roomIDPattern.MatchString(id)
}

// Envelope is the outer frame of every inbound message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decoder is the inbound validation gate. Nothing reaches a room without
// passing through it. Safe for concurrent use.
type Decoder struct {
	maxPayloadBytes int
	maxJoinBytes    int
	validate        *validator.Validate
}

// NewDecoder builds a decoder with byte limits for regular frames and join
// frames. Non-positive limits use the defaults.
func NewDecoder(maxPayloadBytes, maxJoinBytes int) *Decoder {
	if maxPayloadBytes <= 0 {
		maxPayloadBytes = DefaultMaxPayloadBytes
	}
	if maxJoinBytes <= 0 {
		maxJoinBytes = DefaultMaxJoinBytes
	}
	v := validator.New()
	_ = v.RegisterValidation("roomid", func(fl validator.FieldLevel) bool {
		return ValidRoomID(fl.Field().String())
	})
	return &Decoder{maxPayloadBytes: maxPayloadBytes, maxJoinBytes: maxJoinBytes, validate: v}
}

// MaxPayloadBytes returns the limit applied to non-join frames.
func (d *Decoder) MaxPayloadBytes() int { return d.maxPayloadBytes }

// DecodeJoin decodes the handshake frame. The frame must be a join.
func (d *Decoder) DecodeJoin(data []byte) (JoinMessage, error) {
	var msg JoinMessage
	env, err := d.envelope(data, d.maxJoinBytes)
	if err != nil {
		return msg, err
	}
	if env.Type != TypeJoin {
		return msg, fmt.Errorf("%w: got %q, want %q", ErrUnexpectedType, env.Type, TypeJoin)
	}
	if err := decodeStrict(env.Payload, &msg); err != nil {
		return msg, err
	}
	if msg.Version != Version {
		return msg, fmt.Errorf("%w: %d", ErrUnsupportedProtocol, msg.Version)
	}
	if !ValidRoomID(msg.RoomID) {
		return msg, fmt.Errorf("%w: %q", ErrInvalidRoomID, msg.RoomID)
	}
	if err := d.validate.Struct(msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return msg, nil
}

// Decode decodes an in-session frame.
func (d *Decoder) Decode(data []byte) (Inbound, error) {
	env, err := d.envelope(data, d.maxPayloadBytes)
	if err != nil {
		return Inbound{}, err
	}
	in := Inbound{Type: env.Type}
	switch env.Type {
	case TypeInput:
		var msg InputMessage
		if err := decodeStrict(env.Payload, &msg); err != nil {
			return in, err
		}
		if msg.Version != Version {
			return in, fmt.Errorf("%w: %d", ErrUnsupportedProtocol, msg.Version)
		}
		if err := d.validate.Struct(msg); err != nil {
			return in, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		in.Input = &msg
	case TypeAbility:
		var msg AbilityMessage
		if err := decodeStrict(env.Payload, &msg); err != nil {
			return in, err
		}
		if err := d.validate.Struct(msg); err != nil {
			return in, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		in.Ability = &msg
	case TypeRestart:
		var msg RestartMessage
		if len(env.Payload) > 0 && !bytes.Equal(bytes.TrimSpace(env.Payload), []byte("null")) {
			if err := decodeStrict(env.Payload, &msg); err != nil {
				return in, err
			}
		}
		in.Restart = &msg
	default:
		return in, fmt.Errorf("%w: %q", ErrUnexpectedType, env.Type)
	}
	return in, nil
}

func (d *Decoder) envelope(data []byte, limit int) (Envelope, error) {
	var env Envelope
	if len(data) > limit {
		return env, fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(data), limit)
	}
	if err := decodeStrict(data, &env); err != nil {
		return env, err
	}
	if env.Type == "" {
		return env, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env, nil
}

// decodeStrict decodes exactly one JSON value into v, rejecting unknown
// fields and trailing data.
func decodeStrict(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: empty", ErrMalformed)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data", ErrMalformed)
	}
	return nil
}
