package proto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"driftrace/internal/sim"
)

// Encoding names an outbound wire encoding negotiated on join.
type Encoding string

const (
	EncodingJSON    Encoding = "json"
	EncodingMsgpack Encoding = "msgpack"
)

// ParseEncoding maps a join option onto an Encoding, defaulting to JSON.
func ParseEncoding(name string) Encoding {
	if Encoding(strings.ToLower(strings.TrimSpace(name))) == EncodingMsgpack {
		return EncodingMsgpack
	}
	return EncodingJSON
}

// Codec serialises server messages. Binary codecs travel in binary websocket
// frames, the rest in text frames.
type Codec interface {
	Encoding() Encoding
	Binary() bool
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	// SplitEnvelope returns the type and raw payload of a framed message.
	SplitEnvelope(data []byte) (string, []byte, error)
}

// CodecFor returns the codec for enc.
func CodecFor(enc Encoding) Codec {
	if enc == EncodingMsgpack {
		return msgpackCodec{}
	}
	return jsonCodec{}
}

type outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type jsonCodec struct{}

func (jsonCodec) Encoding() Encoding { return EncodingJSON }
func (jsonCodec) Binary() bool       { return false }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal keeps numbers as json.Number so integer fields survive exactly.
func (jsonCodec) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func (c jsonCodec) SplitEnvelope(data []byte) (string, []byte, error) {
	var env Envelope
	if err := c.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return env.Type, env.Payload, nil
}

type msgpackCodec struct{}

func (msgpackCodec) Encoding() Encoding { return EncodingMsgpack }
func (msgpackCodec) Binary() bool       { return true }

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

func (c msgpackCodec) SplitEnvelope(data []byte) (string, []byte, error) {
	var env struct {
		Type    string             `json:"type"`
		Payload msgpack.RawMessage `json:"payload"`
	}
	if err := c.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return env.Type, env.Payload, nil
}

// EncodeMessage frames payload as {type, payload}.
func EncodeMessage(c Codec, msgType string, payload any) ([]byte, error) {
	return c.Marshal(outbound{Type: msgType, Payload: payload})
}

// EncodeSnapshotMessage frames a snapshot in its positional layout.
func EncodeSnapshotMessage(c Codec, snap sim.RoomSnapshot) ([]byte, error) {
	return EncodeMessage(c, TypeSnapshot, SnapshotTuple(snap))
}

// ServerMessage is a decoded server frame. Exactly one payload is set.
type ServerMessage struct {
	Type      string
	Joined    *RoomJoined
	Snapshot  *sim.RoomSnapshot
	Event     *RaceEvent
	JoinError *JoinError
}

// DecodeServerMessage decodes a frame produced by EncodeMessage.
func DecodeServerMessage(c Codec, data []byte) (ServerMessage, error) {
	msgType, raw, err := c.SplitEnvelope(data)
	if err != nil {
		return ServerMessage{}, err
	}
	msg := ServerMessage{Type: msgType}
	switch msgType {
	case TypeSnapshot:
		var tuple []any
		if err := c.Unmarshal(raw, &tuple); err != nil {
			return msg, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		snap, err := SnapshotFromTuple(tuple)
		if err != nil {
			return msg, err
		}
		msg.Snapshot = &snap
	case TypeRoomJoined:
		var joined RoomJoined
		if err := c.Unmarshal(raw, &joined); err != nil {
			return msg, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		msg.Joined = &joined
	case TypeRaceEvent:
		var event RaceEvent
		if err := c.Unmarshal(raw, &event); err != nil {
			return msg, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		msg.Event = &event
	case TypeJoinError:
		var joinErr JoinError
		if err := c.Unmarshal(raw, &joinErr); err != nil {
			return msg, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		msg.JoinError = &joinErr
	default:
		return msg, fmt.Errorf("%w: %q", ErrUnexpectedType, msgType)
	}
	return msg, nil
}
