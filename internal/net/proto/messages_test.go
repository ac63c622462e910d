package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"driftrace/internal/drift"
	"driftrace/internal/motion"
	"driftrace/internal/sim"
	"driftrace/internal/track"
)

func frame(msgType, payload string) []byte {
	return []byte(fmt.Sprintf(`{"type":%q,"payload":%s}`, msgType, payload))
}

func TestDecodeJoinAcceptsValidHandshake(t *testing.T) {
	d := NewDecoder(0, 0)
	msg, err := d.DecodeJoin(frame(TypeJoin, `{"version":1,"roomId":"lobby-1","name":"ana","vehicle":"kart","color":"#ff8800","encoding":"msgpack"}`))
	if err != nil {
		t.Fatalf("decode join: %v", err)
	}
	if msg.RoomID != "lobby-1" || msg.Vehicle != "kart" || ParseEncoding(msg.Encoding) != EncodingMsgpack {
		t.Fatalf("unexpected join %+v", msg)
	}
}

func TestDecodeJoinRejections(t *testing.T) {
	d := NewDecoder(256, 256)
	cases := []struct {
		name   string
		data   []byte
		err    error
		reason string
	}{
		{"too large", frame(TypeJoin, `{"version":1,"roomId":"a","name":"`+strings.Repeat("x", 300)+`"}`), ErrPayloadTooLarge, ReasonPayloadTooLarge},
		{"not json", []byte(`{"type":`), ErrMalformed, ReasonInvalidPayload},
		{"unknown field", frame(TypeJoin, `{"version":1,"roomId":"a","admin":true}`), ErrMalformed, ReasonInvalidPayload},
		{"unknown envelope field", []byte(`{"type":"join","payload":{"version":1,"roomId":"a"},"x":1}`), ErrMalformed, ReasonInvalidPayload},
		{"wrong type", frame(TypeInput, `{"version":1,"seq":1}`), ErrUnexpectedType, ReasonInvalidPayload},
		{"old version", frame(TypeJoin, `{"version":0,"roomId":"a"}`), ErrUnsupportedProtocol, ReasonUnsupportedProtocol},
		{"future version", frame(TypeJoin, `{"version":2,"roomId":"a"}`), ErrUnsupportedProtocol, ReasonUnsupportedProtocol},
		{"empty room", frame(TypeJoin, `{"version":1,"roomId":""}`), ErrInvalidRoomID, ReasonInvalidRoomID},
		{"room with spaces", frame(TypeJoin, `{"version":1,"roomId":"a b"}`), ErrInvalidRoomID, ReasonInvalidRoomID},
		{"room too long", frame(TypeJoin, `{"version":1,"roomId":"`+strings.Repeat("a", 33)+`"}`), ErrInvalidRoomID, ReasonInvalidRoomID},
		{"bad encoding", frame(TypeJoin, `{"version":1,"roomId":"a","encoding":"xml"}`), ErrMalformed, ReasonInvalidPayload},
		{"bad color", frame(TypeJoin, `{"version":1,"roomId":"a","color":"red"}`), ErrMalformed, ReasonInvalidPayload},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.DecodeJoin(tc.data)
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
			if got := Reason(err); got != tc.reason {
				t.Fatalf("Reason = %q, want %q", got, tc.reason)
			}
		})
	}
}

func TestPayloadLimitCountsBytes(t *testing.T) {
	// Each emoji is four bytes; the limit is on bytes, not runes.
	name := strings.Repeat("😀", 60)
	data := frame(TypeAbility, fmt.Sprintf(`{"abilityId":%q,"seq":1}`, name))
	d := NewDecoder(len(data)-1, 0)
	if _, err := d.Decode(data); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected byte limit to apply, got %v", err)
	}
}

func TestDecodeInput(t *testing.T) {
	d := NewDecoder(0, 0)
	in, err := d.Decode(frame(TypeInput, `{"version":1,"seq":7,"clientTime":123,"throttle":1,"steering":-0.5,"handbrake":true,"cruise":true,"ackSnapshot":4}`))
	if err != nil {
		t.Fatalf("decode input: %v", err)
	}
	if in.Type != TypeInput || in.Input == nil {
		t.Fatalf("expected input, got %+v", in)
	}
	want := InputMessage{Version: 1, Seq: 7, ClientTime: 123, Throttle: 1, Steering: -0.5, Handbrake: true, Cruise: true, AckSnapshot: 4}
	if *in.Input != want {
		t.Fatalf("input = %+v, want %+v", *in.Input, want)
	}

	rejects := map[string][]byte{
		"throttle out of range": frame(TypeInput, `{"version":1,"seq":1,"throttle":1.5}`),
		"zero seq":              frame(TypeInput, `{"version":1,"seq":0}`),
		"string steering":       frame(TypeInput, `{"version":1,"seq":1,"steering":"left"}`),
		"missing version":       frame(TypeInput, `{"seq":1}`),
		"trailing data":         append(frame(TypeInput, `{"version":1,"seq":1}`), []byte(`{}`)...),
		"unknown type":          frame("teleport", `{}`),
	}
	for name, data := range rejects {
		if _, err := d.Decode(data); err == nil {
			t.Fatalf("%s: expected rejection", name)
		}
	}
	if _, err := d.Decode(frame(TypeInput, `{"seq":1}`)); !errors.Is(err, ErrUnsupportedProtocol) {
		t.Fatalf("missing version should be unsupported, got %v", err)
	}
}

func TestDecodeAbilityAndRestart(t *testing.T) {
	d := NewDecoder(0, 0)
	in, err := d.Decode(frame(TypeAbility, `{"abilityId":"missile","seq":2,"targetId":"p2"}`))
	if err != nil || in.Ability == nil || in.Ability.TargetID != "p2" {
		t.Fatalf("unexpected ability decode %+v %v", in, err)
	}
	if _, err := d.Decode(frame(TypeAbility, `{"seq":2}`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("missing ability id should be malformed, got %v", err)
	}
	for _, payload := range []string{`{}`, `null`} {
		in, err := d.Decode(frame(TypeRestart, payload))
		if err != nil || in.Restart == nil {
			t.Fatalf("restart %s: %+v %v", payload, in, err)
		}
	}
	if in, err := d.Decode([]byte(`{"type":"restart"}`)); err != nil || in.Restart == nil {
		t.Fatalf("restart without payload: %+v %v", in, err)
	}
}

func testSnapshot(t *testing.T) sim.RoomSnapshot {
	t.Helper()
	vehicles, err := motion.DefaultCatalog()
	if err != nil {
		t.Fatalf("vehicles: %v", err)
	}
	tracks, err := track.DefaultCatalog()
	if err != nil {
		t.Fatalf("tracks: %v", err)
	}
	n := 0
	room, err := sim.NewRoom("snap", "", sim.DefaultConfig(), sim.Deps{
		Logger:   zerolog.Nop(),
		Vehicles: vehicles,
		Tracks:   tracks,
		Drift:    drift.DefaultConfig(),
		IDs:      func() string { n++; return fmt.Sprintf("id-%d", n) },
	})
	if err != nil {
		t.Fatalf("room: %v", err)
	}
	start := time.UnixMilli(1_700_000_000_123)
	for _, id := range []string{"p1", "p2", "p3"} {
		if _, err := room.AddPlayer(sim.JoinRequest{PlayerID: id, Vehicle: "muscle"}, start); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	now := start.Add(3 * time.Second)
	room.QueueInput("p1", sim.InputCommand{Seq: 1, Controls: motion.Controls{Throttle: 1, Steering: 0.7}}, now)
	room.QueueAbility("p2", sim.AbilityCommand{AbilityID: sim.AbilityMissile, Seq: 1, TargetID: "p1"}, now)
	for i := 0; i < 30; i++ {
		now = now.Add(time.Second / 60)
		room.Step(now, 1.0/60)
	}
	snap := room.Snapshot(now)
	if len(snap.Players) != 3 || len(snap.Hazards) == 0 {
		t.Fatalf("unexpected fixture snapshot %+v", snap)
	}
	return snap
}

func TestSnapshotEncodingIsExactInverse(t *testing.T) {
	snap := testSnapshot(t)
	data, err := EncodeSnapshot(snap)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.HasPrefix(string(data), fmt.Sprintf("[%d,%d,[", snap.Seq, snap.ServerTimeMs)) {
		t.Fatalf("expected positional layout, got %s", data[:40])
	}
	decoded, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(decoded, snap) {
		t.Fatalf("round trip mismatch\nwant %+v\ngot  %+v", snap, decoded)
	}
}

func TestSnapshotMessageRoundTripsThroughBothCodecs(t *testing.T) {
	snap := testSnapshot(t)
	for _, enc := range []Encoding{EncodingJSON, EncodingMsgpack} {
		codec := CodecFor(enc)
		data, err := EncodeSnapshotMessage(codec, snap)
		if err != nil {
			t.Fatalf("%s encode: %v", enc, err)
		}
		msg, err := DecodeServerMessage(codec, data)
		if err != nil {
			t.Fatalf("%s decode: %v", enc, err)
		}
		if msg.Type != TypeSnapshot || msg.Snapshot == nil {
			t.Fatalf("%s: expected snapshot, got %+v", enc, msg)
		}
		if !reflect.DeepEqual(*msg.Snapshot, snap) {
			t.Fatalf("%s round trip mismatch\nwant %+v\ngot  %+v", enc, snap, *msg.Snapshot)
		}
	}
}

func TestMsgpackIsSmallerThanKeyedJSON(t *testing.T) {
	snap := testSnapshot(t)
	keyed, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal keyed: %v", err)
	}
	positional, err := EncodeSnapshotMessage(CodecFor(EncodingJSON), snap)
	if err != nil {
		t.Fatalf("encode json: %v", err)
	}
	binary, err := EncodeSnapshotMessage(CodecFor(EncodingMsgpack), snap)
	if err != nil {
		t.Fatalf("encode msgpack: %v", err)
	}
	if len(positional) >= len(keyed) || len(binary) >= len(keyed) {
		t.Fatalf("positional layouts should beat keyed json: keyed=%d json=%d msgpack=%d", len(keyed), len(positional), len(binary))
	}
}

func TestDecodeSnapshotRejectsShortTuples(t *testing.T) {
	cases := []string{
		`[]`,
		`[1,2,["running","t",3,"",0],[],[],[]]`,
		`[1,2,["running","t",3,""],[],[],[],[]]`,
		`[1,2,["running","t",3,"",0],[["p1","sedan",0]],[],[],[]]`,
		`[1,2,["running","t",3,"",0],[],[["h","oil",0,0,1]],[],[]]`,
		`["x",2,["running","t",3,"",0],[],[],[],[]]`,
	}
	for _, data := range cases {
		if _, err := DecodeSnapshot([]byte(data)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", data, err)
		}
	}
}

func TestServerMessagesRoundTrip(t *testing.T) {
	joined := RoomJoined{
		PlayerID: "p1", RoomID: "lobby", Seed: "seed", Version: Version, TrackID: "harbor-loop", Laps: 3,
		SimHz: 60, SnapshotHz: 20, MaxInputHz: 60,
		Roster: []sim.RosterEntry{{ID: "p1", Name: "ana", Vehicle: "kart"}},
	}
	event := NewRaceEvent(sim.Event{Kind: sim.EventLap, PlayerID: "p1", Data: map[string]any{"lap": 2}, At: time.UnixMilli(5000)})
	joinErr := NewJoinError(fmt.Errorf("wrap: %w", ErrInvalidRoomID))
	if joinErr.Reason != ReasonInvalidRoomID {
		t.Fatalf("unexpected join error %+v", joinErr)
	}

	for _, enc := range []Encoding{EncodingJSON, EncodingMsgpack} {
		codec := CodecFor(enc)
		data, err := EncodeMessage(codec, TypeRoomJoined, joined)
		if err != nil {
			t.Fatalf("%s: %v", enc, err)
		}
		msg, err := DecodeServerMessage(codec, data)
		if err != nil || msg.Joined == nil || !reflect.DeepEqual(*msg.Joined, joined) {
			t.Fatalf("%s joined mismatch: %+v %v", enc, msg.Joined, err)
		}

		data, err = EncodeMessage(codec, TypeRaceEvent, event)
		if err != nil {
			t.Fatalf("%s: %v", enc, err)
		}
		msg, err = DecodeServerMessage(codec, data)
		if err != nil || msg.Event == nil || msg.Event.Kind != "lap" || msg.Event.ServerTimeMs != 5000 {
			t.Fatalf("%s event mismatch: %+v %v", enc, msg.Event, err)
		}

		data, err = EncodeMessage(codec, TypeJoinError, joinErr)
		if err != nil {
			t.Fatalf("%s: %v", enc, err)
		}
		msg, err = DecodeServerMessage(codec, data)
		if err != nil || msg.JoinError == nil || *msg.JoinError != joinErr {
			t.Fatalf("%s join error mismatch: %+v %v", enc, msg.JoinError, err)
		}
	}
}

func TestSchemasDescribeEveryInboundMessage(t *testing.T) {
	schemas := Schemas()
	for _, msgType := range []string{TypeJoin, TypeInput, TypeAbility, TypeRestart} {
		schema, ok := schemas[msgType]
		if !ok {
			t.Fatalf("missing schema for %s", msgType)
		}
		data, err := json.Marshal(schema)
		if err != nil {
			t.Fatalf("marshal %s schema: %v", msgType, err)
		}
		if !strings.Contains(string(data), `"payload"`) {
			t.Fatalf("%s schema lacks payload: %s", msgType, data)
		}
	}
	data, err := json.Marshal(Schema())
	if err != nil {
		t.Fatalf("marshal root schema: %v", err)
	}
	for _, field := range []string{`"roomId"`, `"throttle"`, `"abilityId"`} {
		if !strings.Contains(string(data), field) {
			t.Fatalf("root schema missing %s", field)
		}
	}
}
