package proto

import (
	"reflect"

	"github.com/invopop/jsonschema"
)

type joinEnvelope struct {
	Type    string      `json:"type" jsonschema:"required,enum=join"`
	Payload JoinMessage `json:"payload" jsonschema:"required"`
}

type inputEnvelope struct {
	Type    string       `json:"type" jsonschema:"required,enum=input"`
	Payload InputMessage `json:"payload" jsonschema:"required"`
}

type abilityEnvelope struct {
	Type    string         `json:"type" jsonschema:"required,enum=ability"`
	Payload AbilityMessage `json:"payload" jsonschema:"required"`
}

type restartEnvelope struct {
	Type    string         `json:"type" jsonschema:"required,enum=restart"`
	Payload RestartMessage `json:"payload"`
}

var inboundEnvelopes = []struct {
	msgType string
	value   any
}{
	{TypeJoin, joinEnvelope{}},
	{TypeInput, inputEnvelope{}},
	{TypeAbility, abilityEnvelope{}},
	{TypeRestart, restartEnvelope{}},
}

func reflector() jsonschema.Reflector {
	return jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
}

// Schemas returns the JSON schema of every inbound message keyed by type.
// Additional properties are rejected, matching the decoder.
func Schemas() map[string]*jsonschema.Schema {
	r := reflector()
	out := make(map[string]*jsonschema.Schema, len(inboundEnvelopes))
	for _, env := range inboundEnvelopes {
		schema := r.ReflectFromType(reflect.TypeOf(env.value))
		schema.Version = ""
		schema.Title = env.msgType
		out[env.msgType] = schema
	}
	return out
}

// Schema returns a single document accepting any inbound message.
func Schema() *jsonschema.Schema {
	schemas := Schemas()
	root := &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "driftrace client messages",
		Description: "Inbound websocket frames accepted by the race server.",
	}
	for _, env := range inboundEnvelopes {
		root.OneOf = append(root.OneOf, schemas[env.msgType])
	}
	return root
}
