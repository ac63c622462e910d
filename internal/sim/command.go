package sim

import (
	"time"

	"driftrace/internal/motion"
)

// CommandType enumerates the supported simulation commands.
type CommandType string

const (
	CommandInput   CommandType = "Input"
	CommandAbility CommandType = "Ability"
	CommandRestart CommandType = "Restart"
)

// InputCommand carries one client input frame.
type InputCommand struct {
	Seq         uint64          `json:"seq"`
	ClientTime  int64           `json:"clientTime"`
	Controls    motion.Controls `json:"controls"`
	Cruise      bool            `json:"cruise"`
	AckSnapshot uint64          `json:"ackSnapshot"`
}

// AbilityCommand requests an ability activation.
type AbilityCommand struct {
	AbilityID string `json:"abilityId"`
	Seq       uint64 `json:"seq"`
	TargetID  string `json:"targetId,omitempty"`
}

// Command represents an intent captured for processing on the next tick.
type Command struct {
	ActorID  string          `json:"actorId"`
	Type     CommandType     `json:"type"`
	IssuedAt time.Time       `json:"issuedAt"`
	Input    *InputCommand   `json:"input,omitempty"`
	Ability  *AbilityCommand `json:"ability,omitempty"`
}
