package simulation

import (
	"context"

	"driftrace/logging"
)

const (
	// EventTickBudgetOverrun is emitted when a room tick exceeds the allotted tick budget.
	EventTickBudgetOverrun logging.EventType = "simulation.tick_budget_overrun"
	// EventAntiCheatClamp is emitted when a car's per-tick movement is pulled back within bounds.
	EventAntiCheatClamp logging.EventType = "simulation.anticheat_clamp"
)

// TickBudgetOverrunPayload captures timing details for a tick budget breach.
type TickBudgetOverrunPayload struct {
	DurationMillis float64 `json:"durationMillis"`
	BudgetMillis   float64 `json:"budgetMillis"`
	Ratio          float64 `json:"ratio"`
	Streak         uint64  `json:"streak"`
}

// AntiCheatClampPayload lists the clamps applied to one car.
type AntiCheatClampPayload struct {
	Clamped    []string `json:"clamped"`
	Violations int      `json:"violations"`
}

// TickBudgetOverrun publishes a warning when a room exceeds its tick budget.
func TickBudgetOverrun(ctx context.Context, pub logging.Publisher, tick uint64, roomID string, payload TickBudgetOverrunPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTickBudgetOverrun,
		Tick:     tick,
		RoomID:   roomID,
		Actor:    logging.RoomRef(roomID),
		Severity: logging.SeverityWarn,
		Category: logging.CategorySimulation,
		Payload:  payload,
	})
}

// AntiCheatClamp publishes a warning for a clamped car.
func AntiCheatClamp(ctx context.Context, pub logging.Publisher, tick uint64, roomID string, actor logging.EntityRef, payload AntiCheatClampPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventAntiCheatClamp,
		Tick:     tick,
		RoomID:   roomID,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySimulation,
		Payload:  payload,
	})
}
