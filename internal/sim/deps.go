package sim

import (
	"github.com/rs/zerolog"

	"driftrace/internal/drift"
	"driftrace/internal/motion"
	"driftrace/internal/telemetry"
	"driftrace/internal/track"
	"driftrace/logging"
)

// Deps carries shared infrastructure and static catalogs required by a room.
type Deps struct {
	Logger   zerolog.Logger
	Metrics  telemetry.Metrics
	Vehicles *motion.Catalog
	Tracks   *track.Catalog
	Drift    drift.Config
	// Publisher observes simulation events. Optional.
	Publisher logging.Publisher
	// IDs generates entity ids. Defaults to random UUIDs.
	IDs func() string
}
