package telemetry

// Metrics exposes the telemetry methods required by server components.
// Implementations must be safe for concurrent use.
type Metrics interface {
	Add(key string, delta uint64)
	AddReason(key, reason string, delta uint64)
	Store(key string, value uint64)
	Record(key string, value float64)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) Add(string, uint64)               {}
func (Nop) AddReason(string, string, uint64) {}
func (Nop) Store(string, uint64)             {}
func (Nop) Record(string, float64)           {}

// OrNop returns m, or a discarding implementation when m is nil.
func OrNop(m Metrics) Metrics {
	if m == nil {
		return Nop{}
	}
	return m
}

// Metric keys shared across packages.
const (
	KeyTickSeconds        = "sim_tick_seconds"
	KeyTickOverrun        = "sim_tick_overrun_total"
	KeySnapshotBytes      = "net_snapshot_bytes_total"
	KeySnapshotsSent      = "net_snapshots_sent_total"
	KeyInboundDropped     = "net_inbound_dropped_total"
	KeyOutboundDropped    = "net_outbound_dropped_total"
	KeyAntiCheatClamp     = "sim_anticheat_clamp_total"
	KeyActiveRooms        = "rooms_active"
	KeyActivePlayers      = "players_active"
	KeyRaceEvents         = "sim_race_events_total"
	KeyCommandBufferDepth = "sim_command_buffer_occupancy"
	KeyCommandOverflow    = "sim_command_buffer_overflow_total"
)
