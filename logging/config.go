package logging

import (
	"strings"
	"time"
)

// Sink names used by the server wiring.
const (
	SinkConsole = "console"
	SinkJSON    = "json"
	SinkMemory  = "memory"
)

// Config tunes the event router.
type Config struct {
	// QueueSize bounds each sink's backlog.
	QueueSize       int
	MinimumSeverity Severity
	// Fields are stamped onto every routed event unless it sets them itself.
	Fields map[string]any
	// DropWarnInterval throttles the fallback warning for dropped events.
	DropWarnInterval time.Duration
	// SinkCooldown is how long a sink is skipped after a failed write.
	SinkCooldown time.Duration
	// JSONFlushInterval batches JSON sink writes; zero flushes every line.
	JSONFlushInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		QueueSize:         512,
		MinimumSeverity:   SeverityInfo,
		DropWarnInterval:  5 * time.Second,
		SinkCooldown:      2 * time.Second,
		JSONFlushInterval: 2 * time.Second,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.DropWarnInterval <= 0 {
		c.DropWarnInterval = def.DropWarnInterval
	}
	if c.SinkCooldown < 0 {
		c.SinkCooldown = 0
	}
	return c
}

// ParseSeverity maps a level name onto a Severity. Unknown names read as info.
func ParseSeverity(name string) Severity {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace", "debug":
		return SeverityDebug
	case "warn", "warning":
		return SeverityWarn
	case "error", "fatal", "panic":
		return SeverityError
	}
	return SeverityInfo
}

var severityNames = [...]string{
	SeverityDebug: "debug",
	SeverityInfo:  "info",
	SeverityWarn:  "warn",
	SeverityError: "error",
}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return "unknown"
	}
	return severityNames[s]
}
