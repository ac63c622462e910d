package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"driftrace/internal/net/proto"
	"driftrace/internal/room"
	"driftrace/internal/sim"
	"driftrace/internal/telemetry"
)

// EnvPrefix namespaces environment overrides, e.g. DRIFTRACE_SIM_TICKHZ.
const EnvPrefix = "DRIFTRACE"

type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	EnablePprof bool   `mapstructure:"enablePprof"`
}

type SimConfig struct {
	TickHz     int `mapstructure:"tickHz"`
	SnapshotHz int `mapstructure:"snapshotHz"`
}

type NetConfig struct {
	MaxInputHz      int `mapstructure:"maxInputHz"`
	MaxPayloadBytes int `mapstructure:"maxPayloadBytes"`
	MaxJoinBytes    int `mapstructure:"maxJoinBytes"`
	OutboundQueue   int `mapstructure:"outboundQueue"`
}

type RaceConfig struct {
	DefaultTrack string `mapstructure:"defaultTrack"`
	// DefaultLaps of 0 uses each track's own lap count.
	DefaultLaps int           `mapstructure:"defaultLaps"`
	MaxPlayers  int           `mapstructure:"maxPlayers"`
	Countdown   time.Duration `mapstructure:"countdown"`
	FinishGrace time.Duration `mapstructure:"finishGrace"`
}

type AntiCheatConfig struct {
	MaxPositionDelta float64 `mapstructure:"maxPositionDelta"`
	MaxRotationDelta float64 `mapstructure:"maxRotationDelta"`
	MaxMovementSpeed float64 `mapstructure:"maxMovementSpeed"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	EventsFile string `mapstructure:"eventsFile"`
}

type GraylogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Sim       SimConfig       `mapstructure:"sim"`
	Net       NetConfig       `mapstructure:"net"`
	Race      RaceConfig      `mapstructure:"race"`
	AntiCheat AntiCheatConfig `mapstructure:"anticheat"`
	Log       LogConfig       `mapstructure:"log"`
	Graylog   GraylogConfig   `mapstructure:"graylog"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.enablePprof", false)

	v.SetDefault("sim.tickHz", 60)
	v.SetDefault("sim.snapshotHz", 20)

	v.SetDefault("net.maxInputHz", 60)
	v.SetDefault("net.maxPayloadBytes", proto.DefaultMaxPayloadBytes)
	v.SetDefault("net.maxJoinBytes", proto.DefaultMaxJoinBytes)
	v.SetDefault("net.outboundQueue", 64)

	v.SetDefault("race.defaultTrack", "")
	v.SetDefault("race.defaultLaps", 0)
	v.SetDefault("race.maxPlayers", 8)
	v.SetDefault("race.countdown", "3s")
	v.SetDefault("race.finishGrace", "30s")

	v.SetDefault("anticheat.maxPositionDelta", 4.0)
	v.SetDefault("anticheat.maxRotationDelta", 0.5)
	v.SetDefault("anticheat.maxMovementSpeed", 120.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.eventsFile", "")

	v.SetDefault("graylog.enabled", false)
	v.SetDefault("graylog.address", "localhost:12201")
}

// Load reads defaults, then the optional config file at path, then
// DRIFTRACE_* environment variables, then the flags in fs that were set.
// The result is normalized.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if fs != nil {
		if flag := fs.Lookup("addr"); flag != nil {
			if err := v.BindPFlag("server.addr", flag); err != nil {
				return Config{}, fmt.Errorf("bind addr flag: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return Config{}, errors.New("server.addr must not be empty")
	}
	return cfg.Normalized(), nil
}

// Normalized clamps every value into its supported range. It is applied once
// at load; nothing downstream re-validates per tick.
func (c Config) Normalized() Config {
	c.Sim.TickHz = clampInt(c.Sim.TickHz, 10, 240)
	c.Sim.SnapshotHz = clampInt(c.Sim.SnapshotHz, 1, c.Sim.TickHz)

	c.Net.MaxInputHz = clampInt(c.Net.MaxInputHz, 1, 120)
	c.Net.MaxPayloadBytes = clampInt(c.Net.MaxPayloadBytes, 256, 65536)
	c.Net.MaxJoinBytes = clampInt(c.Net.MaxJoinBytes, 256, 65536)
	c.Net.OutboundQueue = clampInt(c.Net.OutboundQueue, 8, 1024)

	c.Race.DefaultTrack = strings.TrimSpace(c.Race.DefaultTrack)
	if c.Race.DefaultLaps > 0 {
		c.Race.DefaultLaps = clampInt(c.Race.DefaultLaps, 1, 20)
	} else {
		c.Race.DefaultLaps = 0
	}
	c.Race.MaxPlayers = clampInt(c.Race.MaxPlayers, 1, 32)
	c.Race.Countdown = clampDuration(c.Race.Countdown, 0, 30*time.Second)
	c.Race.FinishGrace = clampDuration(c.Race.FinishGrace, time.Second, 5*time.Minute)

	def := sim.DefaultConfig().AntiCheat
	c.AntiCheat.MaxPositionDelta = positiveOr(c.AntiCheat.MaxPositionDelta, def.MaxPositionDelta)
	c.AntiCheat.MaxRotationDelta = positiveOr(c.AntiCheat.MaxRotationDelta, def.MaxRotationDelta)
	c.AntiCheat.MaxMovementSpeed = positiveOr(c.AntiCheat.MaxMovementSpeed, def.MaxMovementSpeed)

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Format != "json" {
		c.Log.Format = "console"
	}
	return c
}

// Room maps the configuration onto the per-room loop settings.
func (c Config) Room() room.Config {
	simCfg := sim.DefaultConfig()
	simCfg.MaxPlayers = c.Race.MaxPlayers
	simCfg.DefaultTrack = c.Race.DefaultTrack
	simCfg.Laps = c.Race.DefaultLaps
	simCfg.Countdown = c.Race.Countdown
	simCfg.FinishGrace = c.Race.FinishGrace
	simCfg.AntiCheat = sim.AntiCheatConfig{
		MaxPositionDelta: c.AntiCheat.MaxPositionDelta,
		MaxRotationDelta: c.AntiCheat.MaxRotationDelta,
		MaxMovementSpeed: c.AntiCheat.MaxMovementSpeed,
	}

	loop := room.DefaultConfig()
	loop.SimHz = c.Sim.TickHz
	loop.SnapshotHz = c.Sim.SnapshotHz
	loop.MaxInputHz = c.Net.MaxInputHz
	loop.Sim = simCfg
	return loop
}

// Telemetry maps the log settings onto the logger constructor.
func (c Config) Telemetry() telemetry.LogConfig {
	return telemetry.LogConfig{
		Level:          c.Log.Level,
		Format:         c.Log.Format,
		GraylogEnabled: c.Graylog.Enabled,
		GraylogAddress: c.Graylog.Address,
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func positiveOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return fallback
	}
	return v
}
