package telemetry

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
)

// LogConfig selects level, format and optional Graylog forwarding.
type LogConfig struct {
	Level          string
	Format         string
	GraylogEnabled bool
	GraylogAddress string
}

// ParseLevel maps a level name onto zerolog, defaulting to info.
func ParseLevel(name string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger builds the process logger. The returned closer releases the
// Graylog connection, if any.
func NewLogger(cfg LogConfig, out io.Writer) (zerolog.Logger, io.Closer, error) {
	if out == nil {
		out = os.Stdout
	}
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	var primary io.Writer = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	if strings.EqualFold(cfg.Format, "json") {
		primary = out
	}

	writers := []io.Writer{primary}
	var closer io.Closer = nopCloser{}
	if cfg.GraylogEnabled && cfg.GraylogAddress != "" {
		gelfWriter, err := gelf.NewWriter(cfg.GraylogAddress)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("connect graylog %s: %w", cfg.GraylogAddress, err)
		}
		writers = append(writers, gelfWriter)
		closer = gelfWriter
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(cfg.Level)).
		With().Timestamp().Logger()
	return logger, closer, nil
}

// Sampled limits a hot-path logger to a burst of entries per period, then
// one in every hundred.
func Sampled(logger zerolog.Logger) zerolog.Logger {
	return logger.With().Bool("sampled", true).Logger().Sample(&zerolog.BurstSampler{
		Burst:       5,
		Period:      10 * time.Second,
		NextSampler: &zerolog.BasicSampler{N: 100},
	})
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
