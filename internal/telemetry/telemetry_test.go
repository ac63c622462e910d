package telemetry

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		" error ": zerolog.ErrorLevel,
		"trace":   zerolog.TraceLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNewLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := NewLogger(LogConfig{Level: "info", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	defer closer.Close()

	logger.Debug().Msg("hidden")
	logger.Info().Str("room", "abc").Msg("room created")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug entry should be filtered at info level: %s", out)
	}
	if !strings.Contains(out, `"room":"abc"`) || !strings.Contains(out, `"message":"room created"`) {
		t.Fatalf("expected structured json entry, got %s", out)
	}
}

func TestOTelMetricsAcceptsNoopMeter(t *testing.T) {
	m := NewOTelMetrics(noop.NewMeterProvider().Meter("test"))
	m.Add(KeyRaceEvents, 1)
	m.AddReason(KeyInboundDropped, "rate", 2)
	m.Store(KeyActiveRooms, 3)
	m.Record(KeyTickSeconds, 0.002)

	if len(m.counters) != 2 || len(m.gauges) != 1 || len(m.histograms) != 1 {
		t.Fatalf("expected instruments to be cached, got %d/%d/%d", len(m.counters), len(m.gauges), len(m.histograms))
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *OTelMetrics
	m.Add(KeyRaceEvents, 1)
	m.Store(KeyActiveRooms, 1)
	m.Record(KeyTickSeconds, 1)
	OrNop(nil).Add(KeyRaceEvents, 1)
}
