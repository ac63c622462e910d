package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "driftrace"

// OTelMetrics maps metric keys onto OpenTelemetry instruments, creating each
// instrument on first use. Without an installed MeterProvider the global
// meter is a no-op.
type OTelMetrics struct {
	meter metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	gauges     map[string]metric.Int64Gauge
	histograms map[string]metric.Float64Histogram
}

// NewOTelMetrics wraps meter. A nil meter uses the global provider.
func NewOTelMetrics(meter metric.Meter) *OTelMetrics {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	return &OTelMetrics{
		meter:      meter,
		counters:   make(map[string]metric.Int64Counter),
		gauges:     make(map[string]metric.Int64Gauge),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

// Add increments the counter named key.
func (m *OTelMetrics) Add(key string, delta uint64) {
	if counter := m.counter(key); counter != nil {
		counter.Add(context.Background(), int64(delta))
	}
}

// AddReason increments the counter named key with a reason attribute.
func (m *OTelMetrics) AddReason(key, reason string, delta uint64) {
	if counter := m.counter(key); counter != nil {
		counter.Add(context.Background(), int64(delta), metric.WithAttributes(attribute.String("reason", reason)))
	}
}

// Store sets the gauge named key.
func (m *OTelMetrics) Store(key string, value uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	gauge, ok := m.gauges[key]
	if !ok {
		var err error
		gauge, err = m.meter.Int64Gauge(key)
		if err != nil {
			m.mu.Unlock()
			return
		}
		m.gauges[key] = gauge
	}
	m.mu.Unlock()
	gauge.Record(context.Background(), int64(value))
}

// Record adds a sample to the histogram named key.
func (m *OTelMetrics) Record(key string, value float64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	histogram, ok := m.histograms[key]
	if !ok {
		var err error
		histogram, err = m.meter.Float64Histogram(key)
		if err != nil {
			m.mu.Unlock()
			return
		}
		m.histograms[key] = histogram
	}
	m.mu.Unlock()
	histogram.Record(context.Background(), value)
}

func (m *OTelMetrics) counter(key string) metric.Int64Counter {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	counter, ok := m.counters[key]
	if !ok {
		var err error
		counter, err = m.meter.Int64Counter(key)
		if err != nil {
			return nil
		}
		m.counters[key] = counter
	}
	return counter
}

var _ Metrics = (*OTelMetrics)(nil)
