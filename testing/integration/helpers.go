package integration

import (
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/spanmetricz"
)

// MockCollector wraps a real collector with test utilities.
// Provides synchronous collection and verification helpers.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockCollector struct {
	exported []spanmetricz.Observation
	*spanmetricz.Collector
	t  *testing.T
	mu sync.Mutex
}

// NewMockCollector creates a collector for testing.
func NewMockCollector(t *testing.T, name string) *MockCollector {
	collector := spanmetricz.NewCollector(name, 16)
	collector.SetSyncMode(true) // Enable synchronous collection for testing.
	t.Cleanup(collector.Close)
	return &MockCollector{
		Collector: collector,
		t:         t,
		exported:  make([]spanmetricz.Observation, 0),
	}
}

// GetAll returns every observation seen so far without losing any between calls.
func (m *MockCollector) GetAll() []spanmetricz.Observation {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.exported = append(m.exported, m.Collector.Export()...)
	all := make([]spanmetricz.Observation, len(m.exported))
	copy(all, m.exported)
	return all
}

// AssertCounter verifies the summed counter for name.
func (m *MockCollector) AssertCounter(name string, expected uint64) {
	m.t.Helper()
	if got := spanmetricz.Totals(m.GetAll(), spanmetricz.KindCounter)[name]; got != expected {
		m.t.Errorf("Expected counter %s = %d, got %d", name, expected, got)
	}
}

// AssertTimings verifies the timings recorded for name, in order.
func (m *MockCollector) AssertTimings(name string, expected ...time.Duration) {
	m.t.Helper()
	var got []time.Duration
	for _, obs := range m.GetAll() {
		if obs.Kind == spanmetricz.KindTiming && obs.Name == name {
			got = append(got, obs.Duration())
		}
	}
	if len(got) != len(expected) {
		m.t.Errorf("Expected %d timings for %s, got %v", len(expected), name, got)
		return
	}
	for i := range expected {
		if got[i] != expected[i] {
			m.t.Errorf("Timing %d for %s: expected %v, got %v", i, name, expected[i], got[i])
		}
	}
}

// AssertEnterCount verifies the last enter count value reported for key.
func (m *MockCollector) AssertEnterCount(key string, expected uint64) {
	m.t.Helper()
	name := spanmetricz.EnterCountName(key)
	var (
		last  uint64
		found bool
	)
	for _, obs := range m.GetAll() {
		if obs.Kind == spanmetricz.KindValue && obs.Name == name {
			last, found = obs.Value, true
		}
	}
	if !found {
		m.t.Errorf("No enter count reported for %s", key)
		return
	}
	if last != expected {
		m.t.Errorf("Expected enter count %d for %s, got %d", expected, key, last)
	}
}

// Harness bundles a bridge, its collector and a fake clock.
type Harness struct {
	Bridge    *spanmetricz.Bridge
	Collector *MockCollector
	Advance   func(time.Duration)
}

// NewHarness creates a bridge over a synchronous collector driven by a fake clock.
func NewHarness(t *testing.T, opts ...spanmetricz.Option) *Harness {
	clock := clockz.NewFakeClock()
	collector := NewMockCollector(t, t.Name())
	opts = append([]spanmetricz.Option{spanmetricz.WithClock(clock)}, opts...)
	return &Harness{
		Bridge:    spanmetricz.New(collector, opts...),
		Collector: collector,
		Advance:   clock.Advance,
	}
}

// Timed runs a span for d of fake time.
func (h *Harness) Timed(meta *spanmetricz.Metadata, d time.Duration) {
	span := spanmetricz.Start(h.Bridge, meta, nil)
	span.InScope(func() { h.Advance(d) })
	span.Close()
}
