// Package otelsink reports span metrics through an OpenTelemetry meter.
//
// Counters become Int64Counter instruments, timings Int64Histogram
// instruments in nanoseconds named "<name>.duration" and values Int64Gauge
// instruments. Instruments are created on first use and cached by name.
package otelsink

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/spanmetricz"
	"go.opentelemetry.io/otel/metric"
)

// DurationSuffix keeps timing histograms apart from the counter of the same span.
const DurationSuffix = ".duration"

// Sink is a spanmetricz.Sink backed by an OpenTelemetry meter.
// Safe for concurrent use by multiple goroutines.
type Sink struct {
	meter      metric.Meter
	counters   sync.Map // name -> metric.Int64Counter
	histograms sync.Map // name -> metric.Int64Histogram
	gauges     sync.Map // name -> metric.Int64Gauge
	errors     atomic.Uint64
}

var _ spanmetricz.Sink = (*Sink)(nil)

// New creates a sink recording through meter.
func New(meter metric.Meter) *Sink {
	return &Sink{meter: meter}
}

// IncrementCounter implements spanmetricz.Sink.
func (s *Sink) IncrementCounter(name string, delta uint64) {
	c, ok := s.counter(name)
	if !ok {
		return
	}
	c.Add(context.Background(), clamp(delta))
}

// RecordTiming implements spanmetricz.Sink.
func (s *Sink) RecordTiming(name string, d time.Duration) {
	h, ok := s.histogram(name)
	if !ok {
		return
	}
	if d < 0 {
		d = 0
	}
	h.Record(context.Background(), d.Nanoseconds())
}

// RecordValue implements spanmetricz.Sink.
func (s *Sink) RecordValue(name string, value uint64) {
	g, ok := s.gauge(name)
	if !ok {
		return
	}
	g.Record(context.Background(), clamp(value))
}

// Errors returns how many observations were dropped because their instrument
// could not be created.
func (s *Sink) Errors() uint64 {
	return s.errors.Load()
}

func (s *Sink) counter(name string) (metric.Int64Counter, bool) {
	if c, ok := s.counters.Load(name); ok {
		return c.(metric.Int64Counter), true
	}
	c, err := s.meter.Int64Counter(name,
		metric.WithDescription("Number of times the "+name+" span was entered."),
		metric.WithUnit("{enter}"),
	)
	if err != nil {
		s.errors.Add(1)
		return nil, false
	}
	actual, _ := s.counters.LoadOrStore(name, c)
	return actual.(metric.Int64Counter), true
}

func (s *Sink) histogram(name string) (metric.Int64Histogram, bool) {
	if h, ok := s.histograms.Load(name); ok {
		return h.(metric.Int64Histogram), true
	}
	h, err := s.meter.Int64Histogram(name+DurationSuffix,
		metric.WithDescription("Time spent inside the "+name+" span."),
		metric.WithUnit("ns"),
	)
	if err != nil {
		s.errors.Add(1)
		return nil, false
	}
	actual, _ := s.histograms.LoadOrStore(name, h)
	return actual.(metric.Int64Histogram), true
}

func (s *Sink) gauge(name string) (metric.Int64Gauge, bool) {
	if g, ok := s.gauges.Load(name); ok {
		return g.(metric.Int64Gauge), true
	}
	g, err := s.meter.Int64Gauge(name,
		metric.WithDescription("Last value reported for "+name+"."),
	)
	if err != nil {
		s.errors.Add(1)
		return nil, false
	}
	actual, _ := s.gauges.LoadOrStore(name, g)
	return actual.(metric.Int64Gauge), true
}

func clamp(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
