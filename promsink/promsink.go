// Package promsink reports span metrics to a Prometheus registry.
//
// Collectors are created lazily, one per metric name:
//
//	IncrementCounter("app_shave", n)           -> counter   app_shave_total
//	RecordTiming("app_shave", d)               -> histogram app_shave_ns
//	RecordValue("app_shave_enter_count", n)    -> gauge     app_shave_enter_count
package promsink

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zoobzio/spanmetricz"
)

// DefaultBuckets spans 1µs to 10s in nanoseconds.
var DefaultBuckets = prometheus.ExponentialBuckets(1e3, 10, 8)

// Option configures a Sink.
type Option func(*Sink)

// WithNamespace prefixes every metric name.
func WithNamespace(namespace string) Option {
	return func(s *Sink) {
		s.namespace = sanitize(namespace)
	}
}

// WithBuckets sets the histogram buckets used for timings, in nanoseconds.
func WithBuckets(buckets []float64) Option {
	return func(s *Sink) {
		if len(buckets) > 0 {
			s.buckets = buckets
		}
	}
}

// Sink is a spanmetricz.Sink backed by Prometheus collectors.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Sink struct {
	reg        prometheus.Registerer
	counters   map[string]prometheus.Counter
	histograms map[string]prometheus.Histogram
	gauges     map[string]prometheus.Gauge
	namespace  string
	buckets    []float64
	errors     atomic.Uint64
	mu         sync.Mutex
}

var _ spanmetricz.Sink = (*Sink)(nil)

// New creates a sink registering its collectors with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer, opts ...Option) *Sink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &Sink{
		reg:        reg,
		counters:   make(map[string]prometheus.Counter),
		histograms: make(map[string]prometheus.Histogram),
		gauges:     make(map[string]prometheus.Gauge),
		buckets:    DefaultBuckets,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IncrementCounter implements spanmetricz.Sink.
func (s *Sink) IncrementCounter(name string, delta uint64) {
	if c := s.counter(name); c != nil {
		c.Add(float64(delta))
	}
}

// RecordTiming implements spanmetricz.Sink.
func (s *Sink) RecordTiming(name string, d time.Duration) {
	if h := s.histogram(name); h != nil {
		h.Observe(float64(d.Nanoseconds()))
	}
}

// RecordValue implements spanmetricz.Sink.
func (s *Sink) RecordValue(name string, value uint64) {
	if g := s.gauge(name); g != nil {
		g.Set(float64(value))
	}
}

// Errors returns how many observations were dropped because their collector
// could not be registered.
func (s *Sink) Errors() uint64 {
	return s.errors.Load()
}

func (s *Sink) counter(name string) prometheus.Counter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: s.namespace,
		Name:      sanitize(name) + "_total",
		Help:      "Number of times the " + name + " span was entered.",
	})
	registered, ok := s.register(c).(prometheus.Counter)
	if !ok {
		s.errors.Add(1)
		return nil
	}
	s.counters[name] = registered
	return registered
}

func (s *Sink) histogram(name string) prometheus.Histogram {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.histograms[name]; ok {
		return h
	}
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: s.namespace,
		Name:      sanitize(name) + "_ns",
		Help:      "Time spent inside the " + name + " span in nanoseconds.",
		Buckets:   s.buckets,
	})
	registered, ok := s.register(h).(prometheus.Histogram)
	if !ok {
		s.errors.Add(1)
		return nil
	}
	s.histograms[name] = registered
	return registered
}

func (s *Sink) gauge(name string) prometheus.Gauge {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g, ok := s.gauges[name]; ok {
		return g
	}
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: s.namespace,
		Name:      sanitize(name),
		Help:      "Last value reported for " + name + ".",
	})
	registered, ok := s.register(g).(prometheus.Gauge)
	if !ok {
		s.errors.Add(1)
		return nil
	}
	s.gauges[name] = registered
	return registered
}

// register adds c to the registry, returning the collector already
// registered under the same name when there is one. Returns nil on failure.
// Callers count the failure when the result is not the collector type they need.
func (s *Sink) register(c prometheus.Collector) prometheus.Collector {
	err := s.reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return are.ExistingCollector
	}
	return nil
}

// sanitize maps name onto the Prometheus metric name charset.
func sanitize(name string) string {
	if name == "" {
		return ""
	}
	out := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ':':
			return r
		default:
			return '_'
		}
	}, name)
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}
