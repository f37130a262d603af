package spanmetricz

import (
	"sync"
	"sync/atomic"
	"time"
)

// Kind is the type of metric an Observation carries.
type Kind uint8

// Observation kinds, one per Sink method.
const (
	KindCounter Kind = iota
	KindTiming
	KindValue
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindTiming:
		return "timing"
	case KindValue:
		return "value"
	default:
		return "unknown"
	}
}

// Observation is a single call received by a Collector.
// Value holds the counter delta, the gauge value or the timing in nanoseconds.
type Observation struct {
	Name  string `json:"name"`
	Value uint64 `json:"value"`
	Kind  Kind   `json:"kind"`
}

// Duration returns the observation's value as a duration.
func (o Observation) Duration() time.Duration {
	return time.Duration(o.Value)
}

// Collector is a Sink that buffers observations for batch export.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	observations []Observation
	obsCh        chan Observation
	stopCh       chan struct{}
	done         chan struct{}
	droppedCount atomic.Int64
	name         string
	mu           sync.Mutex
	closeOnce    sync.Once
	closed       atomic.Bool // Track if collector is closed.
	syncMode     atomic.Bool // Bypass channel for synchronous collection.
}

var _ Sink = (*Collector)(nil)

// NewCollector creates a new collector with the specified name and buffer size.
func NewCollector(name string, bufferSize int) *Collector {
	c := &Collector{
		name:         name,
		observations: make([]Observation, 0, 8), // Start with small capacity.
		obsCh:        make(chan Observation, bufferSize),
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
	}
	go c.start()
	return c
}

// Name returns the name the collector was created with.
func (c *Collector) Name() string {
	return c.name
}

// start runs the collector's main loop, receiving observations from the channel.
func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining observations before shutdown.
			for {
				select {
				case obs := <-c.obsCh:
					c.buffer(obs)
				default:
					return // Clean shutdown.
				}
			}
		case obs := <-c.obsCh:
			c.buffer(obs)
		}
	}
}

// Close shuts down the collector gracefully. Buffered observations stay
// available to Export.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stopCh)
		select {
		case <-c.done:
			// Clean shutdown completed.
		case <-time.After(100 * time.Millisecond):
			// Timeout - continue without waiting further.
		}
	})
}

// IncrementCounter implements Sink.
func (c *Collector) IncrementCounter(name string, delta uint64) {
	c.Collect(Observation{Kind: KindCounter, Name: name, Value: delta})
}

// RecordTiming implements Sink.
func (c *Collector) RecordTiming(name string, d time.Duration) {
	if d < 0 {
		d = 0
	}
	c.Collect(Observation{Kind: KindTiming, Name: name, Value: uint64(d)})
}

// RecordValue implements Sink.
func (c *Collector) RecordValue(name string, value uint64) {
	c.Collect(Observation{Kind: KindValue, Name: name, Value: value})
}

// Collect attempts to buffer an observation with backpressure protection.
// If the internal channel is full, the observation is dropped and the drop counter is incremented.
// In sync mode, observations are collected directly for deterministic testing.
func (c *Collector) Collect(obs Observation) {
	if c.closed.Load() {
		// Collector is closed - drop observation.
		c.droppedCount.Add(1)
		return
	}

	if c.syncMode.Load() {
		// Direct synchronous collection for tests.
		c.buffer(obs)
		return
	}

	select {
	case c.obsCh <- obs:
		// Successfully queued.
	default:
		// Channel full - drop observation to prevent blocking.
		c.droppedCount.Add(1)
	}
}

// buffer appends an observation to the internal buffer.
func (c *Collector) buffer(obs Observation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Check if buffer needs to grow.
	if len(c.observations) >= cap(c.observations) {
		currentCap := cap(c.observations)
		var newCap int
		if currentCap < 1024 {
			// Double capacity for small buffers.
			newCap = currentCap * 2
		} else {
			// Grow by 50% for large buffers to avoid excessive memory usage.
			newCap = currentCap + currentCap/2
		}
		if newCap < 32 {
			newCap = 32
		}
		grown := make([]Observation, len(c.observations), newCap)
		copy(grown, c.observations)
		c.observations = grown
	}
	c.observations = append(c.observations, obs)
}

// Export returns a copy of all buffered observations and clears the internal buffer.
// The returned slice is safe to modify without affecting the collector.
func (c *Collector) Export() []Observation {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.observations) == 0 {
		return nil
	}

	result := make([]Observation, len(c.observations))
	copy(result, c.observations)

	// Only shrink if buffer is very oversized to avoid allocation churn.
	if cap(c.observations) > 256 && len(c.observations) < cap(c.observations)/8 {
		newCap := cap(c.observations) / 4
		if newCap < 32 {
			newCap = 32
		}
		c.observations = make([]Observation, 0, newCap)
	} else {
		c.observations = c.observations[:0] // Keep capacity, reset length.
	}

	return result
}

// Count returns the current number of buffered observations.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.observations)
}

// DroppedCount returns the total number of observations dropped due to backpressure.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode enables synchronous collection for testing.
// When enabled, observations are collected directly without using the channel.
// This makes tests deterministic by eliminating async behavior.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode.Store(sync)
}

// Reset clears all buffered observations and resets the drop counter.
// Does not affect the running goroutine - use Close() for that.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.observations = c.observations[:0]
	c.droppedCount.Store(0)
}

// Totals sums observations by kind and name. Counters and values are summed,
// timings are counted.
func Totals(observations []Observation, kind Kind) map[string]uint64 {
	totals := make(map[string]uint64)
	for _, obs := range observations {
		if obs.Kind != kind {
			continue
		}
		if kind == KindTiming {
			totals[obs.Name]++
			continue
		}
		totals[obs.Name] += obs.Value
	}
	return totals
}
