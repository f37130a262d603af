package spanmetricz

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Sink receives the metrics produced by a Bridge.
// Calls are fire-and-forget and must not block on I/O; a sink that needs to
// flush somewhere slow should do so asynchronously (see AsyncSink).
type Sink interface {
	// IncrementCounter adds delta to a monotonically increasing counter.
	IncrementCounter(name string, delta uint64)
	// RecordTiming records a single duration observation.
	RecordTiming(name string, d time.Duration)
	// RecordValue records a point-in-time value.
	RecordValue(name string, value uint64)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) IncrementCounter(string, uint64)     {}
func (NopSink) RecordTiming(string, time.Duration) {}
func (NopSink) RecordValue(string, uint64)          {}

// emitter forwards observations to a Sink and swallows sink panics.
// Metrics loss must never fail the instrumented code.
type emitter struct {
	sink      Sink
	logger    *zap.Logger
	panicHook func(name string, r interface{})
	failures  atomic.Uint64
}

func (e *emitter) counter(name string, delta uint64) {
	defer e.swallow("counter", name)
	e.sink.IncrementCounter(name, delta)
}

func (e *emitter) timing(name string, d time.Duration) {
	defer e.swallow("timing", name)
	e.sink.RecordTiming(name, d)
}

func (e *emitter) value(name string, v uint64) {
	defer e.swallow("value", name)
	e.sink.RecordValue(name, v)
}

func (e *emitter) swallow(kind, name string) {
	r := recover()
	if r == nil {
		return
	}
	e.failures.Add(1)
	e.logger.Warn("metric sink panicked",
		zap.String("kind", kind),
		zap.String("metric", name),
		zap.Any("panic", r),
	)
	if e.panicHook != nil {
		e.panicHook(name, r)
	}
}
