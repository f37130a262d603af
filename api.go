// Package spanmetricz turns span lifecycles into metrics.
//
// spanmetricz sits behind a tracing front end and watches spans being
// created, entered, exited and closed. It converts that lifecycle into
// counters (how often a span was entered) and timings (how long it stayed
// active) and hands them to a metrics Sink.
//
// Core Components:.
//   - Bridge: Implements the Subscriber callbacks and drives everything else.
//   - Span: Application-facing handle that drives a Subscriber.
//   - Sink: Where counters, timings and values end up.
//   - Collector: Buffers observations for inspection or batch export.
//   - AsyncSink: Moves sink calls onto a bounded worker pool.
//
// Basic Usage:.
//
//	collector := spanmetricz.NewCollector("metrics", 1024)
//	bridge := spanmetricz.New(collector)
//
//	meta := &spanmetricz.Metadata{Target: "app::worker", Name: "shave"}
//	span := spanmetricz.Start(bridge, meta, nil)
//	span.InScope(func() {
//		// Work being measured.
//	})
//	span.Close()
//
// Emitted Metrics:.
//
// Every span's metric key is derived once from its target and name
// ("app::worker" + "shave" -> "app_worker_shave"). Each exit records one
// timing under the key. Close increments the counter under the key by the
// number of enters and records the same number as a value under
// "<key>_enter_count".
//
// Thread Safety:.
//
// Bridge is safe for concurrent use by multiple goroutines. All span state
// lives in a single registry guarded by one mutex, and the mutex is never
// held while a Sink is called.
//
// Handles:.
//
// Handles are only valid between NewSpan and Close. A closed handle may be
// handed out again to a later span. Callbacks with stale handles are ignored.
package spanmetricz

// Handle identifies one live span in a Bridge. Zero is never a valid handle.
type Handle uint64

// Fields carries span field values. The bridge never reads them.
type Fields = map[string]any

// Level mirrors the verbosity a span was declared with.
type Level uint8

// Span levels, from most to least verbose.
const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the lowercase level name.
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Metadata is the static description of a span call site.
// It is shared by every span created from the same call site and must not be
// modified after the first span is started with it.
type Metadata struct {
	Name   string
	Target string
	Level  Level
}

// Subscriber is the callback contract a tracing front end drives.
//
// For every span NewSpan is called exactly once, followed by any number of
// Enter and Exit calls, followed by exactly one Close. After Close the handle
// is invalid and may be reused.
type Subscriber interface {
	NewSpan(meta *Metadata, fields Fields) Handle
	Enter(h Handle)
	Exit(h Handle)
	Record(h Handle, fields Fields)
	Close(h Handle) bool
}
