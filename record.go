package spanmetricz

import (
	"fmt"
	"time"
)

// State is where a span is in its lifecycle.
type State uint8

// Span states. A span may move between StateActive and StateExited any number
// of times before it is closed.
const (
	StateCreated State = iota
	StateActive
	StateExited
	StateClosed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateExited:
		return "exited"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ClockRegressionError is the panic value raised when a span exits at an
// earlier instant than it was entered. It means the clock is broken and no
// duration computed from it can be trusted.
type ClockRegressionError struct {
	Key   string
	Enter uint64
	Exit  uint64
}

func (e *ClockRegressionError) Error() string {
	return fmt.Sprintf("spanmetricz: span %q exited at %dns before it was entered at %dns", e.Key, e.Exit, e.Enter)
}

// spanRecord is the lifecycle state of one span.
// Records are owned by the registry and only touched under its lock.
//
//nolint:govet // Field order follows lifecycle, not alignment
type spanRecord struct {
	meta       *Metadata
	key        string
	enterCount uint64
	lastEnter  uint64
	firstEnter uint64
	lastExit   uint64
	entered    bool
	exited     bool
	state      State
}

func newSpanRecord(meta *Metadata) spanRecord {
	return spanRecord{
		meta:  meta,
		key:   MetricName(meta.Target, meta.Name),
		state: StateCreated,
	}
}

// enter starts a new active window at now.
func (r *spanRecord) enter(now uint64) {
	r.enterCount++
	r.lastEnter = now
	if !r.entered {
		r.firstEnter = now
		r.entered = true
	}
	r.state = StateActive
}

// exit ends the active window opened by the most recent enter and returns its
// length. It reports false when the span was never entered.
func (r *spanRecord) exit(now uint64) (time.Duration, bool) {
	if !r.entered {
		return 0, false
	}
	if now < r.lastEnter {
		panic(&ClockRegressionError{Key: r.key, Enter: r.lastEnter, Exit: now})
	}
	r.lastExit = now
	r.exited = true
	r.state = StateExited
	return time.Duration(now - r.lastEnter), true
}

// closeFacts is everything a closed span still has to report.
type closeFacts struct {
	key        string
	enterCount uint64
	window     time.Duration
	hasWindow  bool
}

// close moves the record to its terminal state.
func (r *spanRecord) close() closeFacts {
	r.state = StateClosed
	facts := closeFacts{key: r.key, enterCount: r.enterCount}
	if r.entered && r.exited && r.lastExit >= r.firstEnter {
		facts.window = time.Duration(r.lastExit - r.firstEnter)
		facts.hasWindow = true
	}
	return facts
}

// summary snapshots the record for close handlers.
func (r *spanRecord) summary(h Handle) SpanSummary {
	s := SpanSummary{
		Handle:     h,
		Name:       r.meta.Name,
		Target:     r.meta.Target,
		Key:        r.key,
		EnterCount: r.enterCount,
	}
	if r.entered {
		s.FirstEnter = time.Duration(r.firstEnter)
	}
	if r.exited {
		s.LastExit = time.Duration(r.lastExit)
	}
	return s
}

// SpanSummary describes a span after it closed.
// FirstEnter and LastExit are offsets from the bridge's start, zero when the
// span was never entered or never exited.
type SpanSummary struct {
	Name       string
	Target     string
	Key        string
	Handle     Handle
	EnterCount uint64
	FirstEnter time.Duration
	LastExit   time.Duration
}
