package spanmetricz

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// TimingMode selects which durations a Bridge reports.
type TimingMode uint8

const (
	// TimingPerExit records one timing on every exit, measured from the most
	// recent enter. This is the default.
	TimingPerExit TimingMode = iota
	// TimingSpanWindow records a single timing at close, measured from the
	// first enter to the last exit.
	TimingSpanWindow
)

// String returns the mode's configuration name.
func (m TimingMode) String() string {
	switch m {
	case TimingPerExit:
		return "per-exit"
	case TimingSpanWindow:
		return "span-window"
	default:
		return "unknown"
	}
}

// CloseHandler is called after a span closes.
type CloseHandler func(summary SpanSummary)

type handlerEntry struct {
	handler CloseHandler
	id      uint64
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithClock sets the clock used to timestamp enters and exits.
// Enables clock injection for deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(b *Bridge) {
		b.clock = clock
	}
}

// WithLogger sets the logger used for dropped callbacks and sink failures.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithTimingMode selects how timings are reported.
func WithTimingMode(mode TimingMode) Option {
	return func(b *Bridge) {
		b.mode = mode
	}
}

// WithIdleReport makes Close report a zero enter count for spans that were
// never entered. By default such spans emit nothing.
func WithIdleReport(enabled bool) Option {
	return func(b *Bridge) {
		b.reportIdle = enabled
	}
}

// WithSinkPanicHook sets a function to be called when the sink panics.
func WithSinkPanicHook(hook func(name string, r interface{})) Option {
	return func(b *Bridge) {
		b.sinkPanicHook = hook
	}
}

// Bridge converts span lifecycles into metrics.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Bridge struct {
	spans         *registry
	emit          *emitter
	logger        *zap.Logger
	clock         clockz.Clock
	src           clockSource
	handlers      []handlerEntry
	panicHook     func(handlerID uint64, r interface{})
	sinkPanicHook func(name string, r interface{})
	handlersLock  sync.RWMutex
	nextID        atomic.Uint64
	staleCalls    atomic.Uint64
	mode          TimingMode
	reportIdle    bool
}

var _ Subscriber = (*Bridge)(nil)

// New creates a bridge that reports to sink.
// Uses the real clock for production behavior.
func New(sink Sink, opts ...Option) *Bridge {
	if sink == nil {
		sink = NopSink{}
	}
	b := &Bridge{
		spans:  newRegistry(),
		logger: zap.NewNop(),
		clock:  clockz.RealClock,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.src = newClockSource(b.clock)
	b.emit = &emitter{
		sink:      sink,
		logger:    b.logger,
		panicHook: b.sinkPanicHook,
	}
	return b
}

// NewSpan registers a span and returns its handle.
// Field values are ignored.
func (b *Bridge) NewSpan(meta *Metadata, _ Fields) Handle {
	if meta == nil {
		meta = &Metadata{}
	}
	return b.spans.insert(newSpanRecord(meta))
}

// Enter marks the span as active from now.
func (b *Bridge) Enter(h Handle) {
	now := b.src.now()
	if !b.spans.update(h, func(rec *spanRecord) { rec.enter(now) }) {
		b.stale("enter", h)
	}
}

// Exit ends the span's current active window and, in TimingPerExit mode,
// records its length. Exiting a span that was never entered records nothing.
func (b *Bridge) Exit(h Handle) {
	now := b.src.now()

	var (
		key      string
		duration time.Duration
		timed    bool
	)
	found := b.spans.update(h, func(rec *spanRecord) {
		duration, timed = rec.exit(now)
		key = rec.key
	})
	if !found {
		b.stale("exit", h)
		return
	}

	// Emit outside the registry lock.
	if timed && b.mode == TimingPerExit {
		b.emit.timing(key, duration)
	}
}

// Record is part of the Subscriber contract. Field values are not metrics.
func (*Bridge) Record(Handle, Fields) {}

// Close removes the span and reports its enter count.
// It returns false when h does not name a live span.
func (b *Bridge) Close(h Handle) bool {
	rec, ok := b.spans.remove(h)
	if !ok {
		b.stale("close", h)
		return false
	}

	facts := rec.close()
	switch {
	case facts.enterCount > 0:
		b.emit.counter(facts.key, facts.enterCount)
		b.emit.value(EnterCountName(facts.key), facts.enterCount)
		if b.mode == TimingSpanWindow && facts.hasWindow {
			b.emit.timing(facts.key, facts.window)
		}
	case b.reportIdle:
		b.emit.value(EnterCountName(facts.key), 0)
	}

	b.executeHandlers(rec.summary(h))
	return true
}

// Lookup returns the current lifecycle state of a live span.
func (b *Bridge) Lookup(h Handle) (State, uint64, bool) {
	rec, ok := b.spans.get(h)
	if !ok {
		return StateClosed, 0, false
	}
	return rec.state, rec.enterCount, true
}

// ActiveSpans returns the number of spans created but not yet closed.
func (b *Bridge) ActiveSpans() int {
	return b.spans.len()
}

// StaleCalls returns how many callbacks referenced an unknown handle.
func (b *Bridge) StaleCalls() uint64 {
	return b.staleCalls.Load()
}

// SinkFailures returns how many sink calls panicked.
func (b *Bridge) SinkFailures() uint64 {
	return b.emit.failures.Load()
}

func (b *Bridge) stale(op string, h Handle) {
	b.staleCalls.Add(1)
	b.logger.Debug("ignoring callback for unknown span",
		zap.String("op", op),
		zap.Uint64("handle", uint64(h)),
	)
}

// OnSpanClose registers a handler called synchronously after a span closes.
func (b *Bridge) OnSpanClose(handler CloseHandler) uint64 {
	if handler == nil {
		return 0
	}

	id := b.nextID.Add(1)

	b.handlersLock.Lock()
	defer b.handlersLock.Unlock()

	b.handlers = append(b.handlers, handlerEntry{
		id:      id,
		handler: handler,
	})

	return id
}

// RemoveHandler removes a handler by ID.
func (b *Bridge) RemoveHandler(id uint64) {
	b.handlersLock.Lock()
	defer b.handlersLock.Unlock()

	// Preserve order
	for i, h := range b.handlers {
		if h.id == id {
			copy(b.handlers[i:], b.handlers[i+1:])
			b.handlers = b.handlers[:len(b.handlers)-1]
			return
		}
	}
}

// SetPanicHook sets a function to be called when a close handler panics.
func (b *Bridge) SetPanicHook(hook func(handlerID uint64, r interface{})) {
	b.handlersLock.Lock()
	defer b.handlersLock.Unlock()
	b.panicHook = hook
}

// executeHandlers calls all registered handlers with the closed span.
func (b *Bridge) executeHandlers(summary SpanSummary) {
	b.handlersLock.RLock()
	if len(b.handlers) == 0 {
		b.handlersLock.RUnlock()
		return
	}

	handlers := make([]handlerEntry, len(b.handlers))
	copy(handlers, b.handlers)
	hook := b.panicHook
	b.handlersLock.RUnlock()

	for _, h := range handlers {
		b.safeCall(h, hook, summary)
	}
}

func (b *Bridge) safeCall(entry handlerEntry, hook func(uint64, interface{}), summary SpanSummary) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("close handler panicked",
				zap.Uint64("handler", entry.id),
				zap.Any("panic", r),
			)
			if hook != nil {
				hook(entry.id, r)
			}
		}
	}()
	entry.handler(summary)
}
