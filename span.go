package spanmetricz

import (
	"sync"
)

// Span is an application-side handle on one span of a Subscriber.
// Enter and Exit must be paired on the goroutine that uses the span.
// Close is safe to call from any goroutine and more than once.
type Span struct {
	sub    Subscriber
	meta   *Metadata
	handle Handle
	once   sync.Once
}

// Start creates a new span on sub. The span is not entered.
func Start(sub Subscriber, meta *Metadata, fields Fields) *Span {
	return &Span{
		sub:    sub,
		meta:   meta,
		handle: sub.NewSpan(meta, fields),
	}
}

// Handle returns the subscriber handle of this span.
func (s *Span) Handle() Handle {
	return s.handle
}

// Metadata returns the call site description the span was started with.
func (s *Span) Metadata() *Metadata {
	return s.meta
}

// Enter makes the span active. Returns s so callers can write
// defer span.Enter().Exit().
func (s *Span) Enter() *Span {
	s.sub.Enter(s.handle)
	return s
}

// Exit ends the span's current active window.
func (s *Span) Exit() {
	s.sub.Exit(s.handle)
}

// InScope runs fn with the span entered.
// The span is exited even if fn panics.
func (s *Span) InScope(fn func()) {
	s.Enter()
	defer s.Exit()
	fn()
}

// Record forwards field values to the subscriber.
func (s *Span) Record(fields Fields) {
	s.sub.Record(s.handle, fields)
}

// Close ends the span. Safe to call multiple times - subsequent calls are no-ops.
func (s *Span) Close() {
	s.once.Do(func() {
		s.sub.Close(s.handle)
	})
}
