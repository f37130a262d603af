package spanmetricz

import (
	"time"

	"github.com/zoobzio/clockz"
)

// clockSource turns a clockz.Clock into monotonic nanosecond readings.
// Readings are relative to the instant the source was created so they fit in
// a uint64 and never depend on wall clock adjustments.
type clockSource struct {
	clock  clockz.Clock
	origin time.Time
}

func newClockSource(clock clockz.Clock) clockSource {
	if clock == nil {
		panic("spanmetricz: nil clock")
	}
	return clockSource{clock: clock, origin: clock.Now()}
}

// now returns nanoseconds elapsed since the source was created.
func (c clockSource) now() uint64 {
	elapsed := c.clock.Now().Sub(c.origin)
	if elapsed < 0 {
		// Only possible with a clock that moves backwards past its origin.
		panic("spanmetricz: clock moved before its origin")
	}
	return uint64(elapsed)
}
