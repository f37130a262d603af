package spanmetricz

import "time"

// Fanout sends every observation to each of its sinks in order.
type Fanout []Sink

func (f Fanout) IncrementCounter(name string, delta uint64) {
	for _, s := range f {
		s.IncrementCounter(name, delta)
	}
}

func (f Fanout) RecordTiming(name string, d time.Duration) {
	for _, s := range f {
		s.RecordTiming(name, d)
	}
}

func (f Fanout) RecordValue(name string, value uint64) {
	for _, s := range f {
		s.RecordValue(name, value)
	}
}
