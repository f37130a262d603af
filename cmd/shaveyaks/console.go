package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/zoobzio/spanmetricz"
)

// consoleSink prints every observation as a line of text.
type consoleSink struct {
	w  io.Writer
	mu sync.Mutex
}

var _ spanmetricz.Sink = (*consoleSink)(nil)

func newConsoleSink(w io.Writer) *consoleSink {
	return &consoleSink{w: w}
}

func (c *consoleSink) IncrementCounter(name string, delta uint64) {
	c.printf("metrics -> counter(name=%s, value=%d)\n", name, delta)
}

func (c *consoleSink) RecordTiming(name string, d time.Duration) {
	c.printf("metrics -> histogram(name=%s, value=%d)\n", name, d.Nanoseconds())
}

func (c *consoleSink) RecordValue(name string, value uint64) {
	c.printf("metrics -> gauge(name=%s, value=%d)\n", name, value)
}

func (c *consoleSink) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.w, format, args...)
}
