package spanmetricz

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Worker pool configuration errors.
var (
	ErrInvalidWorkers   = errors.New("workers must be > 0")
	ErrInvalidQueueSize = errors.New("queueSize must be > 0")
)

// AsyncSink forwards observations to another Sink on a bounded worker pool.
// When the queue is full observations are dropped rather than blocking the
// caller; DroppedCount reports how many.
//
//nolint:govet // Field order optimized for functionality over memory
type AsyncSink struct {
	next    Sink
	tasks   chan func()
	stop    chan struct{}
	dropped atomic.Uint64
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
}

var _ Sink = (*AsyncSink)(nil)

// NewAsyncSink starts workers goroutines draining a queue of queueSize calls
// into next.
func NewAsyncSink(next Sink, workers, queueSize int) (*AsyncSink, error) {
	if workers <= 0 {
		return nil, ErrInvalidWorkers
	}
	if queueSize <= 0 {
		return nil, ErrInvalidQueueSize
	}
	if next == nil {
		next = NopSink{}
	}

	a := &AsyncSink{
		next:  next,
		tasks: make(chan func(), queueSize),
		stop:  make(chan struct{}),
	}

	a.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go a.run()
	}
	return a, nil
}

// IncrementCounter implements Sink.
func (a *AsyncSink) IncrementCounter(name string, delta uint64) {
	a.submit(func() { a.next.IncrementCounter(name, delta) })
}

// RecordTiming implements Sink.
func (a *AsyncSink) RecordTiming(name string, d time.Duration) {
	a.submit(func() { a.next.RecordTiming(name, d) })
}

// RecordValue implements Sink.
func (a *AsyncSink) RecordValue(name string, value uint64) {
	a.submit(func() { a.next.RecordValue(name, value) })
}

// DroppedCount returns the number of observations dropped due to a full queue.
func (a *AsyncSink) DroppedCount() uint64 {
	return a.dropped.Load()
}

// Close stops accepting observations, drains the queue and waits for the
// workers to exit.
func (a *AsyncSink) Close() {
	a.once.Do(func() {
		a.closed.Store(true)
		close(a.stop)
		a.wg.Wait()
	})
}

func (a *AsyncSink) run() {
	defer a.wg.Done()
	for {
		select {
		case task := <-a.tasks:
			a.call(task)
		case <-a.stop:
			// Drain what was queued before Close.
			for {
				select {
				case task := <-a.tasks:
					a.call(task)
				default:
					return
				}
			}
		}
	}
}

// call runs task, keeping the worker alive if the downstream sink panics.
func (*AsyncSink) call(task func()) {
	defer func() {
		_ = recover()
	}()
	task()
}

func (a *AsyncSink) submit(task func()) {
	if a.closed.Load() {
		a.dropped.Add(1)
		return
	}
	select {
	case a.tasks <- task:
	default:
		a.dropped.Add(1)
	}
}
