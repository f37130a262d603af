package spanmetricz

import (
	"container/heap"
	"errors"
	"sync"
)

// MaxHandles is the largest number of spans a registry can hold at once.
const MaxHandles = 1<<31 - 1

// ErrHandleSpaceExhausted is the panic value raised when every handle is in use.
var ErrHandleSpaceExhausted = errors.New("spanmetricz: handle space exhausted")

// registry maps handles to span records.
// A single mutex guards the whole table so slot reuse is atomic with
// insertion, lookup and removal.
type registry struct {
	slots []*spanRecord
	free  freeSlots
	live  int
	mu    sync.Mutex
}

func newRegistry() *registry {
	return &registry{
		slots: make([]*spanRecord, 0, 64),
	}
}

// insert stores rec in the lowest free slot and returns its handle.
func (r *registry) insert(rec spanRecord) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := rec
	var slot int
	if r.free.Len() > 0 {
		slot = heap.Pop(&r.free).(int)
		r.slots[slot] = &stored
	} else {
		if len(r.slots) >= MaxHandles {
			panic(ErrHandleSpaceExhausted)
		}
		slot = len(r.slots)
		r.slots = append(r.slots, &stored)
	}
	r.live++
	return Handle(slot + 1)
}

// lookup returns the record for h. Must be called with mu held.
func (r *registry) lookup(h Handle) *spanRecord {
	if h == 0 || uint64(h) > uint64(len(r.slots)) {
		return nil
	}
	return r.slots[h-1]
}

// get returns a copy of the record for h.
func (r *registry) get(h Handle) (spanRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.lookup(h)
	if rec == nil {
		return spanRecord{}, false
	}
	return *rec, true
}

// update runs fn against the record for h while holding the lock.
// It reports false, without calling fn, when h is stale.
func (r *registry) update(h Handle, fn func(rec *spanRecord)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.lookup(h)
	if rec == nil {
		return false
	}
	fn(rec)
	return true
}

// remove frees the slot for h and returns the record it held.
func (r *registry) remove(h Handle) (spanRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.lookup(h)
	if rec == nil {
		return spanRecord{}, false
	}
	slot := int(h - 1)
	r.slots[slot] = nil
	r.live--

	// Trailing free slots are dropped instead of tracked.
	if slot == len(r.slots)-1 {
		r.slots = r.slots[:slot]
		r.trimTail()
	} else {
		heap.Push(&r.free, slot)
	}
	return *rec, true
}

// trimTail shrinks slots while the last slot is free. Must be called with mu held.
func (r *registry) trimTail() {
	for len(r.slots) > 0 && r.slots[len(r.slots)-1] == nil {
		last := len(r.slots) - 1
		r.free.drop(last)
		r.slots = r.slots[:last]
	}
}

// len returns the number of live records.
func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

// freeSlots is a min-heap of free slot indices.
type freeSlots []int

func (f freeSlots) Len() int           { return len(f) }
func (f freeSlots) Less(i, j int) bool { return f[i] < f[j] }
func (f freeSlots) Swap(i, j int)      { f[i], f[j] = f[j], f[i] }

func (f *freeSlots) Push(x any) { *f = append(*f, x.(int)) }

func (f *freeSlots) Pop() any {
	old := *f
	n := len(old)
	x := old[n-1]
	*f = old[:n-1]
	return x
}

// drop removes slot from the heap if present.
func (f *freeSlots) drop(slot int) {
	for i, s := range *f {
		if s == slot {
			heap.Remove(f, i)
			return
		}
	}
}
