package reliability

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/spanmetricz"
)

// Handle churn tests - verify handles stay unique and state stays isolated
// while spans are created and closed as fast as possible.
// Environment: SPANMETRICZ_RELIABILITY_LEVEL controls test intensity
//   basic: CI-safe churn validation
//   stress: sustained churn for SPANMETRICZ_RELIABILITY_DURATION

func TestHandleChurn(t *testing.T) {
	config := getReliabilityConfig()

	switch config.Level {
	case "basic":
		t.Run("bounded_churn", func(t *testing.T) { testChurn(t, config, 2*time.Second) })
		t.Run("slot_reclaim", testSlotReclaim)
	case "stress":
		t.Run("sustained_churn", func(t *testing.T) { testChurn(t, config, config.Duration) })
		t.Run("slot_reclaim", testSlotReclaim)
	default:
		t.Skip("SPANMETRICZ_RELIABILITY_LEVEL not set, skipping reliability tests")
	}
}

// liveSet tracks which handles are currently owned by a goroutine.
type liveSet struct {
	owned map[spanmetricz.Handle]bool
	mu    sync.Mutex
}

func (l *liveSet) claim(h spanmetricz.Handle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owned[h] {
		return false
	}
	l.owned[h] = true
	return true
}

func (l *liveSet) release(h spanmetricz.Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.owned, h)
}

// testChurn opens and closes spans from many goroutines and checks no live
// handle is ever issued twice.
func testChurn(t *testing.T, config ReliabilityConfig, duration time.Duration) {
	bridge := spanmetricz.New(spanmetricz.NopSink{})

	live := &liveSet{owned: make(map[spanmetricz.Handle]bool)}
	meta := &spanmetricz.Metadata{Target: "reliability::churn", Name: "cycle"}

	var aliased, foreign, cycles atomic.Int64
	deadline := time.Now().Add(duration)

	var wg sync.WaitGroup
	for g := 0; g < config.MaxGoroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handles := make([]spanmetricz.Handle, 0, config.SpansPerCycle)
			for time.Now().Before(deadline) {
				for i := 0; i < config.SpansPerCycle; i++ {
					h := bridge.NewSpan(meta, nil)
					if !live.claim(h) {
						aliased.Add(1)
					}
					handles = append(handles, h)
				}
				for _, h := range handles {
					bridge.Enter(h)
					if _, count, ok := bridge.Lookup(h); !ok || count != 1 {
						foreign.Add(1)
					}
					bridge.Exit(h)
					live.release(h)
					bridge.Close(h)
				}
				handles = handles[:0]
				cycles.Add(1)
			}
		}()
	}
	wg.Wait()

	if aliased.Load() > 0 {
		t.Errorf("%d handles were issued while still live", aliased.Load())
	}
	if foreign.Load() > 0 {
		t.Errorf("%d spans observed state from another span", foreign.Load())
	}
	if bridge.ActiveSpans() != 0 {
		t.Errorf("Expected all slots reclaimed, %d still active", bridge.ActiveSpans())
	}
	if bridge.StaleCalls() != 0 {
		t.Errorf("Expected no stale calls, got %d", bridge.StaleCalls())
	}
	t.Logf("Completed %d churn cycles", cycles.Load())
}

// testSlotReclaim verifies that closing everything lets handles restart at one.
func testSlotReclaim(t *testing.T) {
	bridge := spanmetricz.New(spanmetricz.NopSink{})
	meta := &spanmetricz.Metadata{Name: "reclaim"}

	handles := make([]spanmetricz.Handle, 1000)
	for i := range handles {
		handles[i] = bridge.NewSpan(meta, nil)
	}
	for i := len(handles) - 1; i >= 0; i-- {
		bridge.Close(handles[i])
	}

	if h := bridge.NewSpan(meta, nil); h != 1 {
		t.Errorf("Expected handle 1 after full reclaim, got %d", h)
	}
}
