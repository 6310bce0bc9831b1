package gate

import (
	"sync"
	"testing"
)

func TestGate_AcquireRelease(t *testing.T) {
	g := New()

	if !g.Acquire("pay_1") {
		t.Fatal("first Acquire() = false, want true")
	}
	if g.Acquire("pay_1") {
		t.Error("second Acquire() = true while held")
	}
	if !g.Acquire("pay_2") {
		t.Error("Acquire() = false for a different payment")
	}

	g.Release("pay_1")
	if !g.Acquire("pay_1") {
		t.Error("Acquire() = false after Release()")
	}
}

func TestGate_ReleaseUnheld(t *testing.T) {
	g := New()
	g.Release("pay_unknown") // Must not panic
	if g.InFlight() != 0 {
		t.Errorf("InFlight() = %d, want 0", g.InFlight())
	}
}

func TestGate_ConcurrentAcquire(t *testing.T) {
	g := New()

	const n = 100
	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Acquire("pay_1") {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if acquired != 1 {
		t.Errorf("acquired = %d, want exactly 1", acquired)
	}
}
