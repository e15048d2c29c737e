package cooldown

import (
	"sync"
	"testing"
	"time"
)

func TestAllowOncePerWindow(t *testing.T) {
	g := NewGate(4 * time.Second)
	base := time.Unix(1700000000, 0)
	now := base
	g.now = func() time.Time { return now }

	if !g.Allow("BTC-BUSD") {
		t.Fatalf("first call must be granted")
	}
	now = base.Add(3999 * time.Millisecond)
	if g.Allow("BTC-BUSD") {
		t.Fatalf("second call inside the window must be blocked")
	}
	now = base.Add(4 * time.Second)
	if !g.Allow("BTC-BUSD") {
		t.Fatalf("call after the window must be granted")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	g := NewGate(4 * time.Second)
	if !g.Allow("BTC-PERP") {
		t.Fatalf("first key must be granted")
	}
	if !g.Allow("ETH-PERP") {
		t.Fatalf("second key must be granted independently")
	}
}

func TestConcurrentCallsGrantExactlyOne(t *testing.T) {
	g := NewGate(time.Minute)
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Allow("same-key") {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if granted != 1 {
		t.Fatalf("expected exactly one grant, got %d", granted)
	}
}
