package nonce

import (
	"errors"
	"sort"
	"sync"
	"testing"
)

func TestDoHandsOutGapFreeIncreasingNonces(t *testing.T) {
	s := NewSequencer()
	s.Reset(100)

	var mu sync.Mutex
	var seen []uint64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Do(func(nonce uint64) error {
				mu.Lock()
				seen = append(seen, nonce)
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if len(seen) != 50 {
		t.Fatalf("expected 50 allocations, got %d", len(seen))
	}
	sort.Slice(seen, func(i, j int) bool { return seen[i] < seen[j] })
	for i, nonce := range seen {
		if nonce != uint64(100+i) {
			t.Fatalf("expected gap-free sequence from 100, got %v", seen)
		}
	}
	if s.Next() != 150 {
		t.Fatalf("expected next 150, got %d", s.Next())
	}
}

func TestDoDoesNotAdvanceOnError(t *testing.T) {
	s := NewSequencer()
	s.Reset(7)
	errBoom := errors.New("boom")
	if err := s.Do(func(uint64) error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("expected error passthrough, got %v", err)
	}
	if s.Next() != 7 {
		t.Fatalf("failed submission must not burn a nonce, next=%d", s.Next())
	}
	if err := s.Do(func(nonce uint64) error {
		if nonce != 7 {
			t.Fatalf("expected nonce 7, got %d", nonce)
		}
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Next() != 8 {
		t.Fatalf("expected next 8, got %d", s.Next())
	}
}

func TestDoReleasesOnPanic(t *testing.T) {
	s := NewSequencer()
	func() {
		defer func() { _ = recover() }()
		_ = s.Do(func(uint64) error { panic("submit blew up") })
	}()
	done := make(chan struct{})
	go func() {
		_ = s.Do(func(uint64) error { return nil })
		close(done)
	}()
	select {
	case <-done:
	default:
		// Give the goroutine a chance to run.
		<-done
	}
}
