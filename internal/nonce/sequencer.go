// Package nonce serializes allocation of on-chain transaction sequence
// numbers across concurrently-running pair tasks.
package nonce

import "sync"

// Sequencer owns the next nonce for a single signing account. The counter is
// reset once per cycle from the account's on-chain transaction count; every
// chain write claims the sequencer for its whole submit critical section.
type Sequencer struct {
	mu   sync.Mutex
	next uint64
}

func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// Reset seeds the counter from the on-chain transaction count.
func (s *Sequencer) Reset(next uint64) {
	s.mu.Lock()
	s.next = next
	s.mu.Unlock()
}

// Next returns the nonce the next Do call will hand out.
func (s *Sequencer) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Do runs fn with the current nonce while holding the sequencer. The counter
// advances only when fn returns nil, so a failed submission does not burn a
// sequence number. Release is guaranteed on every exit path, including a
// panic inside fn.
func (s *Sequencer) Do(fn func(nonce uint64) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.next); err != nil {
		return err
	}
	s.next++
	return nil
}
