// Package cooldown provides a per-key time-window gate. The engine uses it
// to debounce DEX/CEX order submission and to throttle repeated alert mails.
// Single process, in memory; this is not a distributed lock.
package cooldown

import (
	"sync"
	"time"
)

type Gate struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

func NewGate(window time.Duration) *Gate {
	return &Gate{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether an action for key may run now. A granted call
// records the timestamp, so two calls within the window yield exactly one
// grant.
func (g *Gate) Allow(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if last, ok := g.last[key]; ok && now.Sub(last) < g.window {
		return false
	}
	g.last[key] = now
	return true
}

// Last returns the most recent grant time for key.
func (g *Gate) Last(key string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	last, ok := g.last[key]
	return last, ok
}
