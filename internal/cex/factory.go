package cex

import (
	"fmt"
	"sort"
	"sync"
)

// Credentials is everything an adapter needs to sign venue requests.
type Credentials struct {
	APIKey     string
	APISecret  string
	Subaccount string
}

// Factory builds a venue adapter from credentials.
type Factory func(creds Credentials) (Venue, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a venue adapter selectable by platform name. Adapters call
// it from their package init, database/sql style.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if factory == nil {
		panic("cex: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("cex: Register called twice for " + name)
	}
	registry[name] = factory
}

// New selects the adapter for the configured platform. An unrecognized
// platform is a startup-fatal configuration error.
func New(platform string, creds Credentials) (Venue, error) {
	registryMu.RLock()
	factory, ok := registry[platform]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unrecognized cex platform %q (registered: %v)", platform, Platforms())
	}
	return factory(creds)
}

// Platforms lists the registered platform names.
func Platforms() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
