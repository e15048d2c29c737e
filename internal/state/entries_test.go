package state

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
)

type memStore struct {
	kv map[string]string
}

func newMemStore() *memStore { return &memStore{kv: make(map[string]string)} }

func (m *memStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := m.kv[key]
	return v, ok, nil
}

func (m *memStore) Set(ctx context.Context, key, value string) error {
	m.kv[key] = value
	return nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	delete(m.kv, key)
	return nil
}

func (m *memStore) Close() error { return nil }

func TestEntryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	entries := NewEntryStore(newMemStore())

	spread, err := entries.OpenSpread(ctx, "BTC-PERP")
	if err != nil {
		t.Fatal(err)
	}
	if !spread.IsZero() {
		t.Fatalf("missing entry should read zero, got %s", spread)
	}

	want := decimal.RequireFromString("-0.0123")
	if err := entries.SetOpenSpread(ctx, "BTC-PERP", want); err != nil {
		t.Fatal(err)
	}
	spread, err = entries.OpenSpread(ctx, "BTC-PERP")
	if err != nil {
		t.Fatal(err)
	}
	if !spread.Equal(want) {
		t.Fatalf("spread = %s, want %s", spread, want)
	}

	// Entries are per market.
	other, err := entries.OpenSpread(ctx, "ETH-PERP")
	if err != nil {
		t.Fatal(err)
	}
	if !other.IsZero() {
		t.Fatalf("unrelated market should read zero, got %s", other)
	}

	if err := entries.Clear(ctx, "BTC-PERP"); err != nil {
		t.Fatal(err)
	}
	spread, err = entries.OpenSpread(ctx, "BTC-PERP")
	if err != nil {
		t.Fatal(err)
	}
	if !spread.IsZero() {
		t.Fatalf("cleared entry should read zero, got %s", spread)
	}
}
