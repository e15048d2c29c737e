package state

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

const entryKeyPrefix = "entry:"

// EntryStore records the spread observed when a position was opened, keyed
// by CEX market. A restarted process reads the last recorded value back; a
// market with no record reports a zero spread.
type EntryStore struct {
	store Store
}

func NewEntryStore(store Store) *EntryStore {
	return &EntryStore{store: store}
}

func (e *EntryStore) OpenSpread(ctx context.Context, marketID string) (decimal.Decimal, error) {
	raw, ok, err := e.store.Get(ctx, entryKeyPrefix+marketID)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func (e *EntryStore) SetOpenSpread(ctx context.Context, marketID string, spread decimal.Decimal) error {
	return e.store.Set(ctx, entryKeyPrefix+marketID, spread.String())
}

// Clear resets the recorded entry after both legs close.
func (e *EntryStore) Clear(ctx context.Context, marketID string) error {
	return e.store.Delete(ctx, entryKeyPrefix+marketID)
}
