package timeseries

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Sakeswap/sakeperp-arbitrageur/internal/config"
)

func TestDisabledWriterIsNil(t *testing.T) {
	w, err := New(config.AccountingConfig{Enabled: false}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if w != nil {
		t.Fatal("disabled accounting should return a nil writer")
	}
}

func TestNilWriterIsSafe(t *testing.T) {
	var w *Writer
	w.Start(context.Background())
	w.EnqueueCycle(CycleRecord{Time: time.Now()})
	w.EnqueuePair(PairRecord{Time: time.Now(), Pair: "BTC-USDC"})
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestEnabledWriterRequiresDSN(t *testing.T) {
	_, err := New(config.AccountingConfig{Enabled: true}, zap.NewNop())
	if err == nil {
		t.Fatal("expected error for missing dsn")
	}
}
