package strategy

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Sakeswap/sakeperp-arbitrageur/internal/config"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/perp"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func pairConfig() config.PairConfig {
	return config.PairConfig{
		Pair:             "BTC-BUSD",
		AssetCap:         config.MustDec("1000"),
		Leverage:         config.MustDec("5"),
		MinTradeNotional: config.MustDec("10"),
		FeeRate:          config.MustDec("0.001"),
		CexMinTradeSize:  config.MustDec("0.001"),
	}
}

func TestRegulatedNotionalReducingAddsOpenNotional(t *testing.T) {
	cfg := pairConfig()
	// Long 900 notional, selling: room is 1000 + 900 = 1900.
	pos := perp.Position{Size: dec("9"), OpenNotional: dec("900")}
	got := RegulatedPositionNotional(cfg, pos, perp.Sell, dec("10000"), dec("5000"))
	if !got.Equal(dec("1900")) {
		t.Fatalf("expected 1900, got %s", got)
	}
}

func TestRegulatedNotionalSameDirectionSubtracts(t *testing.T) {
	cfg := pairConfig()
	// Long 900 notional, buying more: room is 1000 - 900 = 100.
	pos := perp.Position{Size: dec("9"), OpenNotional: dec("900")}
	got := RegulatedPositionNotional(cfg, pos, perp.Buy, dec("10000"), dec("5000"))
	if !got.Equal(dec("100")) {
		t.Fatalf("expected 100, got %s", got)
	}
}

func TestRegulatedNotionalCapFloorsAtZero(t *testing.T) {
	cfg := pairConfig()
	pos := perp.Position{Size: dec("-15"), OpenNotional: dec("1500")}
	got := RegulatedPositionNotional(cfg, pos, perp.Sell, dec("10000"), dec("5000"))
	if !got.IsZero() {
		t.Fatalf("expected 0 when open notional exceeds cap, got %s", got)
	}
}

func TestRegulatedNotionalFeeBufferAndLeverage(t *testing.T) {
	cfg := pairConfig()
	// Fee safety margin = 1000 * 0.001 * 3 = 3. Balance 23 leaves
	// (23 - 3) * 5 = 100 leveraged.
	pos := perp.Position{}
	got := RegulatedPositionNotional(cfg, pos, perp.Buy, dec("23"), dec("5000"))
	if !got.Equal(dec("100")) {
		t.Fatalf("expected 100, got %s", got)
	}
}

func TestRegulatedNotionalDustRejected(t *testing.T) {
	cfg := pairConfig()
	pos := perp.Position{}
	got := RegulatedPositionNotional(cfg, pos, perp.Buy, dec("10000"), dec("9.99"))
	if !got.IsZero() {
		t.Fatalf("expected 0 below min trade notional, got %s", got)
	}
}

func TestRegulatedNotionalNegativeBalanceRejected(t *testing.T) {
	cfg := pairConfig()
	pos := perp.Position{}
	// Balance below the fee buffer would produce a negative leveraged cap.
	got := RegulatedPositionNotional(cfg, pos, perp.Buy, dec("1"), dec("5000"))
	if !got.IsZero() {
		t.Fatalf("expected 0, got %s", got)
	}
}

func TestRegulatedNotionalNeverExceedsCapRoom(t *testing.T) {
	cfg := pairConfig()
	positions := []perp.Position{
		{},
		{Size: dec("5"), OpenNotional: dec("500")},
		{Size: dec("-5"), OpenNotional: dec("500")},
		{Size: dec("10"), OpenNotional: dec("1000")},
	}
	for _, pos := range positions {
		for _, side := range []perp.Side{perp.Buy, perp.Sell} {
			got := RegulatedPositionNotional(cfg, pos, side, dec("100000"), dec("100000"))
			room := cfg.AssetCap.Decimal.Add(pos.OpenNotional.Abs())
			if got.GreaterThan(room) {
				t.Fatalf("size=%s side=%s: amount %s exceeds cap room %s", pos.Size, side, got, room)
			}
			if got.Sign() < 0 {
				t.Fatalf("size=%s side=%s: negative amount %s", pos.Size, side, got)
			}
		}
	}
}

func TestCexPositionSizeRoundsToContractDecimals(t *testing.T) {
	got := CexPositionSize(dec("1000"), dec("300"), dec("0.001"))
	if !got.Equal(dec("3.333")) {
		t.Fatalf("expected 3.333, got %s", got)
	}
}

func TestCexPositionSizeBelowMinIsZero(t *testing.T) {
	got := CexPositionSize(dec("1"), dec("30000"), dec("0.001"))
	if !got.IsZero() {
		t.Fatalf("expected 0, got %s", got)
	}
	if got := CexPositionSize(dec("1000"), decimal.Zero, dec("0.001")); !got.IsZero() {
		t.Fatalf("expected 0 for zero price, got %s", got)
	}
}
