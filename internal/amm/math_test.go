package amm

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSpread(t *testing.T) {
	got := Spread(dec("101"), dec("100"))
	if !got.Equal(dec("0.01")) {
		t.Fatalf("expected 0.01, got %s", got)
	}
	if !Spread(dec("100"), decimal.Zero).IsZero() {
		t.Fatalf("expected zero spread for zero cex price")
	}
}

func TestQuoteAssetNeededAtTarget(t *testing.T) {
	// When quote/base already equals the target price no quote asset is needed.
	cases := []struct {
		base, quote, price string
	}{
		{"100", "10000", "100"},
		{"7", "21", "3"},
		{"1250", "100000", "80"},
	}
	for _, tc := range cases {
		got := QuoteAssetNeeded(dec(tc.base), dec(tc.quote), dec(tc.price))
		if !got.IsZero() {
			t.Fatalf("base=%s quote=%s price=%s: expected 0, got %s", tc.base, tc.quote, tc.price, got)
		}
	}
}

func TestQuoteAssetNeededMovesPriceUp(t *testing.T) {
	// Moving a 100/10000 pool (price 100) to price 121 needs
	// sqrt(10000*100*121) - 10000 = 1000.
	got := QuoteAssetNeeded(dec("100"), dec("10000"), dec("121"))
	if !got.Sub(dec("1000")).Abs().LessThan(dec("0.000001")) {
		t.Fatalf("expected 1000, got %s", got)
	}
}

func TestMaxSlippageAmountMonotonic(t *testing.T) {
	base := dec("100")
	quote := dec("10000")
	price := MarkPrice(base, quote)
	prev := MaxSlippageAmount(price, decimal.Zero, base, quote)
	if !prev.Abs().LessThan(dec("0.000001")) {
		t.Fatalf("zero slippage bound should allow ~0, got %s", prev)
	}
	for _, s := range []string{"0.001", "0.005", "0.01", "0.05", "0.1", "0.5"} {
		got := MaxSlippageAmount(price, dec(s), base, quote)
		if !got.GreaterThan(prev) {
			t.Fatalf("slippage %s: expected amount > %s, got %s", s, prev, got)
		}
		prev = got
	}
}

func TestSqrtPrecisionStableAcrossCalls(t *testing.T) {
	// Repeated evaluation within a cycle must not drift.
	base := dec("123456.789")
	quote := dec("987654.321")
	price := MarkPrice(base, quote)
	first := MaxSlippageAmount(price, dec("0.01"), base, quote)
	for i := 0; i < 100; i++ {
		if got := MaxSlippageAmount(price, dec("0.01"), base, quote); !got.Equal(first) {
			t.Fatalf("iteration %d: expected %s, got %s", i, first, got)
		}
	}
}

func TestSqrtExact(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"0", "0"},
		{"1", "1"},
		{"4", "2"},
		{"144", "12"},
		{"10000000000", "100000"},
	} {
		got := sqrt(dec(tc.in))
		if !got.Sub(dec(tc.want)).Abs().LessThan(dec("0.0000000001")) {
			t.Fatalf("sqrt(%s): expected %s, got %s", tc.in, tc.want, got)
		}
	}
}
