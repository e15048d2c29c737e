// Package amm holds the pure constant-product pool arithmetic used to price
// trades against the on-chain exchange. Everything here is decimal end to end.
package amm

import (
	"math"

	"github.com/shopspring/decimal"
)

var (
	one = decimal.NewFromInt(1)
	two = decimal.NewFromInt(2)
)

// Spread is the relative difference between the AMM mark price and the CEX
// last price: (dex - cex) / cex.
func Spread(dexPrice, cexPrice decimal.Decimal) decimal.Decimal {
	if cexPrice.IsZero() {
		return decimal.Zero
	}
	return dexPrice.Sub(cexPrice).Div(cexPrice)
}

// MarkPrice derives the pool mark price from its reserves.
func MarkPrice(baseReserve, quoteReserve decimal.Decimal) decimal.Decimal {
	if baseReserve.IsZero() {
		return decimal.Zero
	}
	return quoteReserve.Div(baseReserve)
}

// MaxSlippageAmount is the largest quote-asset notional that can be traded
// against the pool without moving the price past (1 + maxSlippage) times the
// current price:
//
//	sqrt(price * (1 + maxSlippage) * baseReserve * quoteReserve) - quoteReserve
func MaxSlippageAmount(price, maxSlippage, baseReserve, quoteReserve decimal.Decimal) decimal.Decimal {
	targetSq := price.Mul(one.Add(maxSlippage)).Mul(baseReserve).Mul(quoteReserve)
	return sqrt(targetSq).Sub(quoteReserve)
}

// QuoteAssetNeeded is the quote-asset amount required to move the pool price
// to targetPrice. Zero when the pool is already there.
func QuoteAssetNeeded(baseReserve, quoteReserve, targetPrice decimal.Decimal) decimal.Decimal {
	if MarkPrice(baseReserve, quoteReserve).Equal(targetPrice) {
		return decimal.Zero
	}
	return sqrt(quoteReserve.Mul(baseReserve).Mul(targetPrice)).Sub(quoteReserve)
}

// sqrt computes a decimal square root by Newton iteration, seeded from the
// float64 estimate. shopspring/decimal has no native square root; the
// iteration converges at decimal.DivisionPrecision digits, which is plenty
// for quote-asset notionals.
func sqrt(d decimal.Decimal) decimal.Decimal {
	if d.Sign() <= 0 {
		return decimal.Zero
	}
	guess := d.Div(two)
	if f, _ := d.Float64(); f > 0 && !math.IsInf(f, 1) {
		guess = decimal.NewFromFloat(math.Sqrt(f))
	}
	if guess.Sign() <= 0 {
		guess = one
	}
	for i := 0; i < 64; i++ {
		next := guess.Add(d.Div(guess)).Div(two)
		if next.Equal(guess) {
			break
		}
		guess = next
	}
	return guess
}
