package strategy

import "github.com/shopspring/decimal"

// RiskRatio is the relative distance between the mark price and the
// liquidation price: |mark - liq| / liq. ok is false when no liquidation
// price is reported, which callers must treat as safe.
func RiskRatio(markPrice, liquidationPrice decimal.Decimal) (ratio decimal.Decimal, ok bool) {
	if liquidationPrice.IsZero() {
		return decimal.Zero, false
	}
	return markPrice.Sub(liquidationPrice).Div(liquidationPrice).Abs(), true
}

// SpreadImproved reports whether the live spread has moved further from zero
// than the spread recorded at entry. A wider spread means the position is
// worth more closed than held, so a risky position should be unwound rather
// than replenished.
func SpreadImproved(openSpread, spread decimal.Decimal) bool {
	return openSpread.Abs().LessThan(spread.Abs())
}
