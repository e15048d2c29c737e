// Package strategy holds the pure decision arithmetic of the arbitrage
// engine: position sizing, margin planning, entry/exit selection and the
// liquidation-distance check. No I/O happens here.
package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/Sakeswap/sakeperp-arbitrageur/internal/config"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/perp"
)

var three = decimal.NewFromInt(3)

// RegulatedPositionNotional caps the slippage-bounded trade notional by the
// configured asset cap, the fee safety buffer and the leveraged quote
// balance, and rejects dust below the minimum trade notional.
//
// Cap rule: trading against the current position (or from flat) may use
// assetCap plus the open notional, since closing room is additive; adding to
// the current direction only has assetCap minus the open notional left.
func RegulatedPositionNotional(cfg config.PairConfig, pos perp.Position, side perp.Side, quoteBalance, maxSlippageAmount decimal.Decimal) decimal.Decimal {
	openNotional := pos.OpenNotional.Abs()

	var maxOpenNotional decimal.Decimal
	reducing := (pos.Size.Sign() >= 0 && side == perp.Sell) ||
		(pos.Size.Sign() <= 0 && side == perp.Buy)
	if reducing {
		maxOpenNotional = cfg.AssetCap.Decimal.Add(openNotional)
	} else {
		maxOpenNotional = cfg.AssetCap.Decimal.Sub(openNotional)
		if maxOpenNotional.Sign() < 0 {
			maxOpenNotional = decimal.Zero
		}
	}

	amount := maxSlippageAmount
	if amount.GreaterThan(maxOpenNotional) {
		amount = maxOpenNotional
	}

	// Reserve three round trips worth of fees before applying leverage.
	feeSafetyMargin := cfg.AssetCap.Decimal.Mul(cfg.FeeRate.Decimal).Mul(three)
	leveraged := quoteBalance.Sub(feeSafetyMargin).Mul(cfg.Leverage.Decimal)
	if amount.GreaterThan(leveraged) {
		amount = leveraged
	}

	if amount.LessThan(cfg.MinTradeNotional.Decimal) {
		return decimal.Zero
	}
	return amount
}

// CexPositionSize converts a DEX notional into the hedge size on the CEX leg,
// rounded to the venue's contract decimals. Sizes below the venue minimum
// collapse to zero so no dust order is ever placed.
func CexPositionSize(notional, cexPrice, minTradeSize decimal.Decimal) decimal.Decimal {
	if cexPrice.IsZero() {
		return decimal.Zero
	}
	size := notional.Div(cexPrice).Abs().Round(3)
	if size.LessThan(minTradeSize) {
		return decimal.Zero
	}
	return size
}
