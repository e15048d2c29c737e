package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/Sakeswap/sakeperp-arbitrageur/internal/config"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/perp"
)

// ExitReason names the branch that decided to close a position. Empty means
// hold.
type ExitReason string

const (
	ExitNone        ExitReason = ""
	ExitLongLoss    ExitReason = "long_loss"
	ExitLongProfit  ExitReason = "long_profit"
	ExitShortLoss   ExitReason = "short_loss"
	ExitShortProfit ExitReason = "short_profit"
	ExitLongStop    ExitReason = "long_stop"
	ExitShortStop   ExitReason = "short_stop"
)

// DecideEntry maps the live spread onto an entry side. A spread at or below
// the long trigger opens a DEX long (spread is expected to mean-revert
// upward); at or above the short trigger, a DEX short.
func DecideEntry(spread decimal.Decimal, cfg config.PairConfig) (perp.Side, bool) {
	if spread.LessThanOrEqual(cfg.LongEntryTrigger.Decimal) {
		return perp.Buy, true
	}
	if spread.GreaterThanOrEqual(cfg.ShortEntryTrigger.Decimal) {
		return perp.Sell, true
	}
	return perp.Buy, false
}

// DecideExit evaluates the close triggers for an open position.
//
// While the pool has rebalance headroom (rebalanceGap > 0) the spread-based
// branch applies: a long closes at spread >= longCloseTrigger either as a
// loss cut (CEX price fell below the open price) or as a profit take (AMM
// price rose past the open-price-spread threshold); shorts mirror. Without
// headroom the CEX price is compared directly against the open price using
// the separate stop thresholds.
func DecideExit(pos perp.Position, spread, ammPrice, cexPrice, rebalanceGap decimal.Decimal, cfg config.PairConfig) ExitReason {
	if pos.Size.IsZero() {
		return ExitNone
	}
	openPrice := pos.OpenPrice()
	if openPrice.IsZero() {
		return ExitNone
	}

	if rebalanceGap.Sign() > 0 {
		priceDiff := ammPrice.Sub(openPrice).Div(openPrice)
		if pos.Size.Sign() > 0 {
			if spread.GreaterThanOrEqual(cfg.LongCloseTrigger.Decimal) {
				if priceDiff.GreaterThan(cfg.LongOpenPriceSpread.Decimal) {
					return ExitLongProfit
				}
				if cexPrice.LessThan(openPrice) {
					return ExitLongLoss
				}
			}
			return ExitNone
		}
		if spread.LessThanOrEqual(cfg.ShortCloseTrigger.Decimal) {
			if priceDiff.LessThan(cfg.ShortOpenPriceSpread.Decimal) {
				return ExitShortProfit
			}
			if cexPrice.GreaterThan(openPrice) {
				return ExitShortLoss
			}
		}
		return ExitNone
	}

	priceDiff := cexPrice.Sub(openPrice).Div(openPrice)
	if pos.Size.Sign() > 0 {
		if priceDiff.GreaterThanOrEqual(cfg.LongCexStopSpread.Decimal) {
			return ExitLongStop
		}
		return ExitNone
	}
	if priceDiff.LessThanOrEqual(cfg.ShortCexStopSpread.Decimal) {
		return ExitShortStop
	}
	return ExitNone
}

// Closes reports whether the reason terminates the position.
func (r ExitReason) Closes() bool {
	return r != ExitNone
}
