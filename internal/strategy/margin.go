package strategy

import "github.com/shopspring/decimal"

// MarginAction is the outcome of a margin-ratio evaluation.
type MarginAction int

const (
	MarginNoop MarginAction = iota
	MarginAdd
	MarginRemove
)

func (a MarginAction) String() string {
	switch a {
	case MarginAdd:
		return "add"
	case MarginRemove:
		return "remove"
	default:
		return "noop"
	}
}

var one = decimal.NewFromInt(1)

// PlanMarginAdjustment compares the observed margin ratio against the target
// implied by leverage (1/leverage) with a tolerance band, and returns the
// margin amount to move.
//
// Removals are capped at the current margin; additions at the available
// quote balance. positionNotional should be the conservative spot-price
// estimate.
func PlanMarginAdjustment(marginRatio, leverage, tolerance, positionNotional, margin, quoteBalance decimal.Decimal) (MarginAction, decimal.Decimal) {
	if leverage.Sign() <= 0 {
		return MarginNoop, decimal.Zero
	}
	target := one.Div(leverage)

	if marginRatio.GreaterThan(target.Mul(one.Add(tolerance))) {
		excess := marginRatio.Sub(target).Mul(positionNotional)
		if excess.GreaterThan(margin) {
			excess = margin
		}
		if excess.Sign() <= 0 {
			return MarginNoop, decimal.Zero
		}
		return MarginRemove, excess
	}

	if marginRatio.LessThan(target.Mul(one.Sub(tolerance))) {
		deficit := target.Sub(marginRatio).Mul(positionNotional)
		if deficit.GreaterThan(quoteBalance) {
			deficit = quoteBalance
		}
		if deficit.Sign() <= 0 {
			return MarginNoop, decimal.Zero
		}
		return MarginAdd, deficit
	}

	return MarginNoop, decimal.Zero
}
