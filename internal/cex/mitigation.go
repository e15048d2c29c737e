package cex

import (
	"github.com/shopspring/decimal"

	"github.com/Sakeswap/sakeperp-arbitrageur/internal/perp"
)

// Mitigation is the corrective CEX order that realigns the two legs.
// Mismatch is the magnitude drift between the legs and gates whether the
// order fires; SizeAbs is the order size itself. The two differ when both
// legs sit on the same side.
type Mitigation struct {
	SizeAbs  decimal.Decimal
	Side     perp.Side
	Mismatch decimal.Decimal
}

// MitigatePositionSizeDiff computes the CEX order that restores the hedge
// invariant. diff = cexSize + dexSize; a non-negative diff means the CEX leg
// is net long relative to its target, so it is sold down, and vice versa.
// The trigger is ||cex| - |dex||, not the order size: magnitude-matched legs
// need no mitigation regardless of sign.
func MitigatePositionSizeDiff(dexSize, cexSize decimal.Decimal) Mitigation {
	diff := cexSize.Add(dexSize)
	side := perp.Buy
	if diff.Sign() >= 0 {
		side = perp.Sell
	}
	return Mitigation{
		SizeAbs:  diff.Abs(),
		Side:     side,
		Mismatch: cexSize.Abs().Sub(dexSize.Abs()).Abs(),
	}
}
