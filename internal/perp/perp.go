// Package perp defines the collaborator interface for the on-chain
// perpetual-futures venue plus the data types the engine consumes from it.
// The contract bindings themselves live outside this repository.
package perp

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the hedging direction for the other leg.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// PnlCalcOption selects the mark-price candidate used for notional and PnL
// estimates. Spot is the conservative choice for margin sizing.
type PnlCalcOption int

const (
	SpotPrice PnlCalcOption = iota
	TwapPrice
)

// ExchangeState is a read-only snapshot of the AMM pool backing one exchange.
type ExchangeState struct {
	BaseAssetSymbol   string
	QuoteAssetSymbol  string
	BaseAssetReserve  decimal.Decimal
	QuoteAssetReserve decimal.Decimal
}

// Pair derives the config key for this exchange.
func (s ExchangeState) Pair() string {
	return s.BaseAssetSymbol + "-" + s.QuoteAssetSymbol
}

// MarkPrice is the pool price implied by the reserve ratio.
func (s ExchangeState) MarkPrice() decimal.Decimal {
	if s.BaseAssetReserve.IsZero() {
		return decimal.Zero
	}
	return s.QuoteAssetReserve.Div(s.BaseAssetReserve)
}

// Position is the trader's DEX-leg position. Size is signed: positive long,
// negative short.
type Position struct {
	Size                decimal.Decimal
	Margin              decimal.Decimal
	OpenNotional        decimal.Decimal
	LastPremiumFraction decimal.Decimal
}

// OpenPrice is the average entry price implied by the open notional.
func (p Position) OpenPrice() decimal.Decimal {
	if p.Size.IsZero() {
		return decimal.Zero
	}
	return p.OpenNotional.Div(p.Size.Abs())
}

// TxOptions carries the sequencing parameters every chain write must use.
type TxOptions struct {
	Nonce    uint64
	GasPrice decimal.Decimal
}

// PendingTx is a submitted but not yet confirmed chain transaction.
type PendingTx interface {
	Hash() common.Hash
	Nonce() uint64
	GasPrice() decimal.Decimal
	// Wait blocks until the transaction confirms or ctx ends.
	Wait(ctx context.Context) error
}

// Venue is the perpetual exchange collaborator. One implementation per
// deployment, injected at startup.
type Venue interface {
	// OpenExchanges lists the addresses of all currently open exchanges.
	OpenExchanges(ctx context.Context) ([]common.Address, error)
	ExchangeState(ctx context.Context, exchange common.Address) (ExchangeState, error)
	QuoteAsset(ctx context.Context, exchange common.Address) (common.Address, error)
	// Spender is the contract approved to pull quote asset for trades.
	Spender(ctx context.Context) (common.Address, error)

	PositionWithFundingPayment(ctx context.Context, exchange, trader common.Address) (Position, error)
	MarginRatio(ctx context.Context, exchange, trader common.Address) (decimal.Decimal, error)
	PositionNotionalAndUnrealizedPnl(ctx context.Context, exchange, trader common.Address, opt PnlCalcOption) (notional, pnl decimal.Decimal, err error)
	UnrealizedPnl(ctx context.Context, exchange, trader common.Address, opt PnlCalcOption) (decimal.Decimal, error)
	// RebalanceGap is the pool's headroom for moving the AMM; entries are
	// only taken while it is positive.
	RebalanceGap(ctx context.Context, exchange common.Address) (decimal.Decimal, error)
	// CheckWaitingPeriod reports whether the trader may trade the given side
	// now, honoring the opposite-direction waiting period and the allow list.
	CheckWaitingPeriod(ctx context.Context, exchange, trader common.Address, side Side) (bool, error)

	OpenPosition(ctx context.Context, exchange common.Address, side Side, quoteAssetAmount, leverage, baseAssetLimit decimal.Decimal, opts TxOptions) (PendingTx, error)
	ClosePosition(ctx context.Context, exchange common.Address, quoteAssetLimit decimal.Decimal, opts TxOptions) (PendingTx, error)
	AddMargin(ctx context.Context, exchange common.Address, amount decimal.Decimal, opts TxOptions) (PendingTx, error)
	RemoveMargin(ctx context.Context, exchange common.Address, amount decimal.Decimal, opts TxOptions) (PendingTx, error)
}
