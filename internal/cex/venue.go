// Package cex defines the centralized-exchange collaborator interface. The
// engine treats every venue implementation as interchangeable; anything
// venue-specific stays inside the adapter.
package cex

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Sakeswap/sakeperp-arbitrageur/internal/perp"
)

type Market struct {
	ID        string
	LastPrice decimal.Decimal
}

type AccountInfo struct {
	FreeCollateral               decimal.Decimal
	TotalAccountValue            decimal.Decimal
	MarginFraction               decimal.Decimal
	MaintenanceMarginRequirement decimal.Decimal
}

// Position is the CEX-leg position. NetSize is signed: positive long,
// negative short.
type Position struct {
	Market      string
	NetSize     decimal.Decimal
	EntryPrice  decimal.Decimal
	RealizedPnl decimal.Decimal
	CostBasis   decimal.Decimal
}

// PositionRisk is per-symbol liquidation data; only some venues provide it.
type PositionRisk struct {
	MarkPrice        decimal.Decimal
	LiquidationPrice decimal.Decimal
}

type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

type Order struct {
	Market   string
	Side     perp.Side
	Size     decimal.Decimal
	Leverage decimal.Decimal
	Type     OrderType
	// Price is nil for market orders.
	Price *decimal.Decimal
}

// Venue is the minimal surface every centralized exchange adapter provides.
type Venue interface {
	Name() string
	Market(ctx context.Context, id string) (Market, error)
	AccountInfo(ctx context.Context) (AccountInfo, error)
	// Position returns nil when the account has no position on the market.
	Position(ctx context.Context, marketID string) (*Position, error)
	TotalPnLs(ctx context.Context) (map[string]decimal.Decimal, error)
	PlaceOrder(ctx context.Context, order Order) error
}

// RiskReader is the optional capability for venues reporting per-symbol
// liquidation prices. The risk monitor only runs where this is implemented.
type RiskReader interface {
	PositionRisk(ctx context.Context, marketID string) (PositionRisk, error)
}

// SpotTransferer is the optional capability to replenish derivatives
// collateral from a spot sub-account.
type SpotTransferer interface {
	TransferFromSpot(ctx context.Context, amount decimal.Decimal) error
}
