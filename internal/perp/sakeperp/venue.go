// Package sakeperp implements perp.Venue against the deployed SakePerp
// contracts. Only the functions the engine calls are bound; amounts cross
// the boundary as 18-decimal fixed-point words.
package sakeperp

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/Sakeswap/sakeperp-arbitrageur/internal/chain"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/config"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/perp"
)

// Opening the opposite direction within this window after a close is
// rejected by the protocol, so the engine checks before submitting.
const waitingPeriod = 360 * time.Second

const (
	openPositionGasLimit = 2_500_000
	marginGasLimit       = 1_500_000
)

const systemSettingsABI = `[
	{"constant":true,"inputs":[],"name":"getAllExchanges","outputs":[{"name":"","type":"address[]"}],"type":"function"}
]`

const exchangeABI = `[
	{"constant":true,"inputs":[],"name":"open","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"quoteAsset","outputs":[{"name":"","type":"address"}],"type":"function"}
]`

const exchangeReaderABI = `[
	{"constant":true,"inputs":[{"name":"_exchange","type":"address"}],"name":"getExchangeStates","outputs":[{"components":[
		{"name":"quoteAssetReserve","type":"uint256"},
		{"name":"baseAssetReserve","type":"uint256"},
		{"name":"priceFeedKey","type":"string"},
		{"name":"quoteAssetSymbol","type":"string"},
		{"name":"baseAssetSymbol","type":"string"}
	],"name":"","type":"tuple"}],"type":"function"}
]`

const sakePerpABI = `[
	{"constant":true,"inputs":[{"name":"_exchange","type":"address"},{"name":"_trader","type":"address"}],"name":"getMarginRatio","outputs":[{"components":[{"name":"d","type":"int256"}],"name":"","type":"tuple"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"_exchange","type":"address"},{"name":"_trader","type":"address"},{"name":"_pnlCalcOption","type":"uint8"}],"name":"getPositionNotionalAndUnrealizedPnl","outputs":[{"components":[{"name":"d","type":"uint256"}],"name":"positionNotional","type":"tuple"},{"components":[{"name":"d","type":"int256"}],"name":"unrealizedPnl","type":"tuple"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"_exchange","type":"address"},{"name":"_side","type":"uint8"},{"components":[{"name":"d","type":"uint256"}],"name":"_quoteAssetAmount","type":"tuple"},{"components":[{"name":"d","type":"uint256"}],"name":"_leverage","type":"tuple"},{"components":[{"name":"d","type":"uint256"}],"name":"_baseAssetAmountLimit","type":"tuple"}],"name":"openPosition","outputs":[],"type":"function"},
	{"constant":false,"inputs":[{"name":"_exchange","type":"address"},{"components":[{"name":"d","type":"uint256"}],"name":"_quoteAssetAmountLimit","type":"tuple"}],"name":"closePosition","outputs":[],"type":"function"},
	{"constant":false,"inputs":[{"name":"_exchange","type":"address"},{"components":[{"name":"d","type":"uint256"}],"name":"_addedMargin","type":"tuple"}],"name":"addMargin","outputs":[],"type":"function"},
	{"constant":false,"inputs":[{"name":"_exchange","type":"address"},{"components":[{"name":"d","type":"uint256"}],"name":"_removedMargin","type":"tuple"}],"name":"removeMargin","outputs":[],"type":"function"}
]`

const sakePerpViewerABI = `[
	{"constant":true,"inputs":[{"name":"_exchange","type":"address"},{"name":"_trader","type":"address"}],"name":"getPersonalPositionWithFundingPayment","outputs":[{"components":[
		{"components":[{"name":"d","type":"int256"}],"name":"size","type":"tuple"},
		{"components":[{"name":"d","type":"uint256"}],"name":"margin","type":"tuple"},
		{"components":[{"name":"d","type":"uint256"}],"name":"openNotional","type":"tuple"},
		{"components":[{"name":"d","type":"int256"}],"name":"lastUpdatedCumulativePremiumFraction","type":"tuple"},
		{"name":"liquidityHistoryIndex","type":"uint256"},
		{"name":"blockNumber","type":"uint256"}
	],"name":"","type":"tuple"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"_exchange","type":"address"},{"name":"_trader","type":"address"},{"name":"_pnlCalcOption","type":"uint8"}],"name":"getUnrealizedPnl","outputs":[{"components":[{"name":"d","type":"int256"}],"name":"","type":"tuple"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"_exchange","type":"address"},{"name":"_vault","type":"address"}],"name":"getGapForMovingAmm","outputs":[{"components":[{"name":"d","type":"int256"}],"name":"","type":"tuple"}],"type":"function"}
]`

const sakePerpStateABI = `[
	{"constant":true,"inputs":[{"name":"_trader","type":"address"}],"name":"waitingWhitelist","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"_exchange","type":"address"},{"name":"_trader","type":"address"}],"name":"tradingState","outputs":[{"name":"lastestLongTime","type":"uint256"},{"name":"lastestShortTime","type":"uint256"}],"type":"function"}
]`

type wrappedUint struct {
	D *big.Int
}

type wrappedInt struct {
	D *big.Int
}

type positionData struct {
	Size                                 wrappedInt
	Margin                               wrappedUint
	OpenNotional                         wrappedUint
	LastUpdatedCumulativePremiumFraction wrappedInt
	LiquidityHistoryIndex                *big.Int
	BlockNumber                          *big.Int
}

type exchangeStates struct {
	QuoteAssetReserve *big.Int
	BaseAssetReserve  *big.Int
	PriceFeedKey      string
	QuoteAssetSymbol  string
	BaseAssetSymbol   string
}

// Venue talks to the SakePerp deployment named in the contracts config.
type Venue struct {
	client *chain.EthClient

	sakePerpAddr common.Address
	vaultAddr    common.Address

	systemSettings *bind.BoundContract
	exchangeReader *bind.BoundContract
	sakePerp       *bind.BoundContract
	viewer         *bind.BoundContract
	perpState      *bind.BoundContract

	exchangeABI abi.ABI
	now         func() time.Time
}

func New(client *chain.EthClient, cfg config.ContractsConfig) (*Venue, error) {
	parse := func(raw string) (abi.ABI, error) {
		return abi.JSON(strings.NewReader(raw))
	}
	settingsABI, err := parse(systemSettingsABI)
	if err != nil {
		return nil, fmt.Errorf("parse system settings abi: %w", err)
	}
	readerABI, err := parse(exchangeReaderABI)
	if err != nil {
		return nil, fmt.Errorf("parse exchange reader abi: %w", err)
	}
	perpABI, err := parse(sakePerpABI)
	if err != nil {
		return nil, fmt.Errorf("parse sake perp abi: %w", err)
	}
	viewerABI, err := parse(sakePerpViewerABI)
	if err != nil {
		return nil, fmt.Errorf("parse viewer abi: %w", err)
	}
	stateABI, err := parse(sakePerpStateABI)
	if err != nil {
		return nil, fmt.Errorf("parse state abi: %w", err)
	}
	exABI, err := parse(exchangeABI)
	if err != nil {
		return nil, fmt.Errorf("parse exchange abi: %w", err)
	}

	backend := client.Backend()
	bound := func(addr string, parsed abi.ABI) *bind.BoundContract {
		return bind.NewBoundContract(common.HexToAddress(addr), parsed, backend, backend, backend)
	}
	return &Venue{
		client:         client,
		sakePerpAddr:   common.HexToAddress(cfg.SakePerp),
		vaultAddr:      common.HexToAddress(cfg.SakePerpVault),
		systemSettings: bound(cfg.SystemSettings, settingsABI),
		exchangeReader: bound(cfg.ExchangeReader, readerABI),
		sakePerp:       bound(cfg.SakePerp, perpABI),
		viewer:         bound(cfg.SakePerpViewer, viewerABI),
		perpState:      bound(cfg.SakePerpState, stateABI),
		exchangeABI:    exABI,
		now:            time.Now,
	}, nil
}

func fromFixed(x *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(x, -18)
}

func toFixed(d decimal.Decimal) *big.Int {
	return d.Shift(18).Truncate(0).BigInt()
}

func (v *Venue) exchange(addr common.Address) *bind.BoundContract {
	backend := v.client.Backend()
	return bind.NewBoundContract(addr, v.exchangeABI, backend, backend, backend)
}

// OpenExchanges filters the registered exchange list down to the ones
// currently open for trading.
func (v *Venue) OpenExchanges(ctx context.Context) ([]common.Address, error) {
	var out []interface{}
	if err := v.systemSettings.Call(&bind.CallOpts{Context: ctx}, &out, "getAllExchanges"); err != nil {
		return nil, fmt.Errorf("getAllExchanges: %w", err)
	}
	all := out[0].([]common.Address)
	open := make([]common.Address, 0, len(all))
	for _, addr := range all {
		var res []interface{}
		if err := v.exchange(addr).Call(&bind.CallOpts{Context: ctx}, &res, "open"); err != nil {
			return nil, fmt.Errorf("exchange %s open: %w", addr, err)
		}
		if res[0].(bool) {
			open = append(open, addr)
		}
	}
	return open, nil
}

func (v *Venue) ExchangeState(ctx context.Context, exchange common.Address) (perp.ExchangeState, error) {
	var out []interface{}
	if err := v.exchangeReader.Call(&bind.CallOpts{Context: ctx}, &out, "getExchangeStates", exchange); err != nil {
		return perp.ExchangeState{}, fmt.Errorf("getExchangeStates: %w", err)
	}
	states := *abi.ConvertType(out[0], new(exchangeStates)).(*exchangeStates)
	return perp.ExchangeState{
		BaseAssetSymbol:   states.BaseAssetSymbol,
		QuoteAssetSymbol:  states.QuoteAssetSymbol,
		BaseAssetReserve:  fromFixed(states.BaseAssetReserve),
		QuoteAssetReserve: fromFixed(states.QuoteAssetReserve),
	}, nil
}

func (v *Venue) QuoteAsset(ctx context.Context, exchange common.Address) (common.Address, error) {
	var out []interface{}
	if err := v.exchange(exchange).Call(&bind.CallOpts{Context: ctx}, &out, "quoteAsset"); err != nil {
		return common.Address{}, fmt.Errorf("quoteAsset: %w", err)
	}
	return out[0].(common.Address), nil
}

// Spender is the SakePerp contract; it pulls quote asset on open and margin
// adds.
func (v *Venue) Spender(ctx context.Context) (common.Address, error) {
	return v.sakePerpAddr, nil
}

func (v *Venue) PositionWithFundingPayment(ctx context.Context, exchange, trader common.Address) (perp.Position, error) {
	var out []interface{}
	if err := v.viewer.Call(&bind.CallOpts{Context: ctx}, &out, "getPersonalPositionWithFundingPayment", exchange, trader); err != nil {
		return perp.Position{}, fmt.Errorf("getPersonalPositionWithFundingPayment: %w", err)
	}
	pos := *abi.ConvertType(out[0], new(positionData)).(*positionData)
	return perp.Position{
		Size:                fromFixed(pos.Size.D),
		Margin:              fromFixed(pos.Margin.D),
		OpenNotional:        fromFixed(pos.OpenNotional.D),
		LastPremiumFraction: fromFixed(pos.LastUpdatedCumulativePremiumFraction.D),
	}, nil
}

func (v *Venue) MarginRatio(ctx context.Context, exchange, trader common.Address) (decimal.Decimal, error) {
	var out []interface{}
	if err := v.sakePerp.Call(&bind.CallOpts{Context: ctx}, &out, "getMarginRatio", exchange, trader); err != nil {
		return decimal.Zero, fmt.Errorf("getMarginRatio: %w", err)
	}
	ratio := *abi.ConvertType(out[0], new(wrappedInt)).(*wrappedInt)
	return fromFixed(ratio.D), nil
}

func (v *Venue) PositionNotionalAndUnrealizedPnl(ctx context.Context, exchange, trader common.Address, opt perp.PnlCalcOption) (decimal.Decimal, decimal.Decimal, error) {
	var out []interface{}
	if err := v.sakePerp.Call(&bind.CallOpts{Context: ctx}, &out, "getPositionNotionalAndUnrealizedPnl", exchange, trader, uint8(opt)); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("getPositionNotionalAndUnrealizedPnl: %w", err)
	}
	notional := *abi.ConvertType(out[0], new(wrappedUint)).(*wrappedUint)
	pnl := *abi.ConvertType(out[1], new(wrappedInt)).(*wrappedInt)
	return fromFixed(notional.D), fromFixed(pnl.D), nil
}

func (v *Venue) UnrealizedPnl(ctx context.Context, exchange, trader common.Address, opt perp.PnlCalcOption) (decimal.Decimal, error) {
	var out []interface{}
	if err := v.viewer.Call(&bind.CallOpts{Context: ctx}, &out, "getUnrealizedPnl", exchange, trader, uint8(opt)); err != nil {
		return decimal.Zero, fmt.Errorf("getUnrealizedPnl: %w", err)
	}
	pnl := *abi.ConvertType(out[0], new(wrappedInt)).(*wrappedInt)
	return fromFixed(pnl.D), nil
}

func (v *Venue) RebalanceGap(ctx context.Context, exchange common.Address) (decimal.Decimal, error) {
	var out []interface{}
	if err := v.viewer.Call(&bind.CallOpts{Context: ctx}, &out, "getGapForMovingAmm", exchange, v.vaultAddr); err != nil {
		return decimal.Zero, fmt.Errorf("getGapForMovingAmm: %w", err)
	}
	gap := *abi.ConvertType(out[0], new(wrappedInt)).(*wrappedInt)
	return fromFixed(gap.D), nil
}

// CheckWaitingPeriod enforces the protocol's opposite-direction cooldown.
// Whitelisted traders skip it.
func (v *Venue) CheckWaitingPeriod(ctx context.Context, exchange, trader common.Address, side perp.Side) (bool, error) {
	var out []interface{}
	if err := v.perpState.Call(&bind.CallOpts{Context: ctx}, &out, "waitingWhitelist", trader); err != nil {
		return false, fmt.Errorf("waitingWhitelist: %w", err)
	}
	if out[0].(bool) {
		return true, nil
	}
	out = nil
	if err := v.perpState.Call(&bind.CallOpts{Context: ctx}, &out, "tradingState", exchange, trader); err != nil {
		return false, fmt.Errorf("tradingState: %w", err)
	}
	lastLong := time.Unix(out[0].(*big.Int).Int64(), 0)
	lastShort := time.Unix(out[1].(*big.Int).Int64(), 0)
	now := v.now()
	// A buy waits out the last short and vice versa.
	if side == perp.Buy {
		return !lastShort.Add(waitingPeriod).After(now), nil
	}
	return !lastLong.Add(waitingPeriod).After(now), nil
}

func (v *Venue) transactOpts(ctx context.Context, opts perp.TxOptions, gasLimit uint64) *bind.TransactOpts {
	topts := v.client.TransactOpts(ctx, opts)
	// Estimation runs too tight on these calls; pin the limit.
	topts.GasLimit = gasLimit
	return topts
}

func (v *Venue) OpenPosition(ctx context.Context, exchange common.Address, side perp.Side, quoteAssetAmount, leverage, baseAssetLimit decimal.Decimal, opts perp.TxOptions) (perp.PendingTx, error) {
	tx, err := v.sakePerp.Transact(v.transactOpts(ctx, opts, openPositionGasLimit), "openPosition",
		exchange, uint8(side),
		wrappedUint{D: toFixed(quoteAssetAmount)},
		wrappedUint{D: toFixed(leverage)},
		wrappedUint{D: toFixed(baseAssetLimit)},
	)
	if err != nil {
		return nil, fmt.Errorf("openPosition: %w", err)
	}
	return chain.NewSentTx(v.client.Backend(), tx), nil
}

func (v *Venue) ClosePosition(ctx context.Context, exchange common.Address, quoteAssetLimit decimal.Decimal, opts perp.TxOptions) (perp.PendingTx, error) {
	tx, err := v.sakePerp.Transact(v.transactOpts(ctx, opts, openPositionGasLimit), "closePosition",
		exchange, wrappedUint{D: toFixed(quoteAssetLimit)})
	if err != nil {
		return nil, fmt.Errorf("closePosition: %w", err)
	}
	return chain.NewSentTx(v.client.Backend(), tx), nil
}

func (v *Venue) AddMargin(ctx context.Context, exchange common.Address, amount decimal.Decimal, opts perp.TxOptions) (perp.PendingTx, error) {
	tx, err := v.sakePerp.Transact(v.transactOpts(ctx, opts, marginGasLimit), "addMargin",
		exchange, wrappedUint{D: toFixed(amount)})
	if err != nil {
		return nil, fmt.Errorf("addMargin: %w", err)
	}
	return chain.NewSentTx(v.client.Backend(), tx), nil
}

func (v *Venue) RemoveMargin(ctx context.Context, exchange common.Address, amount decimal.Decimal, opts perp.TxOptions) (perp.PendingTx, error) {
	tx, err := v.sakePerp.Transact(v.transactOpts(ctx, opts, marginGasLimit), "removeMargin",
		exchange, wrappedUint{D: toFixed(amount)})
	if err != nil {
		return nil, fmt.Errorf("removeMargin: %w", err)
	}
	return chain.NewSentTx(v.client.Backend(), tx), nil
}
