// Package engine runs the arbitrage cycle: preflight gates, per-pair
// evaluation, and the paired DEX/CEX order flow.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Sakeswap/sakeperp-arbitrageur/internal/alerts"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/amm"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/cex"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/chain"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/config"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/cooldown"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/metrics"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/nonce"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/perp"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/state"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/strategy"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/timeseries"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/token"
)

// Orders on either leg are debounced per market so a slow cycle overlapping
// the next one cannot double-submit.
const submitDebounce = 4 * time.Second

var two = decimal.NewFromInt(2)

// Recorder receives the accounting rows the cycle produces.
type Recorder interface {
	EnqueueCycle(timeseries.CycleRecord)
	EnqueuePair(timeseries.PairRecord)
}

// Deps carries every collaborator the engine needs. All fields except
// Recorder are required.
type Deps struct {
	Config     *config.Config
	Log        *zap.Logger
	Chain      chain.Client
	Venue      perp.Venue
	Ledger     token.Ledger
	Cex        cex.Venue
	Trader     common.Address
	Entries    *state.EntryStore
	Notifier   *alerts.Notifier
	Metrics    *metrics.Metrics
	Recorder   Recorder
	Supervisor *chain.Supervisor
}

type Engine struct {
	cfg        *config.Config
	log        *zap.Logger
	chain      chain.Client
	venue      perp.Venue
	ledger     token.Ledger
	cex        cex.Venue
	trader     common.Address
	entries    *state.EntryStore
	notifier   *alerts.Notifier
	metrics    *metrics.Metrics
	recorder   Recorder
	supervisor *chain.Supervisor

	sequencer *nonce.Sequencer
	dexGate   *cooldown.Gate
	cexGate   *cooldown.Gate
}

func New(deps Deps) *Engine {
	m := deps.Metrics
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Engine{
		cfg:        deps.Config,
		log:        deps.Log,
		chain:      deps.Chain,
		venue:      deps.Venue,
		ledger:     deps.Ledger,
		cex:        deps.Cex,
		trader:     deps.Trader,
		entries:    deps.Entries,
		notifier:   deps.Notifier,
		metrics:    m,
		recorder:   deps.Recorder,
		supervisor: deps.Supervisor,
		sequencer:  nonce.NewSequencer(),
		dexGate:    cooldown.NewGate(submitDebounce),
		cexGate:    cooldown.NewGate(submitDebounce),
	}
}

// RunInterval runs cycles on the configured interval until ctx ends. Cycle
// errors are logged, never fatal.
func (e *Engine) RunInterval(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()
	for {
		if err := e.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.log.Error("cycle failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single arbitrage cycle.
func (e *Engine) RunOnce(ctx context.Context) error {
	e.metrics.CyclesRun.Inc()
	start := time.Now()

	txCount, err := e.chain.TransactionCount(ctx, e.trader)
	if err != nil {
		e.metrics.CyclesAborted.Inc()
		return fmt.Errorf("transaction count: %w", err)
	}
	e.sequencer.Reset(txCount)

	if err := e.preflightChain(ctx); err != nil {
		e.metrics.CyclesAborted.Inc()
		return err
	}
	cexInfo, err := e.preflightCex(ctx)
	if err != nil {
		e.metrics.CyclesAborted.Inc()
		return err
	}
	gasPrice, err := e.chain.SafeGasPrice(ctx)
	if err != nil {
		e.metrics.CyclesAborted.Inc()
		return fmt.Errorf("gas price: %w", err)
	}

	if pnls, err := e.cex.TotalPnLs(ctx); err != nil {
		e.log.Warn("cex pnl fetch failed", zap.Error(err))
	} else {
		for market, pnl := range pnls {
			e.log.Info("cex realized pnl", zap.String("market", market), zap.String("pnl", pnl.String()))
		}
	}

	exchanges, err := e.venue.OpenExchanges(ctx)
	if err != nil {
		e.metrics.CyclesAborted.Inc()
		return fmt.Errorf("open exchanges: %w", err)
	}

	acc := newAccumulator()
	var wg sync.WaitGroup
	for _, exchange := range exchanges {
		wg.Add(1)
		go func(exchange common.Address) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					e.metrics.PairFailures.Inc()
					e.log.Error("pair task panicked",
						zap.Stringer("exchange", exchange),
						zap.Any("panic", r),
						zap.Stack("stack"))
				}
			}()
			if err := e.arbitragePair(ctx, exchange, gasPrice, acc); err != nil {
				e.metrics.PairFailures.Inc()
				e.log.Error("pair evaluation failed",
					zap.Stringer("exchange", exchange), zap.Error(err))
			}
		}(exchange)
	}
	wg.Wait()

	// Positions are valued after the fan-out so a leg closed this cycle no
	// longer counts toward the account value.
	positionValue := e.positionValue(ctx, acc.pairExchanges())
	total := acc.quoteTotal().Add(positionValue).Add(cexInfo.TotalAccountValue)
	e.log.Info("cycle complete",
		zap.String("total_account_value", total.String()),
		zap.String("cex_account_value", cexInfo.TotalAccountValue.String()),
		zap.Duration("elapsed", time.Since(start)),
	)
	if e.recorder != nil {
		e.recorder.EnqueueCycle(timeseries.CycleRecord{
			Time:            time.Now(),
			TotalValue:      total,
			DexQuoteBalance: acc.quoteTotal(),
			CexAccountValue: cexInfo.TotalAccountValue,
			PositionValue:   positionValue,
		})
	}
	return nil
}

// positionValue sums margin plus unrealized PnL over the configured pairs.
// Read failures degrade the accounting row, never the cycle.
func (e *Engine) positionValue(ctx context.Context, exchanges []common.Address) decimal.Decimal {
	total := decimal.Zero
	for _, exchange := range exchanges {
		position, err := e.venue.PositionWithFundingPayment(ctx, exchange, e.trader)
		if err != nil {
			e.log.Warn("position re-read failed", zap.Stringer("exchange", exchange), zap.Error(err))
			continue
		}
		if position.Size.IsZero() {
			continue
		}
		pnl, err := e.venue.UnrealizedPnl(ctx, exchange, e.trader, perp.SpotPrice)
		if err != nil {
			e.log.Warn("pnl re-read failed", zap.Stringer("exchange", exchange), zap.Error(err))
			continue
		}
		total = total.Add(position.Margin.Add(pnl))
	}
	return total
}

// preflightChain verifies the node is following the chain and the account
// can pay for gas.
func (e *Engine) preflightChain(ctx context.Context) error {
	number, err := e.chain.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("block number: %w", err)
	}
	ts, err := e.chain.BlockTimestamp(ctx, number)
	if err != nil {
		return fmt.Errorf("block timestamp: %w", err)
	}
	if age := time.Since(ts); age > e.cfg.Preflight.BlockFreshnessThreshold {
		e.notifier.Notify(ctx, "BlockNumberOutdated",
			fmt.Sprintf("latest block %d is %s old", number, age.Round(time.Second)))
		return fmt.Errorf("latest block %d is stale by %s", number, age.Round(time.Second))
	}

	gas, err := e.chain.Balance(ctx, e.trader)
	if err != nil {
		return fmt.Errorf("gas balance: %w", err)
	}
	if gas.LessThan(e.cfg.Preflight.GasBalanceThreshold.Decimal) {
		e.notifier.Notify(ctx, "GasNotEnough", fmt.Sprintf("gas balance %s below threshold %s",
			gas, e.cfg.Preflight.GasBalanceThreshold))
		return fmt.Errorf("gas balance %s below threshold", gas)
	}
	return nil
}

// preflightCex verifies the CEX account can absorb new hedges, topping up
// from the spot wallet where the venue supports it.
func (e *Engine) preflightCex(ctx context.Context) (cex.AccountInfo, error) {
	info, err := e.cex.AccountInfo(ctx)
	if err != nil {
		return cex.AccountInfo{}, fmt.Errorf("cex account info: %w", err)
	}
	threshold := e.cfg.Preflight.CexBalanceThreshold.Decimal
	if info.FreeCollateral.LessThan(threshold) {
		if transferer, ok := e.cex.(cex.SpotTransferer); ok {
			topUp := threshold.Sub(info.FreeCollateral)
			if err := transferer.TransferFromSpot(ctx, topUp); err != nil {
				e.log.Warn("spot transfer failed", zap.Error(err))
			} else {
				e.log.Info("cex collateral topped up from spot", zap.String("amount", topUp.String()))
				// Both gates run again on the refreshed snapshot.
				if info, err = e.cex.AccountInfo(ctx); err != nil {
					return cex.AccountInfo{}, fmt.Errorf("cex account info: %w", err)
				}
			}
		}
		if info.FreeCollateral.LessThan(threshold) {
			e.notifier.Notify(ctx, "CexBalanceNotEnough",
				fmt.Sprintf("free collateral %s below threshold %s", info.FreeCollateral, threshold))
			return cex.AccountInfo{}, fmt.Errorf("cex free collateral %s below threshold", info.FreeCollateral)
		}
	}
	marginThreshold := e.cfg.Preflight.CexMarginRatioThreshold.Decimal
	if info.MarginFraction.Sign() > 0 && info.MarginFraction.LessThan(marginThreshold) {
		e.notifier.Notify(ctx, "CexMarginRatioTooLow",
			fmt.Sprintf("margin fraction %s below threshold %s", info.MarginFraction, marginThreshold))
		return cex.AccountInfo{}, fmt.Errorf("cex margin fraction %s below threshold", info.MarginFraction)
	}
	return info, nil
}

func (e *Engine) arbitragePair(ctx context.Context, exchange common.Address, gasPrice decimal.Decimal, acc *accumulator) error {
	st, err := e.venue.ExchangeState(ctx, exchange)
	if err != nil {
		return fmt.Errorf("exchange state: %w", err)
	}
	pair := st.Pair()
	pairCfg, ok := e.cfg.PairFor(pair)
	if !ok || !pairCfg.Enabled {
		e.log.Debug("pair not configured, skipping", zap.String("pair", pair))
		return nil
	}
	acc.addExchange(exchange)
	log := e.log.With(zap.String("pair", pair))

	quoteToken, err := e.venue.QuoteAsset(ctx, exchange)
	if err != nil {
		return fmt.Errorf("quote asset: %w", err)
	}
	quoteBalance, err := e.ledger.BalanceOf(ctx, quoteToken, e.trader)
	if err != nil {
		return fmt.Errorf("quote balance: %w", err)
	}
	acc.setQuoteBalance(quoteToken, quoteBalance)
	if quoteBalance.LessThan(e.cfg.Preflight.QuoteBalanceThreshold.Decimal) {
		// Low quote balance shrinks sizing but does not stop the pair: an
		// open position must remain manageable.
		log.Warn("quote balance below threshold",
			zap.String("balance", quoteBalance.String()),
			zap.String("threshold", e.cfg.Preflight.QuoteBalanceThreshold.String()))
	}

	if err := e.ensureAllowance(ctx, quoteToken, gasPrice, log); err != nil {
		return err
	}

	position, err := e.venue.PositionWithFundingPayment(ctx, exchange, e.trader)
	if err != nil {
		return fmt.Errorf("dex position: %w", err)
	}
	cexPosition, err := e.cex.Position(ctx, pairCfg.CexMarketID)
	if err != nil {
		return fmt.Errorf("cex position: %w", err)
	}
	cexSize := decimal.Zero
	if cexPosition != nil {
		cexSize = cexPosition.NetSize
	}

	if err := e.mitigateSizeDiff(ctx, pairCfg, position.Size, cexSize, log); err != nil {
		return err
	}

	if !position.Size.IsZero() {
		if err := e.maintainMargin(ctx, exchange, pairCfg, position, quoteBalance, gasPrice, log); err != nil {
			return err
		}
		pnl, err := e.venue.UnrealizedPnl(ctx, exchange, e.trader, perp.SpotPrice)
		if err != nil {
			return fmt.Errorf("unrealized pnl: %w", err)
		}
		log.Info("dex position",
			zap.String("size", position.Size.String()),
			zap.String("margin", position.Margin.String()),
			zap.String("unrealized_pnl", pnl.String()))
	}

	// Refresh reserves after any mitigation or margin tx moved the pool.
	st, err = e.venue.ExchangeState(ctx, exchange)
	if err != nil {
		return fmt.Errorf("exchange state refresh: %w", err)
	}
	ammPrice := st.MarkPrice()
	market, err := e.cex.Market(ctx, pairCfg.CexMarketID)
	if err != nil {
		return fmt.Errorf("cex market: %w", err)
	}
	cexPrice := market.LastPrice
	spread := amm.Spread(ammPrice, cexPrice)
	log.Info("prices",
		zap.String("amm", ammPrice.String()),
		zap.String("cex", cexPrice.String()),
		zap.String("spread", spread.String()))

	if e.recorder != nil {
		e.recorder.EnqueuePair(timeseries.PairRecord{
			Time:        time.Now(),
			Pair:        pair,
			AmmPrice:    ammPrice,
			CexPrice:    cexPrice,
			Spread:      spread,
			DexPosition: position.Size,
			CexPosition: cexSize,
		})
	}

	if !position.Size.IsZero() {
		return e.manageOpenPosition(ctx, exchange, pairCfg, position, cexSize, spread, ammPrice, cexPrice, gasPrice, log)
	}
	return e.tryEnter(ctx, exchange, st, pairCfg, position, quoteBalance, spread, ammPrice, cexPrice, gasPrice, log)
}

// ensureAllowance keeps the venue's spender approved. The allowance is
// re-raised to the maximum once spending has eaten through half of it.
func (e *Engine) ensureAllowance(ctx context.Context, quoteToken common.Address, gasPrice decimal.Decimal, log *zap.Logger) error {
	spender, err := e.venue.Spender(ctx)
	if err != nil {
		return fmt.Errorf("spender: %w", err)
	}
	allowance, err := e.ledger.Allowance(ctx, quoteToken, e.trader, spender)
	if err != nil {
		return fmt.Errorf("allowance: %w", err)
	}
	max, err := e.ledger.MaxApproval(ctx, quoteToken)
	if err != nil {
		return fmt.Errorf("max approval: %w", err)
	}
	if allowance.GreaterThanOrEqual(max.Div(two)) {
		return nil
	}
	log.Info("raising allowance", zap.Stringer("spender", spender))
	submitted, err := e.submitChainTx(ctx, "approve:"+quoteToken.Hex(), gasPrice, func(opts perp.TxOptions) (perp.PendingTx, error) {
		return e.ledger.Approve(ctx, quoteToken, spender, max, opts)
	})
	if err != nil {
		return fmt.Errorf("approve: %w", err)
	}
	if !submitted {
		log.Debug("approve debounced")
	}
	return nil
}

// mitigateSizeDiff realigns the CEX hedge when the leg magnitudes have
// drifted apart by at least the venue's minimum trade size.
func (e *Engine) mitigateSizeDiff(ctx context.Context, pairCfg config.PairConfig, dexSize, cexSize decimal.Decimal, log *zap.Logger) error {
	m := cex.MitigatePositionSizeDiff(dexSize, cexSize)
	if m.Mismatch.LessThan(pairCfg.CexMinTradeSize.Decimal) || m.SizeAbs.IsZero() {
		return nil
	}
	log.Warn("position size mismatch",
		zap.String("dex", dexSize.String()),
		zap.String("cex", cexSize.String()),
		zap.String("mitigation", m.SizeAbs.String()),
		zap.Stringer("side", m.Side))
	e.notifier.Notify(ctx, "PositionSizeNotMatch",
		fmt.Sprintf("%s: dex %s cex %s, mitigating %s %s",
			pairCfg.Pair, dexSize, cexSize, m.Side, m.SizeAbs))
	return e.placeCexOrder(ctx, cex.Order{
		Market: pairCfg.CexMarketID,
		Side:   m.Side,
		Size:   m.SizeAbs,
		Type:   cex.OrderMarket,
	}, log)
}

// maintainMargin moves the DEX margin back toward the 1/leverage target and
// verifies the ratio afterwards.
func (e *Engine) maintainMargin(ctx context.Context, exchange common.Address, pairCfg config.PairConfig, position perp.Position, quoteBalance, gasPrice decimal.Decimal, log *zap.Logger) error {
	ratio, err := e.venue.MarginRatio(ctx, exchange, e.trader)
	if err != nil {
		return fmt.Errorf("margin ratio: %w", err)
	}
	notional, _, err := e.venue.PositionNotionalAndUnrealizedPnl(ctx, exchange, e.trader, perp.SpotPrice)
	if err != nil {
		return fmt.Errorf("position notional: %w", err)
	}
	action, amount := strategy.PlanMarginAdjustment(
		ratio, pairCfg.Leverage.Decimal, pairCfg.AdjustMarginRatioThreshold.Decimal,
		notional, position.Margin, quoteBalance)
	if action == strategy.MarginNoop {
		return nil
	}
	log.Info("adjusting margin",
		zap.Stringer("action", action),
		zap.String("amount", amount.String()),
		zap.String("ratio", ratio.String()))
	key := "margin:" + exchange.Hex()
	submitted, err := e.submitChainTx(ctx, key, gasPrice, func(opts perp.TxOptions) (perp.PendingTx, error) {
		if action == strategy.MarginAdd {
			return e.venue.AddMargin(ctx, exchange, amount, opts)
		}
		return e.venue.RemoveMargin(ctx, exchange, amount, opts)
	})
	if err != nil {
		return fmt.Errorf("%s margin: %w", action, err)
	}
	if !submitted {
		return nil
	}
	e.metrics.MarginAdjustments.Inc()
	after, err := e.venue.MarginRatio(ctx, exchange, e.trader)
	if err != nil {
		return fmt.Errorf("margin ratio recheck: %w", err)
	}
	log.Info("margin adjusted", zap.String("ratio", after.String()))
	return nil
}

func (e *Engine) manageOpenPosition(ctx context.Context, exchange common.Address, pairCfg config.PairConfig, position perp.Position, cexSize, spread, ammPrice, cexPrice, gasPrice decimal.Decimal, log *zap.Logger) error {
	safe, err := e.checkCexRisk(ctx, exchange, pairCfg, cexSize, spread, gasPrice, log)
	if err != nil {
		return err
	}
	if !safe {
		return nil
	}

	gap, err := e.venue.RebalanceGap(ctx, exchange)
	if err != nil {
		return fmt.Errorf("rebalance gap: %w", err)
	}
	reason := strategy.DecideExit(position, spread, ammPrice, cexPrice, gap, pairCfg)
	if !reason.Closes() {
		return nil
	}
	log.Info("closing position",
		zap.String("reason", string(reason)),
		zap.String("spread", spread.String()))
	if err := e.closeBothLegs(ctx, exchange, pairCfg, cexSize, gasPrice, log); err != nil {
		return err
	}
	e.notifier.Notify(ctx, "PositionClosed",
		fmt.Sprintf("%s closed: %s, spread %s", pairCfg.Pair, reason, spread))
	return nil
}

// checkCexRisk unwinds or replenishes a CEX position drifting toward its
// liquidation price. Returns false when the pair should be left alone for
// the rest of the cycle.
func (e *Engine) checkCexRisk(ctx context.Context, exchange common.Address, pairCfg config.PairConfig, cexSize, spread, gasPrice decimal.Decimal, log *zap.Logger) (bool, error) {
	reader, ok := e.cex.(cex.RiskReader)
	if !ok || cexSize.IsZero() {
		return true, nil
	}
	risk, err := reader.PositionRisk(ctx, pairCfg.CexMarketID)
	if err != nil {
		return false, fmt.Errorf("cex position risk: %w", err)
	}
	ratio, measurable := strategy.RiskRatio(risk.MarkPrice, risk.LiquidationPrice)
	if !measurable || ratio.GreaterThanOrEqual(e.cfg.Preflight.CexLiquidationRatio.Decimal) {
		return true, nil
	}
	log.Warn("cex position near liquidation",
		zap.String("mark", risk.MarkPrice.String()),
		zap.String("liquidation", risk.LiquidationPrice.String()),
		zap.String("ratio", ratio.String()))

	openSpread, err := e.entries.OpenSpread(ctx, pairCfg.CexMarketID)
	if err != nil {
		return false, fmt.Errorf("open spread: %w", err)
	}
	if strategy.SpreadImproved(openSpread, spread) {
		// The trade is worth more closed than defended.
		if err := e.closeBothLegs(ctx, exchange, pairCfg, cexSize, gasPrice, log); err != nil {
			return false, err
		}
		e.notifier.Notify(ctx, "CexPositionRisk",
			fmt.Sprintf("%s unwound near liquidation, risk ratio %s", pairCfg.Pair, ratio))
		return false, nil
	}
	if transferer, ok := e.cex.(cex.SpotTransferer); ok {
		topUp := e.cfg.Preflight.CexBalanceThreshold.Decimal
		if err := transferer.TransferFromSpot(ctx, topUp); err != nil {
			e.notifier.Notify(ctx, "CexPositionRisk",
				fmt.Sprintf("%s near liquidation and spot transfer failed: %v", pairCfg.Pair, err))
			return false, fmt.Errorf("spot transfer: %w", err)
		}
		log.Info("cex collateral replenished", zap.String("amount", topUp.String()))
		return false, nil
	}
	e.notifier.Notify(ctx, "CexPositionRisk",
		fmt.Sprintf("%s near liquidation, risk ratio %s, manual action required", pairCfg.Pair, ratio))
	return false, nil
}

func (e *Engine) tryEnter(ctx context.Context, exchange common.Address, st perp.ExchangeState, pairCfg config.PairConfig, position perp.Position, quoteBalance, spread, ammPrice, cexPrice, gasPrice decimal.Decimal, log *zap.Logger) error {
	gap, err := e.venue.RebalanceGap(ctx, exchange)
	if err != nil {
		return fmt.Errorf("rebalance gap: %w", err)
	}
	if gap.Sign() <= 0 {
		log.Debug("no rebalance headroom, skipping entry")
		return nil
	}
	side, triggered := strategy.DecideEntry(spread, pairCfg)
	if !triggered {
		log.Debug("entry not triggered", zap.String("spread", spread.String()))
		return nil
	}
	allowed, err := e.venue.CheckWaitingPeriod(ctx, exchange, e.trader, side)
	if err != nil {
		return fmt.Errorf("waiting period: %w", err)
	}
	if !allowed {
		log.Info("waiting period active, skipping entry", zap.Stringer("side", side))
		return nil
	}

	maxSlippage := amm.MaxSlippageAmount(ammPrice, pairCfg.MaxSlippageRatio.Decimal, st.BaseAssetReserve, st.QuoteAssetReserve)
	notional := strategy.RegulatedPositionNotional(pairCfg, position, side, quoteBalance, maxSlippage)
	if notional.IsZero() {
		log.Debug("regulated notional below minimum")
		return nil
	}
	cexSize := strategy.CexPositionSize(notional, cexPrice, pairCfg.CexMinTradeSize.Decimal)
	if cexSize.IsZero() {
		log.Debug("cex size below venue minimum")
		return nil
	}

	log.Info("opening position",
		zap.Stringer("side", side),
		zap.String("notional", notional.String()),
		zap.String("cex_size", cexSize.String()),
		zap.String("spread", spread.String()))

	quoteAmount := notional.Div(pairCfg.Leverage.Decimal)
	var wg sync.WaitGroup
	var dexErr, cexErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		submitted, err := e.submitChainTx(ctx, "open:"+exchange.Hex(), gasPrice, func(opts perp.TxOptions) (perp.PendingTx, error) {
			return e.venue.OpenPosition(ctx, exchange, side, quoteAmount, pairCfg.Leverage.Decimal, decimal.Zero, opts)
		})
		if err != nil {
			dexErr = fmt.Errorf("open dex position: %w", err)
			return
		}
		if !submitted {
			dexErr = errDebounced
		}
	}()
	go func() {
		defer wg.Done()
		if err := e.placeCexOrder(ctx, cex.Order{
			Market: pairCfg.CexMarketID,
			Side:   side.Opposite(),
			Size:   cexSize,
			Type:   cex.OrderMarket,
		}, log); err != nil {
			cexErr = fmt.Errorf("open cex hedge: %w", err)
		}
	}()
	wg.Wait()

	if errors.Is(dexErr, errDebounced) {
		// Next cycle's mitigation handles any one-sided fill.
		log.Warn("dex open debounced while cex hedge submitted")
		return nil
	}
	if dexErr != nil || cexErr != nil {
		e.notifier.Notify(ctx, "OpenLegFailed",
			fmt.Sprintf("%s: %v", pairCfg.Pair, errors.Join(dexErr, cexErr)))
		return errors.Join(dexErr, cexErr)
	}
	if err := e.entries.SetOpenSpread(ctx, pairCfg.CexMarketID, spread); err != nil {
		log.Warn("entry spread not persisted", zap.Error(err))
	}
	return nil
}

// closeBothLegs unwinds the DEX position and the CEX hedge concurrently and
// clears the recorded entry.
func (e *Engine) closeBothLegs(ctx context.Context, exchange common.Address, pairCfg config.PairConfig, cexSize, gasPrice decimal.Decimal, log *zap.Logger) error {
	var wg sync.WaitGroup
	var dexErr, cexErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		submitted, err := e.submitChainTx(ctx, "close:"+exchange.Hex(), gasPrice, func(opts perp.TxOptions) (perp.PendingTx, error) {
			return e.venue.ClosePosition(ctx, exchange, decimal.Zero, opts)
		})
		if err != nil {
			dexErr = fmt.Errorf("close dex position: %w", err)
		} else if !submitted {
			dexErr = errDebounced
		}
	}()
	if !cexSize.IsZero() {
		side := perp.Buy
		if cexSize.Sign() > 0 {
			side = perp.Sell
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.placeCexOrder(ctx, cex.Order{
				Market: pairCfg.CexMarketID,
				Side:   side,
				Size:   cexSize.Abs(),
				Type:   cex.OrderMarket,
			}, log); err != nil {
				cexErr = fmt.Errorf("close cex hedge: %w", err)
			}
		}()
	}
	wg.Wait()

	if errors.Is(dexErr, errDebounced) {
		log.Warn("dex close debounced")
		dexErr = nil
	}
	if dexErr != nil || cexErr != nil {
		return errors.Join(dexErr, cexErr)
	}
	if err := e.entries.Clear(ctx, pairCfg.CexMarketID); err != nil {
		log.Warn("entry spread not cleared", zap.Error(err))
	}
	return nil
}

var errDebounced = errors.New("submission debounced")

// submitChainTx claims the nonce sequencer for the submission, then
// supervises confirmation outside the critical section. The debounce gate is
// consulted first so a suppressed submission never burns a nonce.
func (e *Engine) submitChainTx(ctx context.Context, key string, gasPrice decimal.Decimal, fn func(opts perp.TxOptions) (perp.PendingTx, error)) (bool, error) {
	if !e.dexGate.Allow(key) {
		return false, nil
	}
	var pending perp.PendingTx
	err := e.sequencer.Do(func(n uint64) error {
		tx, err := fn(perp.TxOptions{Nonce: n, GasPrice: gasPrice})
		if err != nil {
			return err
		}
		pending = tx
		return nil
	})
	if err != nil {
		return false, err
	}
	e.metrics.TxSent.Inc()
	e.log.Info("transaction submitted",
		zap.String("key", key),
		zap.Stringer("tx", pending.Hash()),
		zap.Uint64("nonce", pending.Nonce()))
	if err := e.supervisor.Wait(ctx, pending); err != nil {
		if errors.Is(err, chain.ErrTxAbandoned) {
			e.metrics.TxCancelled.Inc()
		}
		return true, err
	}
	return true, nil
}

func (e *Engine) placeCexOrder(ctx context.Context, order cex.Order, log *zap.Logger) error {
	// One submission per market per window, whichever side asks first.
	if !e.cexGate.Allow(order.Market) {
		log.Debug("cex order debounced", zap.String("market", order.Market))
		return nil
	}
	if err := e.cex.PlaceOrder(ctx, order); err != nil {
		return err
	}
	e.metrics.CexOrdersPlaced.Inc()
	log.Info("cex order placed",
		zap.String("market", order.Market),
		zap.Stringer("side", order.Side),
		zap.String("size", order.Size.String()))
	return nil
}

// accumulator collects account-value components from concurrently running
// pair tasks.
type accumulator struct {
	mu            sync.Mutex
	quoteBalances map[common.Address]decimal.Decimal
	exchanges     []common.Address
}

func newAccumulator() *accumulator {
	return &accumulator{quoteBalances: make(map[common.Address]decimal.Decimal)}
}

// setQuoteBalance records a balance per token so exchanges sharing a quote
// asset do not double count it.
func (a *accumulator) setQuoteBalance(token common.Address, balance decimal.Decimal) {
	a.mu.Lock()
	a.quoteBalances[token] = balance
	a.mu.Unlock()
}

// addExchange marks an exchange as configured so the post-cycle valuation
// pass revisits it.
func (a *accumulator) addExchange(exchange common.Address) {
	a.mu.Lock()
	a.exchanges = append(a.exchanges, exchange)
	a.mu.Unlock()
}

func (a *accumulator) pairExchanges() []common.Address {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]common.Address(nil), a.exchanges...)
}

func (a *accumulator) quoteTotal() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := decimal.Zero
	for _, balance := range a.quoteBalances {
		total = total.Add(balance)
	}
	return total
}
