package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Sakeswap/sakeperp-arbitrageur/internal/perp"
)

// ErrTxAbandoned reports a transaction that neither confirmed nor could be
// cancelled within the retry budget.
var ErrTxAbandoned = errors.New("transaction abandoned after cancellation retries")

var two = decimal.NewFromInt(2)

// Supervisor watches a submitted transaction. If it does not confirm within
// the timeout, a cancellation is sent to the same nonce at double the gas
// price, and the cancellation itself is supervised the same way. The loop is
// bounded by the retry budget; exhaustion surfaces as ErrTxAbandoned.
type Supervisor struct {
	client  Client
	timeout time.Duration
	retries int
	log     *zap.Logger
}

func NewSupervisor(client Client, timeout time.Duration, retries int, log *zap.Logger) *Supervisor {
	if retries < 0 {
		retries = 0
	}
	return &Supervisor{client: client, timeout: timeout, retries: retries, log: log}
}

func (s *Supervisor) Wait(ctx context.Context, tx perp.PendingTx) error {
	current := tx
	for attempt := 0; ; attempt++ {
		waitCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := current.Wait(waitCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if attempt >= s.retries {
			return fmt.Errorf("%w: nonce %d, %d cancellations sent", ErrTxAbandoned, current.Nonce(), attempt)
		}
		cancelTx, cancelErr := s.client.SendCancellation(ctx, current.Nonce(), current.GasPrice().Mul(two))
		if cancelErr != nil {
			return fmt.Errorf("send cancellation for nonce %d: %w", current.Nonce(), cancelErr)
		}
		s.log.Warn("transaction timed out, cancellation sent",
			zap.Stringer("tx", current.Hash()),
			zap.Stringer("cancel_tx", cancelTx.Hash()),
			zap.Uint64("nonce", current.Nonce()),
			zap.String("cancel_gas_price", cancelTx.GasPrice().String()),
			zap.Int("attempt", attempt+1),
		)
		current = cancelTx
	}
}
