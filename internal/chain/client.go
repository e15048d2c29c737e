// Package chain defines the chain-side collaborator interface and the
// transaction supervision loop shared by every chain write.
package chain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/Sakeswap/sakeperp-arbitrageur/internal/perp"
)

// Client is the blockchain collaborator. Connectivity, reconnection and
// signing live behind this interface.
type Client interface {
	// TransactionCount is the pending nonce for addr, used to reseed the
	// sequencer once per cycle.
	TransactionCount(ctx context.Context, addr common.Address) (uint64, error)
	// Balance is the native-token balance, for gas preflight.
	Balance(ctx context.Context, addr common.Address) (decimal.Decimal, error)
	// SafeGasPrice samples the gas price, retrying internally while the
	// sample is zero and failing after bounded attempts.
	SafeGasPrice(ctx context.Context) (decimal.Decimal, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (time.Time, error)
	// SendCancellation submits a replacement no-op transaction for nonce at
	// the given gas price, used to unstick a timed-out submission.
	SendCancellation(ctx context.Context, nonce uint64, gasPrice decimal.Decimal) (perp.PendingTx, error)
}
