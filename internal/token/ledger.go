// Package token exposes the quote-asset ledger collaborator: balances,
// allowances and approvals for the ERC-20 the perpetual venue settles in.
package token

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/Sakeswap/sakeperp-arbitrageur/internal/perp"
)

// Ledger reads and mutates token state. Amounts are human-scaled decimals;
// implementations own the conversion to token units.
type Ledger interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (decimal.Decimal, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (decimal.Decimal, error)
	// MaxApproval is the largest representable allowance for the token,
	// scaled to its decimals.
	MaxApproval(ctx context.Context, token common.Address) (decimal.Decimal, error)
	Approve(ctx context.Context, token, spender common.Address, amount decimal.Decimal, opts perp.TxOptions) (perp.PendingTx, error)
}
