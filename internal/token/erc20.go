package token

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/shopspring/decimal"

	"github.com/Sakeswap/sakeperp-arbitrageur/internal/chain"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/perp"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

// ERC20Ledger implements Ledger against standard ERC-20 contracts.
type ERC20Ledger struct {
	client *chain.EthClient
	abi    abi.ABI

	mu        sync.Mutex
	contracts map[common.Address]*bind.BoundContract
	decimals  map[common.Address]int32
}

func NewERC20Ledger(client *chain.EthClient) (*ERC20Ledger, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return &ERC20Ledger{
		client:    client,
		abi:       parsed,
		contracts: make(map[common.Address]*bind.BoundContract),
		decimals:  make(map[common.Address]int32),
	}, nil
}

func (l *ERC20Ledger) contract(token common.Address) *bind.BoundContract {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.contracts[token]; ok {
		return c
	}
	backend := l.client.Backend()
	c := bind.NewBoundContract(token, l.abi, backend, backend, backend)
	l.contracts[token] = c
	return c
}

func (l *ERC20Ledger) tokenDecimals(ctx context.Context, token common.Address) (int32, error) {
	l.mu.Lock()
	cached, ok := l.decimals[token]
	l.mu.Unlock()
	if ok {
		return cached, nil
	}
	var out []interface{}
	if err := l.contract(token).Call(&bind.CallOpts{Context: ctx}, &out, "decimals"); err != nil {
		return 0, fmt.Errorf("decimals %s: %w", token, err)
	}
	d := int32(out[0].(uint8))
	l.mu.Lock()
	l.decimals[token] = d
	l.mu.Unlock()
	return d, nil
}

func (l *ERC20Ledger) BalanceOf(ctx context.Context, token, owner common.Address) (decimal.Decimal, error) {
	d, err := l.tokenDecimals(ctx, token)
	if err != nil {
		return decimal.Zero, err
	}
	var out []interface{}
	if err := l.contract(token).Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", owner); err != nil {
		return decimal.Zero, fmt.Errorf("balanceOf %s: %w", token, err)
	}
	return decimal.NewFromBigInt(out[0].(*big.Int), -d), nil
}

func (l *ERC20Ledger) Allowance(ctx context.Context, token, owner, spender common.Address) (decimal.Decimal, error) {
	d, err := l.tokenDecimals(ctx, token)
	if err != nil {
		return decimal.Zero, err
	}
	var out []interface{}
	if err := l.contract(token).Call(&bind.CallOpts{Context: ctx}, &out, "allowance", owner, spender); err != nil {
		return decimal.Zero, fmt.Errorf("allowance %s: %w", token, err)
	}
	return decimal.NewFromBigInt(out[0].(*big.Int), -d), nil
}

func (l *ERC20Ledger) MaxApproval(ctx context.Context, token common.Address) (decimal.Decimal, error) {
	d, err := l.tokenDecimals(ctx, token)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(math.MaxBig256, -d), nil
}

func (l *ERC20Ledger) Approve(ctx context.Context, token, spender common.Address, amount decimal.Decimal, opts perp.TxOptions) (perp.PendingTx, error) {
	d, err := l.tokenDecimals(ctx, token)
	if err != nil {
		return nil, err
	}
	units := amount.Shift(d).BigInt()
	tx, err := l.contract(token).Transact(l.client.TransactOpts(ctx, opts), "approve", spender, units)
	if err != nil {
		return nil, fmt.Errorf("approve %s: %w", token, err)
	}
	return chain.NewSentTx(l.client.Backend(), tx), nil
}
