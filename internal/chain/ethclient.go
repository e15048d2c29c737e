package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Sakeswap/sakeperp-arbitrageur/internal/perp"
)

const (
	gasPriceSampleAttempts = 5
	gasPriceSampleDelay    = time.Second
	receiptPollInterval    = 2 * time.Second
	cancelGasLimit         = 21000
)

var errZeroGasPrice = errors.New("sampled gas price is zero")

// EthClient implements Client over a JSON-RPC endpoint. Native balances are
// ether-denominated decimals; gas prices stay wei-denominated so doubling a
// price for a cancellation is exact.
type EthClient struct {
	ec      *ethclient.Client
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	log     *zap.Logger
}

func Dial(ctx context.Context, endpoint, privateKeyHex string, log *zap.Logger) (*EthClient, error) {
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	ec, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	chainID, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("chain id: %w", err)
	}
	return &EthClient{
		ec:      ec,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		log:     log,
	}, nil
}

// Address is the signing account derived from the configured key.
func (c *EthClient) Address() common.Address {
	return c.address
}

// Backend exposes the underlying RPC client for contract bindings.
func (c *EthClient) Backend() *ethclient.Client {
	return c.ec
}

// TransactOpts builds signing options for a contract write at the sequenced
// nonce and gas price.
func (c *EthClient) TransactOpts(ctx context.Context, opts perp.TxOptions) *bind.TransactOpts {
	return &bind.TransactOpts{
		From:     c.address,
		Nonce:    new(big.Int).SetUint64(opts.Nonce),
		GasPrice: opts.GasPrice.BigInt(),
		Context:  ctx,
		Signer: func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
			if addr != c.address {
				return nil, errors.New("unexpected signing address")
			}
			return types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
		},
	}
}

func (c *EthClient) Close() {
	c.ec.Close()
}

func (c *EthClient) TransactionCount(ctx context.Context, addr common.Address) (uint64, error) {
	return c.ec.PendingNonceAt(ctx, addr)
}

func (c *EthClient) Balance(ctx context.Context, addr common.Address) (decimal.Decimal, error) {
	wei, err := c.ec.BalanceAt(ctx, addr, nil)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(wei, -18), nil
}

func (c *EthClient) SafeGasPrice(ctx context.Context) (decimal.Decimal, error) {
	for attempt := 0; attempt < gasPriceSampleAttempts; attempt++ {
		price, err := c.ec.SuggestGasPrice(ctx)
		if err != nil {
			return decimal.Zero, err
		}
		if price.Sign() > 0 {
			return decimal.NewFromBigInt(price, 0), nil
		}
		select {
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		case <-time.After(gasPriceSampleDelay):
		}
	}
	return decimal.Zero, fmt.Errorf("%w after %d attempts", errZeroGasPrice, gasPriceSampleAttempts)
}

func (c *EthClient) BlockNumber(ctx context.Context) (uint64, error) {
	return c.ec.BlockNumber(ctx)
}

func (c *EthClient) BlockTimestamp(ctx context.Context, number uint64) (time.Time, error) {
	header, err := c.ec.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(header.Time), 0), nil
}

// SendCancellation replaces the pending transaction at nonce with a
// zero-value self transfer at the given gas price.
func (c *EthClient) SendCancellation(ctx context.Context, nonce uint64, gasPrice decimal.Decimal) (perp.PendingTx, error) {
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.address,
		Value:    big.NewInt(0),
		Gas:      cancelGasLimit,
		GasPrice: gasPrice.BigInt(),
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("sign cancellation: %w", err)
	}
	if err := c.ec.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send cancellation: %w", err)
	}
	return NewSentTx(c.ec, signed), nil
}

// SentTx adapts a submitted legacy transaction to the perp.PendingTx
// contract by polling for its receipt.
type SentTx struct {
	ec *ethclient.Client
	tx *types.Transaction
}

func NewSentTx(ec *ethclient.Client, tx *types.Transaction) *SentTx {
	return &SentTx{ec: ec, tx: tx}
}

func (s *SentTx) Hash() common.Hash { return s.tx.Hash() }

func (s *SentTx) Nonce() uint64 { return s.tx.Nonce() }

func (s *SentTx) GasPrice() decimal.Decimal {
	return decimal.NewFromBigInt(s.tx.GasPrice(), 0)
}

func (s *SentTx) Wait(ctx context.Context) error {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()
	for {
		receipt, err := s.ec.TransactionReceipt(ctx, s.tx.Hash())
		if err == nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return fmt.Errorf("transaction %s reverted", s.tx.Hash())
			}
			return nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			// Transient RPC failures are retried until the context expires.
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
