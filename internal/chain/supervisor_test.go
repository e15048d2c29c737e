package chain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Sakeswap/sakeperp-arbitrageur/internal/perp"
)

type fakeTx struct {
	hash     common.Hash
	nonce    uint64
	gasPrice decimal.Decimal
	wait     func(ctx context.Context) error
}

func (f *fakeTx) Hash() common.Hash              { return f.hash }
func (f *fakeTx) Nonce() uint64                  { return f.nonce }
func (f *fakeTx) GasPrice() decimal.Decimal      { return f.gasPrice }
func (f *fakeTx) Wait(ctx context.Context) error { return f.wait(ctx) }

func hangingWait(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

type fakeClient struct {
	Client

	mu      sync.Mutex
	cancels []decimal.Decimal
	next    func(nonce uint64, gasPrice decimal.Decimal) perp.PendingTx
}

func (f *fakeClient) SendCancellation(ctx context.Context, nonce uint64, gasPrice decimal.Decimal) (perp.PendingTx, error) {
	f.mu.Lock()
	f.cancels = append(f.cancels, gasPrice)
	f.mu.Unlock()
	return f.next(nonce, gasPrice), nil
}

func TestWaitReturnsOnConfirmation(t *testing.T) {
	s := NewSupervisor(&fakeClient{}, time.Second, 3, zap.NewNop())
	tx := &fakeTx{wait: func(context.Context) error { return nil }}
	if err := s.Wait(context.Background(), tx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWaitCancelsAtDoubleGasAndRecurses(t *testing.T) {
	client := &fakeClient{}
	client.next = func(nonce uint64, gasPrice decimal.Decimal) perp.PendingTx {
		return &fakeTx{nonce: nonce, gasPrice: gasPrice, wait: hangingWait}
	}
	s := NewSupervisor(client, 10*time.Millisecond, 2, zap.NewNop())
	tx := &fakeTx{nonce: 42, gasPrice: decimal.NewFromInt(10), wait: hangingWait}

	err := s.Wait(context.Background(), tx)
	if !errors.Is(err, ErrTxAbandoned) {
		t.Fatalf("expected ErrTxAbandoned, got %v", err)
	}
	if len(client.cancels) != 2 {
		t.Fatalf("expected 2 cancellations, got %d", len(client.cancels))
	}
	if !client.cancels[0].Equal(decimal.NewFromInt(20)) {
		t.Fatalf("first cancel should double gas to 20, got %s", client.cancels[0])
	}
	// The cancel of the cancel doubles again from the first cancellation.
	if !client.cancels[1].Equal(decimal.NewFromInt(40)) {
		t.Fatalf("second cancel should double gas to 40, got %s", client.cancels[1])
	}
}

func TestWaitPropagatesSubmissionFailure(t *testing.T) {
	errRevert := errors.New("execution reverted")
	s := NewSupervisor(&fakeClient{}, time.Second, 3, zap.NewNop())
	tx := &fakeTx{wait: func(context.Context) error { return errRevert }}
	if err := s.Wait(context.Background(), tx); !errors.Is(err, errRevert) {
		t.Fatalf("expected revert passthrough, got %v", err)
	}
}

func TestWaitStopsWhenParentContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewSupervisor(&fakeClient{}, time.Second, 3, zap.NewNop())
	tx := &fakeTx{wait: hangingWait}
	if err := s.Wait(ctx, tx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
