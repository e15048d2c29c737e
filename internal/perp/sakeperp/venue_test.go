package sakeperp

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/Sakeswap/sakeperp-arbitrageur/internal/perp"
)

var _ perp.Venue = (*Venue)(nil)

func TestFixedPointRoundTrip(t *testing.T) {
	cases := []string{"0", "1", "0.5", "1234.567890123456789", "-42.25"}
	for _, s := range cases {
		d := decimal.RequireFromString(s)
		back := fromFixed(toFixed(d))
		if !back.Equal(d) {
			t.Fatalf("%s round-tripped to %s", s, back)
		}
	}
}

func TestToFixedTruncatesBelowWei(t *testing.T) {
	d := decimal.RequireFromString("1.0000000000000000009")
	got := toFixed(d)
	want := new(big.Int)
	want.SetString("1000000000000000000", 10)
	if got.Cmp(want) != 0 {
		t.Fatalf("toFixed = %s, want %s", got, want)
	}
}

func TestFromFixedNegative(t *testing.T) {
	x := big.NewInt(-1500000000000000000)
	if got := fromFixed(x); !got.Equal(decimal.RequireFromString("-1.5")) {
		t.Fatalf("fromFixed = %s", got)
	}
}

// fakeStateCaller serves waitingWhitelist and tradingState reads from memory.
type fakeStateCaller struct {
	abi         abi.ABI
	whitelisted bool
	lastLong    int64
	lastShort   int64
}

func (c *fakeStateCaller) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x01}, nil
}

func (c *fakeStateCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	method, err := c.abi.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "waitingWhitelist":
		return method.Outputs.Pack(c.whitelisted)
	case "tradingState":
		return method.Outputs.Pack(big.NewInt(c.lastLong), big.NewInt(c.lastShort))
	}
	return nil, fmt.Errorf("unexpected read %s", method.Name)
}

func newStateVenue(t *testing.T, caller *fakeStateCaller, now time.Time) *Venue {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(sakePerpStateABI))
	if err != nil {
		t.Fatal(err)
	}
	caller.abi = parsed
	return &Venue{
		perpState: bind.NewBoundContract(common.Address{}, parsed, caller, nil, nil),
		now:       func() time.Time { return now },
	}
}

func TestCheckWaitingPeriodBlocksOppositeSide(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	caller := &fakeStateCaller{lastLong: base.Unix()}
	ctx := context.Background()

	v := newStateVenue(t, caller, base.Add(10*time.Second))
	allowed, err := v.CheckWaitingPeriod(ctx, common.Address{}, common.Address{}, perp.Sell)
	if err != nil {
		t.Fatal(err)
	}
	if allowed {
		t.Fatal("sell right after a long open should be blocked")
	}

	// The same direction never waits.
	allowed, err = v.CheckWaitingPeriod(ctx, common.Address{}, common.Address{}, perp.Buy)
	if err != nil {
		t.Fatal(err)
	}
	if !allowed {
		t.Fatal("buy after a long open should pass")
	}
}

func TestCheckWaitingPeriodExpiry(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	caller := &fakeStateCaller{lastShort: base.Unix()}
	ctx := context.Background()

	v := newStateVenue(t, caller, base.Add(waitingPeriod-time.Second))
	allowed, err := v.CheckWaitingPeriod(ctx, common.Address{}, common.Address{}, perp.Buy)
	if err != nil {
		t.Fatal(err)
	}
	if allowed {
		t.Fatal("buy one second before expiry should be blocked")
	}

	v = newStateVenue(t, caller, base.Add(waitingPeriod))
	allowed, err = v.CheckWaitingPeriod(ctx, common.Address{}, common.Address{}, perp.Buy)
	if err != nil {
		t.Fatal(err)
	}
	if !allowed {
		t.Fatal("buy at expiry should pass")
	}
}

func TestCheckWaitingPeriodWhitelistBypass(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	caller := &fakeStateCaller{whitelisted: true, lastLong: base.Unix(), lastShort: base.Unix()}
	v := newStateVenue(t, caller, base.Add(time.Second))
	for _, side := range []perp.Side{perp.Buy, perp.Sell} {
		allowed, err := v.CheckWaitingPeriod(context.Background(), common.Address{}, common.Address{}, side)
		if err != nil {
			t.Fatal(err)
		}
		if !allowed {
			t.Fatalf("whitelisted trader should skip the %s wait", side)
		}
	}
}
