package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPlanMarginRemove(t *testing.T) {
	// Leverage 10 -> target 0.1, tolerance 0.1 -> remove above 0.11.
	// Ratio 0.13 removes (0.13 - 0.1) * 2000 = 60.
	action, amount := PlanMarginAdjustment(dec("0.13"), dec("10"), dec("0.1"), dec("2000"), dec("500"), dec("1000"))
	if action != MarginRemove {
		t.Fatalf("expected remove, got %s", action)
	}
	if !amount.Equal(dec("60")) {
		t.Fatalf("expected 60, got %s", amount)
	}
}

func TestPlanMarginRemoveCappedByMargin(t *testing.T) {
	action, amount := PlanMarginAdjustment(dec("0.5"), dec("10"), dec("0.1"), dec("2000"), dec("100"), dec("1000"))
	if action != MarginRemove {
		t.Fatalf("expected remove, got %s", action)
	}
	if !amount.Equal(dec("100")) {
		t.Fatalf("expected cap at margin 100, got %s", amount)
	}
}

func TestPlanMarginAdd(t *testing.T) {
	// Ratio 0.07 below 0.1*(1-0.1)=0.09 -> add (0.1-0.07) * 2000 = 60.
	action, amount := PlanMarginAdjustment(dec("0.07"), dec("10"), dec("0.1"), dec("2000"), dec("500"), dec("1000"))
	if action != MarginAdd {
		t.Fatalf("expected add, got %s", action)
	}
	if !amount.Equal(dec("60")) {
		t.Fatalf("expected 60, got %s", amount)
	}
}

func TestPlanMarginAddCappedByBalance(t *testing.T) {
	action, amount := PlanMarginAdjustment(dec("0.01"), dec("10"), dec("0.1"), dec("2000"), dec("500"), dec("25"))
	if action != MarginAdd {
		t.Fatalf("expected add, got %s", action)
	}
	if !amount.Equal(dec("25")) {
		t.Fatalf("expected cap at balance 25, got %s", amount)
	}
}

func TestPlanMarginWithinBand(t *testing.T) {
	for _, ratio := range []string{"0.09", "0.1", "0.11"} {
		action, _ := PlanMarginAdjustment(dec(ratio), dec("10"), dec("0.1"), dec("2000"), dec("500"), dec("1000"))
		if action != MarginNoop {
			t.Fatalf("ratio %s: expected noop, got %s", ratio, action)
		}
	}
}

func TestPlanMarginZeroBalanceNoop(t *testing.T) {
	action, _ := PlanMarginAdjustment(dec("0.01"), dec("10"), dec("0.1"), dec("2000"), dec("500"), decimal.Zero)
	if action != MarginNoop {
		t.Fatalf("expected noop with no balance, got %s", action)
	}
}
