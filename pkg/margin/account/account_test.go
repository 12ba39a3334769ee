package account

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperlicked/pkg/margin/fixedpoint"
)

func newTestAccount() *Account {
	return New(common.HexToAddress("0xA"), common.HexToAddress("0xG"), 0, 4, 2, 4, 8)
}

func TestNewAccountSlotsAllInactive(t *testing.T) {
	a := newTestAccount()
	if len(a.ActiveTokenPositions()) != 0 {
		t.Fatalf("expected no active token positions")
	}
	if len(a.ActivePerpPositions()) != 0 {
		t.Fatalf("expected no active perp positions")
	}
}

func TestEnsureTokenPositionActivatesAndReuses(t *testing.T) {
	a := newTestAccount()

	p1, activated, err := a.EnsureTokenPosition(3)
	if err != nil || !activated {
		t.Fatalf("expected activation, got activated=%v err=%v", activated, err)
	}
	p1.IndexedPosition = fixedpoint.FromInt64(100)

	p2, activated2, err := a.EnsureTokenPosition(3)
	if err != nil || activated2 {
		t.Fatalf("expected reuse without re-activation, got activated=%v err=%v", activated2, err)
	}
	if p2.IndexedPosition.Float64() != 100 {
		t.Fatalf("expected to get back the same slot, got %v", p2.IndexedPosition)
	}
}

func TestEnsureTokenPositionFailsWhenFull(t *testing.T) {
	a := New(common.HexToAddress("0xA"), common.HexToAddress("0xG"), 0, 1, 1, 1, 1)
	if _, _, err := a.EnsureTokenPosition(1); err != nil {
		t.Fatalf("first slot should succeed: %v", err)
	}
	if _, _, err := a.EnsureTokenPosition(2); err == nil {
		t.Fatalf("expected ErrNoFreeTokenPosition when all slots taken")
	}
}

func TestDeactivateTokenPositionIfEmptyRequiresZeroBalance(t *testing.T) {
	a := newTestAccount()
	p, _, _ := a.EnsureTokenPosition(5)
	p.IndexedPosition = fixedpoint.FromInt64(1)

	a.DeactivateTokenPositionIfEmpty(5)
	if !a.TokenPositionByIndex(5).IsActive() {
		t.Fatalf("should not deactivate a nonzero position")
	}

	p.IndexedPosition = fixedpoint.Zero
	a.DeactivateTokenPositionIfEmpty(5)
	if a.TokenPositionByIndex(5) != nil {
		t.Fatalf("should deactivate once balance returns to zero")
	}
}

func TestPerpOpenOrderLifecycle(t *testing.T) {
	a := newTestAccount()
	var id [16]byte
	id[0] = 1

	if err := a.AddPerpOpenOrder(Bid, 0, 42, id); err != nil {
		t.Fatalf("add open order: %v", err)
	}
	orders := a.OpenOrdersForMarket(0)
	if len(orders) != 1 || orders[0].ClientOrderID != 42 {
		t.Fatalf("expected one order with client id 42, got %+v", orders)
	}

	a.RemovePerpOpenOrder(0, id)
	if len(a.OpenOrdersForMarket(0)) != 0 {
		t.Fatalf("expected order to be removed")
	}
}

type fakeOITracker struct{ oi int64 }

func (f *fakeOITracker) AddOpenInterest(delta int64) { f.oi += delta }

func TestChangeBasePositionUpdatesOpenInterest(t *testing.T) {
	a := newTestAccount()
	p, _ := a.EnsurePerpPosition(0)

	tracker := &fakeOITracker{}
	p.ChangeBasePosition(tracker, 10)
	if tracker.oi != 10 {
		t.Fatalf("expected open interest +10, got %d", tracker.oi)
	}
	p.ChangeBasePosition(tracker, -5)
	if tracker.oi != 15 {
		t.Fatalf("expected open interest to grow by |5|=5 more (net +15), got %d", tracker.oi)
	}
}

type fakeFunding struct{ long, short fixedpoint.I80F48 }

func (f *fakeFunding) LongFunding() fixedpoint.I80F48  { return f.long }
func (f *fakeFunding) ShortFunding() fixedpoint.I80F48 { return f.short }

func TestSettleFundingMovesIntoQuotePosition(t *testing.T) {
	a := newTestAccount()
	p, _ := a.EnsurePerpPosition(0)
	p.BasePositionLots = 10

	market := &fakeFunding{long: fixedpoint.FromInt64(5)}
	p.SettleFunding(market)

	if p.QuotePositionNative.Float64() != -50 {
		t.Fatalf("expected quote position -50 after funding settle, got %v", p.QuotePositionNative.Float64())
	}
	if p.LongSettledFunding.Float64() != 5 {
		t.Fatalf("expected settled funding watermark updated")
	}
}

func TestLiquidationRegionTransitions(t *testing.T) {
	a := newTestAccount()
	a.EnterLiquidation(fixedpoint.FromInt64(-10))
	if !a.IsBeingLiquidated() {
		t.Fatalf("expected being-liquidated region")
	}
	a.ExitLiquidation()
	if a.IsBeingLiquidated() {
		t.Fatalf("expected exit from liquidation region")
	}
	a.MarkBankrupt()
	if !a.IsBankrupt() {
		t.Fatalf("expected bankrupt region")
	}
}
