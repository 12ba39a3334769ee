package bank

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperlicked/pkg/margin/fixedpoint"
	"github.com/uhyunpark/hyperlicked/pkg/margin/marginerr"
)

func newTestBank() *Bank {
	return NewDefault(0, common.HexToAddress("0x1"), common.HexToAddress("0x2"), common.HexToAddress("0x3"), 0)
}

func TestDepositThenWithdrawRoundTrips(t *testing.T) {
	b := newTestBank()
	amt := fixedpoint.FromInt64(1000)

	pos, activated, err := b.Deposit(fixedpoint.Zero, amt)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !activated {
		t.Fatalf("expected position to activate")
	}

	// Withdrawing the full native value should not fail, thanks to the
	// one-ULP rounding bias in Deposit's favor of the depositor.
	_, _, err = b.Withdraw(pos, amt, false, fixedpoint.FromInt64(1), 0)
	if err != nil {
		t.Fatalf("withdraw should succeed on round trip: %v", err)
	}
}

func TestWithdrawWithoutBorrowFailsOnInsufficientFunds(t *testing.T) {
	b := newTestBank()
	pos, _, _ := b.Deposit(fixedpoint.Zero, fixedpoint.FromInt64(100))

	_, _, err := b.Withdraw(pos, fixedpoint.FromInt64(200), false, fixedpoint.FromInt64(1), 0)
	if err != marginerr.ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestWithdrawWithBorrowCreatesNegativePosition(t *testing.T) {
	b := newTestBank()
	b.IndexedTotalDeposits = fixedpoint.FromInt64(10000)
	b.VaultNative = fixedpoint.FromInt64(10000)

	pos, _, err := b.Withdraw(fixedpoint.Zero, fixedpoint.FromInt64(100), true, fixedpoint.FromInt64(1), 0)
	if err != nil {
		t.Fatalf("withdraw with borrow: %v", err)
	}
	if !pos.IsNegative() {
		t.Fatalf("expected negative (borrow) position, got %s", pos)
	}
	if b.NetBorrowsInWindow.IsZero() {
		t.Fatalf("expected net borrow window to register the new borrow")
	}
}

func TestReduceOnlyBlocksNewBorrows(t *testing.T) {
	b := newTestBank()
	b.IndexedTotalDeposits = fixedpoint.FromInt64(10000)
	b.VaultNative = fixedpoint.FromInt64(10000)
	b.ReduceOnly = ReduceOnlyNoNewBorrows

	_, _, err := b.Withdraw(fixedpoint.Zero, fixedpoint.FromInt64(100), true, fixedpoint.FromInt64(1), 0)
	if err != marginerr.ErrTokenInReduceOnlyMode {
		t.Fatalf("expected ErrTokenInReduceOnlyMode, got %v", err)
	}
}

func TestNetBorrowWindowLimitReached(t *testing.T) {
	b := newTestBank()
	b.IndexedTotalDeposits = fixedpoint.FromInt64(10_000_000)
	b.VaultNative = fixedpoint.FromInt64(10_000_000)
	b.NetBorrowLimitPerWindowQuote = fixedpoint.FromInt64(500)
	b.NetBorrowLimitWindowSizeTs = 3600

	_, _, err := b.Withdraw(fixedpoint.Zero, fixedpoint.FromInt64(501), true, fixedpoint.FromInt64(1), 0)
	if err != marginerr.ErrBankNetBorrowsLimitReached {
		t.Fatalf("expected ErrBankNetBorrowsLimitReached, got %v", err)
	}
}

func TestNetBorrowWindowResetsOnNewWindow(t *testing.T) {
	b := newTestBank()
	b.IndexedTotalDeposits = fixedpoint.FromInt64(10_000_000)
	b.VaultNative = fixedpoint.FromInt64(10_000_000)
	b.NetBorrowLimitPerWindowQuote = fixedpoint.FromInt64(500)
	b.NetBorrowLimitWindowSizeTs = 3600

	_, _, err := b.Withdraw(fixedpoint.Zero, fixedpoint.FromInt64(400), true, fixedpoint.FromInt64(1), 0)
	if err != nil {
		t.Fatalf("first borrow should succeed: %v", err)
	}

	_, _, err = b.Withdraw(fixedpoint.Zero, fixedpoint.FromInt64(400), true, fixedpoint.FromInt64(1), 3700)
	if err != nil {
		t.Fatalf("borrow in a fresh window should succeed, got %v", err)
	}
}

func TestVaultToDepositsRatioBlocksOverdrawnVault(t *testing.T) {
	b := newTestBank()
	b.IndexedTotalDeposits = fixedpoint.FromInt64(1000)
	b.VaultNative = fixedpoint.FromInt64(110)
	b.MinVaultToDepositsRatio = fixedpoint.FromFloat64(0.1)

	_, _, err := b.Withdraw(fixedpoint.Zero, fixedpoint.FromInt64(50), true, fixedpoint.FromInt64(1), 0)
	if err != marginerr.ErrBankBorrowLimitReached {
		t.Fatalf("expected ErrBankBorrowLimitReached, got %v", err)
	}
}

func TestUpdateIndexAccruesInterestAtUtilization(t *testing.T) {
	b := newTestBank()
	b.IndexedTotalDeposits = fixedpoint.FromInt64(1000)
	b.IndexedTotalBorrows = fixedpoint.FromInt64(800)
	b.LastUpdatedTs = 0

	b.UpdateIndex(secondsPerYear)

	if !b.BorrowIndex.GreaterThan(fixedpoint.One()) {
		t.Fatalf("expected borrow index to grow, got %s", b.BorrowIndex)
	}
	if !b.DepositIndex.GreaterThan(fixedpoint.One()) {
		t.Fatalf("expected deposit index to grow, got %s", b.DepositIndex)
	}
	if !b.BorrowIndex.GreaterThan(b.DepositIndex) {
		t.Fatalf("borrow index should grow faster than deposit index (spread kept as fees)")
	}
}

func TestSocializeLossReducesDepositIndex(t *testing.T) {
	b := newTestBank()
	b.IndexedTotalDeposits = fixedpoint.FromInt64(1000)

	before := b.DepositIndex
	absorbed := b.SocializeLoss(fixedpoint.FromInt64(100), nil)

	if absorbed.LessThanOrEqual(fixedpoint.Zero) {
		t.Fatalf("expected positive absorbed amount, got %s", absorbed)
	}
	if !b.DepositIndex.LessThan(before) {
		t.Fatalf("expected deposit index to drop below %s, got %s", before, b.DepositIndex)
	}
}

func TestAtRestHoldsAfterNormalOperations(t *testing.T) {
	b := newTestBank()
	b.IndexedTotalDeposits = fixedpoint.FromInt64(10000)
	b.VaultNative = fixedpoint.FromInt64(10000)

	_, _, err := b.Withdraw(fixedpoint.Zero, fixedpoint.FromInt64(100), true, fixedpoint.FromInt64(1), 0)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !b.AtRest() {
		t.Fatalf("bank should remain at rest (deposits >= borrows) after a normal borrow")
	}
}
