// Package bank implements the per-token indexed deposit/borrow ledger:
// interest accrual via monotonic indices, loan-origination fees, the
// rolling net-borrow window, and the vault-to-deposits ratio limit.
package bank

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperlicked/pkg/margin/fixedpoint"
	"github.com/uhyunpark/hyperlicked/pkg/margin/marginerr"
)

// ReduceOnlyMode is the bank's tri-state reduce_only flag.
type ReduceOnlyMode uint8

const (
	ReduceOnlyOff              ReduceOnlyMode = 0
	ReduceOnlyDepositsRepayOnly ReduceOnlyMode = 1
	ReduceOnlyNoNewBorrows     ReduceOnlyMode = 2
)

// InterestCurve is a piecewise-linear utilization curve:
// (util0,rate0) -> (util1,rate1) -> (1.0, maxRate), annualized rates.
type InterestCurve struct {
	Util0, Rate0 fixedpoint.I80F48
	Util1, Rate1 fixedpoint.I80F48
	MaxRate      fixedpoint.I80F48
}

// DefaultCurve is a typical stablecoin-ish curve: 0% at 0% utilization,
// 8% at 80% utilization, ramping to 100% at full utilization.
func DefaultCurve() InterestCurve {
	return InterestCurve{
		Util0: fixedpoint.FromFloat64(0.0), Rate0: fixedpoint.FromFloat64(0.0),
		Util1: fixedpoint.FromFloat64(0.8), Rate1: fixedpoint.FromFloat64(0.08),
		MaxRate: fixedpoint.FromFloat64(1.0),
	}
}

// RateAtUtilization evaluates the curve at a given utilization in [0,1].
func (c InterestCurve) RateAtUtilization(util fixedpoint.I80F48) fixedpoint.I80F48 {
	switch {
	case util.LessThanOrEqual(c.Util0):
		return c.Rate0
	case util.LessThanOrEqual(c.Util1):
		return interpolate(util, c.Util0, c.Rate0, c.Util1, c.Rate1)
	default:
		one := fixedpoint.One()
		return interpolate(util, c.Util1, c.Rate1, one, c.MaxRate)
	}
}

func interpolate(x, x0, y0, x1, y1 fixedpoint.I80F48) fixedpoint.I80F48 {
	span := x1.Sub(x0)
	if span.IsZero() {
		return y0
	}
	frac, err := x.Sub(x0).Div(span)
	if err != nil {
		return y0
	}
	return y0.Add(frac.Mul(y1.Sub(y0)))
}

const secondsPerYear = 365 * 24 * 3600

// Bank is the per-token ledger.
type Bank struct {
	TokenIndex int64
	Mint       common.Address
	Vault      common.Address
	Group      common.Address

	IndexedTotalDeposits fixedpoint.I80F48
	IndexedTotalBorrows  fixedpoint.I80F48
	DepositIndex         fixedpoint.I80F48
	BorrowIndex          fixedpoint.I80F48

	Curve InterestCurve
	// LoanFeeRate is the small constant-rate loan-origination fee charged
	// per update_index tick on outstanding borrows, accrued to the bank
	// accrued continuously to the bank, distinct from
	// LoanOriginationFeeRate which is charged once at withdraw time.
	LoanFeeRate fixedpoint.I80F48

	MaintAssetWeight fixedpoint.I80F48
	InitAssetWeight  fixedpoint.I80F48
	MaintLiabWeight  fixedpoint.I80F48
	InitLiabWeight   fixedpoint.I80F48

	LiquidationFee         fixedpoint.I80F48
	PlatformLiquidationFee fixedpoint.I80F48
	LoanOriginationFeeRate fixedpoint.I80F48

	MinVaultToDepositsRatio fixedpoint.I80F48

	NetBorrowLimitPerWindowQuote fixedpoint.I80F48
	NetBorrowLimitWindowSizeTs   int64
	NetBorrowsInWindow           fixedpoint.I80F48
	LastNetBorrowsWindowStartTs  int64

	ReduceOnly               ReduceOnlyMode
	ForceClose               bool
	DisableAssetLiquidation  bool
	ForceWithdraw            bool

	CollectedFeesNative fixedpoint.I80F48
	VaultNative         fixedpoint.I80F48

	LastUpdatedTs int64
}

// NativeTotalDeposits returns indexed_total_deposits * deposit_index.
func (b *Bank) NativeTotalDeposits() fixedpoint.I80F48 {
	return b.IndexedTotalDeposits.Mul(b.DepositIndex)
}

// NativeTotalBorrows returns indexed_total_borrows * borrow_index.
func (b *Bank) NativeTotalBorrows() fixedpoint.I80F48 {
	return b.IndexedTotalBorrows.Mul(b.BorrowIndex)
}

// Utilization returns borrows/deposits, 0 if there are no deposits.
func (b *Bank) Utilization() fixedpoint.I80F48 {
	deposits := b.NativeTotalDeposits()
	if deposits.IsZero() {
		return fixedpoint.Zero
	}
	u, err := b.NativeTotalBorrows().Div(deposits)
	if err != nil {
		return fixedpoint.Zero
	}
	return u
}

// NewDefault builds a bank with sane starting indices (both 1.0) and the
// default interest curve, ready for deposits.
func NewDefault(tokenIndex int64, mint, vault, group common.Address, now int64) *Bank {
	return &Bank{
		TokenIndex:   tokenIndex,
		Mint:         mint,
		Vault:        vault,
		Group:        group,
		DepositIndex: fixedpoint.One(),
		BorrowIndex:  fixedpoint.One(),
		Curve:        DefaultCurve(),
		LoanFeeRate:  fixedpoint.FromFloat64(0.0005),

		MaintAssetWeight: fixedpoint.FromFloat64(0.9),
		InitAssetWeight:  fixedpoint.FromFloat64(0.8),
		MaintLiabWeight:  fixedpoint.FromFloat64(1.1),
		InitLiabWeight:   fixedpoint.FromFloat64(1.2),

		LiquidationFee:         fixedpoint.FromFloat64(0.02),
		PlatformLiquidationFee: fixedpoint.FromFloat64(0.005),
		LoanOriginationFeeRate: fixedpoint.FromFloat64(0.0005),

		MinVaultToDepositsRatio: fixedpoint.FromFloat64(0.1),

		NetBorrowLimitPerWindowQuote: fixedpoint.FromFloat64(1_000_000),
		NetBorrowLimitWindowSizeTs:   3600,

		LastUpdatedTs: now,
	}
}

// Deposit credits native_amount to an indexed position, rounding one ULP
// in the user's favor so withdraw(deposit(x)) >= x. Returns whether the
// position transitions
// from zero to nonzero.
func (b *Bank) Deposit(indexedPosition fixedpoint.I80F48, nativeAmount fixedpoint.I80F48) (newIndexed fixedpoint.I80F48, activated bool, err error) {
	if nativeAmount.IsNegative() || nativeAmount.IsZero() {
		return indexedPosition, false, fmt.Errorf("bank: deposit amount must be positive")
	}
	wasInactive := indexedPosition.IsZero()

	nativeBalance := b.nativeOf(indexedPosition)
	newNative := nativeBalance.Add(nativeAmount)

	newIndexed = b.indexedOf(newNative).Add(fixedpoint.OneULP())

	b.applyPositionDelta(indexedPosition, newIndexed)
	b.VaultNative = b.VaultNative.Add(nativeAmount)

	activated = wasInactive && !newIndexed.IsZero()
	return newIndexed, activated, nil
}

// Withdraw debits native_amount. If the result would be negative and
// allow_borrow is false, it fails InsufficientFunds; otherwise the
// remainder becomes (or extends) a borrow.
func (b *Bank) Withdraw(indexedPosition, nativeAmount fixedpoint.I80F48, allowBorrow bool, oraclePrice fixedpoint.I80F48, now int64) (newIndexed fixedpoint.I80F48, activated bool, err error) {
	if nativeAmount.IsNegative() || nativeAmount.IsZero() {
		return indexedPosition, false, fmt.Errorf("bank: withdraw amount must be positive")
	}

	nativeBalance := b.nativeOf(indexedPosition)
	newNative := nativeBalance.Sub(nativeAmount)

	if newNative.IsNegative() {
		if !allowBorrow {
			return indexedPosition, false, marginerr.ErrInsufficientFunds
		}
		if b.ReduceOnly == ReduceOnlyDepositsRepayOnly || b.ReduceOnly == ReduceOnlyNoNewBorrows {
			return indexedPosition, false, marginerr.ErrTokenInReduceOnlyMode
		}
		if b.ForceClose {
			return indexedPosition, false, marginerr.ErrTokenInForceClose
		}

		borrowDelta := nativeAmount
		if nativeBalance.IsPositive() {
			borrowDelta = newNative.Neg()
		}
		if err := b.checkBorrowLimits(borrowDelta, oraclePrice, now); err != nil {
			return indexedPosition, false, err
		}
		b.rollNetBorrowWindow(now)
		b.NetBorrowsInWindow = b.NetBorrowsInWindow.Add(fixedpoint.FromInt64(borrowDelta.Mul(oraclePrice).CeilToInt64()))
	}

	wasInactive := indexedPosition.IsZero()
	newIndexed = b.indexedOf(newNative)
	b.applyPositionDelta(indexedPosition, newIndexed)
	b.VaultNative = b.VaultNative.Sub(nativeAmount)

	activated = wasInactive && !newIndexed.IsZero()
	return newIndexed, activated, nil
}

// WithdrawWithFee withdraws and, if the withdrawal creates or extends a
// borrow, additionally charges loan_origination_fee_rate on just the
// newly-created borrow delta to the
// bank's collected_fees_native, ceil-rounded since it is a liability-side
// charge.
func (b *Bank) WithdrawWithFee(indexedPosition, nativeAmount fixedpoint.I80F48, allowBorrow bool, oraclePrice fixedpoint.I80F48, now int64) (fixedpoint.I80F48, bool, error) {
	nativeBalanceBefore := b.nativeOf(indexedPosition)

	newIndexed, activated, err := b.Withdraw(indexedPosition, nativeAmount, allowBorrow, oraclePrice, now)
	if err != nil {
		return indexedPosition, false, err
	}

	nativeBalanceAfter := b.nativeOf(newIndexed)
	if nativeBalanceAfter.IsNegative() {
		newBorrowPortion := fixedpoint.Min(nativeBalanceBefore, fixedpoint.Zero).Sub(fixedpoint.Min(nativeBalanceAfter, fixedpoint.Zero)).Abs()
		if nativeBalanceBefore.IsPositive() {
			newBorrowPortion = nativeBalanceAfter.Neg()
		}
		fee := fixedpoint.FromInt64(newBorrowPortion.Mul(b.LoanOriginationFeeRate).CeilToInt64())
		if fee.IsPositive() {
			b.CollectedFeesNative = b.CollectedFeesNative.Add(fee)
			newIndexed = b.indexedOf(b.nativeOf(newIndexed).Sub(fee))
		}
	}

	return newIndexed, activated, nil
}

func (b *Bank) checkBorrowLimits(borrowDelta, oraclePrice fixedpoint.I80F48, now int64) error {
	if b.ReduceOnly != ReduceOnlyOff {
		return marginerr.ErrTokenInReduceOnlyMode
	}

	newVault := b.VaultNative.Sub(borrowDelta)
	minVault := b.MinVaultToDepositsRatio.Mul(b.NativeTotalDeposits())
	if newVault.LessThan(minVault) {
		return marginerr.ErrBankBorrowLimitReached
	}

	projected := b.netBorrowsProjected(now).Add(fixedpoint.FromInt64(borrowDelta.Mul(oraclePrice).CeilToInt64()))
	if projected.GreaterThan(b.NetBorrowLimitPerWindowQuote) {
		return marginerr.ErrBankNetBorrowsLimitReached
	}
	return nil
}

func (b *Bank) netBorrowsProjected(now int64) fixedpoint.I80F48 {
	if b.NetBorrowLimitWindowSizeTs <= 0 {
		return b.NetBorrowsInWindow
	}
	if now/b.NetBorrowLimitWindowSizeTs != b.LastNetBorrowsWindowStartTs/b.NetBorrowLimitWindowSizeTs {
		return fixedpoint.Zero
	}
	return b.NetBorrowsInWindow
}

// rollNetBorrowWindow resets the rolling window counter when the current
// tick has moved into a new window bucket.
func (b *Bank) rollNetBorrowWindow(now int64) {
	if b.NetBorrowLimitWindowSizeTs <= 0 {
		return
	}
	if b.LastNetBorrowsWindowStartTs == 0 || now/b.NetBorrowLimitWindowSizeTs != b.LastNetBorrowsWindowStartTs/b.NetBorrowLimitWindowSizeTs {
		b.NetBorrowsInWindow = fixedpoint.Zero
		b.LastNetBorrowsWindowStartTs = now
	}
}

// DepositReducesBorrow reduces net_borrows_in_window by however much of a
// deposit repays an outstanding borrow: only the repayment part
// decrements usage. indexedBefore must be the
// position's indexed value prior to the deposit call.
func (b *Bank) DepositReducesBorrow(indexedBefore fixedpoint.I80F48, nativeAmount fixedpoint.I80F48) {
	nativeBefore := b.nativeOf(indexedBefore)
	if nativeBefore.IsNegative() {
		repaid := fixedpoint.Min(nativeAmount, nativeBefore.Neg())
		b.NetBorrowsInWindow = b.NetBorrowsInWindow.Sub(repaid)
		if b.NetBorrowsInWindow.IsNegative() {
			b.NetBorrowsInWindow = fixedpoint.Zero
		}
	}
}

// UpdateIndex runs the once-per-tick interest accrual:
// loan fee on outstanding borrows, then the interest curve applied as a
// geometric step to both indices.
func (b *Bank) UpdateIndex(now int64) {
	dt := now - b.LastUpdatedTs
	if dt <= 0 {
		return
	}
	dtFrac, err := fixedpoint.FromInt64(dt).Div(fixedpoint.FromInt64(secondsPerYear))
	if err != nil {
		return
	}

	loanFeeAccrual := b.NativeTotalBorrows().Mul(b.LoanFeeRate).Mul(dtFrac)
	if loanFeeAccrual.IsPositive() && !b.BorrowIndex.IsZero() {
		extraIndexed, err := loanFeeAccrual.Div(b.BorrowIndex)
		if err == nil {
			b.IndexedTotalBorrows = b.IndexedTotalBorrows.Add(extraIndexed)
			b.CollectedFeesNative = b.CollectedFeesNative.Add(loanFeeAccrual)
		}
	}

	util := b.Utilization()
	borrowRate := b.Curve.RateAtUtilization(util)
	borrowInterest := borrowRate.Mul(dtFrac)
	depositInterest := borrowInterest.Mul(util)

	b.BorrowIndex = b.BorrowIndex.Mul(fixedpoint.One().Add(borrowInterest))
	b.DepositIndex = b.DepositIndex.Mul(fixedpoint.One().Add(depositInterest))

	b.LastUpdatedTs = now
}

// SocializeLoss reduces deposit_index so that
// total_indexed_deposits * delta_index == remainingLoss, the only path
// in the system permitted to decrease a deposit index. Returns the
// actual native amount absorbed (capped
// by what full socialization can cover).
func (b *Bank) SocializeLoss(remainingLoss fixedpoint.I80F48, logger *zap.SugaredLogger) fixedpoint.I80F48 {
	if remainingLoss.LessThanOrEqual(fixedpoint.Zero) || b.IndexedTotalDeposits.IsZero() {
		return fixedpoint.Zero
	}
	deltaIndex, err := remainingLoss.Div(b.IndexedTotalDeposits)
	if err != nil {
		return fixedpoint.Zero
	}
	if deltaIndex.GreaterThanOrEqual(b.DepositIndex) {
		// cannot drive the index to or below zero; absorb what we can.
		deltaIndex = b.DepositIndex.Mul(fixedpoint.FromFloat64(0.999999))
	}
	b.DepositIndex = b.DepositIndex.Sub(deltaIndex)
	absorbed := deltaIndex.Mul(b.IndexedTotalDeposits)
	if logger != nil {
		logger.Infow("bank_socialized_loss", "token_index", b.TokenIndex, "absorbed", absorbed.Float64(), "new_deposit_index", b.DepositIndex.Float64())
	}
	return absorbed
}

// nativeOf converts an indexed amount to native units, using deposit_index
// for positive balances and borrow_index for negative ones.
func (b *Bank) nativeOf(indexed fixedpoint.I80F48) fixedpoint.I80F48 {
	if indexed.IsNegative() {
		return indexed.Mul(b.BorrowIndex)
	}
	return indexed.Mul(b.DepositIndex)
}

// indexedOf is the inverse of nativeOf.
func (b *Bank) indexedOf(native fixedpoint.I80F48) fixedpoint.I80F48 {
	if native.IsNegative() {
		idx, err := native.Div(b.BorrowIndex)
		if err != nil {
			return fixedpoint.Zero
		}
		return idx
	}
	idx, err := native.Div(b.DepositIndex)
	if err != nil {
		return fixedpoint.Zero
	}
	return idx
}

// applyPositionDelta moves the indexed totals by the change between old
// and new position values, correctly handling sign transitions across
// zero (deposit pool vs borrow pool).
func (b *Bank) applyPositionDelta(oldIndexed, newIndexed fixedpoint.I80F48) {
	oldDeposit, oldBorrow := splitIndexed(oldIndexed)
	newDeposit, newBorrow := splitIndexed(newIndexed)

	b.IndexedTotalDeposits = b.IndexedTotalDeposits.Add(newDeposit).Sub(oldDeposit)
	b.IndexedTotalBorrows = b.IndexedTotalBorrows.Add(newBorrow).Sub(oldBorrow)
}

func splitIndexed(v fixedpoint.I80F48) (deposit, borrow fixedpoint.I80F48) {
	if v.IsPositive() {
		return v, fixedpoint.Zero
	}
	if v.IsNegative() {
		return fixedpoint.Zero, v.Neg()
	}
	return fixedpoint.Zero, fixedpoint.Zero
}

// AtRest reports whether native_total_deposits >= native_total_borrows
// Transiently violated mid-instruction during
// socialized loss; callers check this only between instructions.
func (b *Bank) AtRest() bool {
	return b.NativeTotalDeposits().GreaterThanOrEqual(b.NativeTotalBorrows())
}
