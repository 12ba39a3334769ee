// Package settlement implements perp_settle_pnl: realizing one account's
// profit against another account's loss in the same market, paid out
// through the market's settle token bank.
package settlement

import (
	"github.com/uhyunpark/hyperlicked/pkg/margin/account"
	"github.com/uhyunpark/hyperlicked/pkg/margin/bank"
	"github.com/uhyunpark/hyperlicked/pkg/margin/fixedpoint"
	"github.com/uhyunpark/hyperlicked/pkg/margin/health"
	"github.com/uhyunpark/hyperlicked/pkg/margin/marginerr"
	"github.com/uhyunpark/hyperlicked/pkg/margin/perp/market"
)

// PerpSettlePnlParams bundles everything one perp_settle_pnl call needs.
// AccountA must be profitable and AccountB must be at a loss; Settler
// (often equal to A or B) receives the settlement fee.
type PerpSettlePnlParams struct {
	AccountA *account.Account
	AccountB *account.Account
	Settler  *account.Account

	Market      *market.PerpMarket
	SettleBank  *bank.Bank
	OraclePrice fixedpoint.I80F48

	// ACache/BCache are health caches built from each account's current
	// token and perp positions, used to derive A's init/maint health and
	// B's settle-limited health.
	ACache health.Cache
	BCache health.Cache

	SettleFeeFlat              fixedpoint.I80F48
	SettleFeeFractionLowHealth fixedpoint.I80F48
	SettleFeeAmountThreshold   fixedpoint.I80F48

	Now int64
}

// PerpSettlePnlResult reports what was actually moved.
type PerpSettlePnlResult struct {
	Settlement fixedpoint.I80F48
	Fee        fixedpoint.I80F48
}

// SettlePnl realizes as much of account A's perp profit against account
// B's perp loss as B's settle-limited health allows, then pays the
// settler a flat-plus-low-health-proportional fee out of A's side of the
// transfer.
func SettlePnl(p PerpSettlePnlParams) (PerpSettlePnlResult, error) {
	if p.AccountA == p.AccountB {
		return PerpSettlePnlResult{}, marginerr.ErrCannotSettleWithSelf
	}

	posA := p.AccountA.PerpPositionByMarket(p.Market.MarketIndex)
	posB := p.AccountB.PerpPositionByMarket(p.Market.MarketIndex)
	if posA == nil || posB == nil {
		return PerpSettlePnlResult{}, marginerr.ErrPerpPositionNotFound
	}

	bSettleHealth := health.PerpMaxSettle(p.AccountB, p.BCache, p.Market.SettleTokenIndex)
	if bSettleHealth.IsNegative() {
		return PerpSettlePnlResult{}, marginerr.ErrHealthMustBePositive
	}

	aInitHealth := health.Compute(p.AccountA, p.ACache, health.Init)
	aMaintHealth := health.Compute(p.AccountA, p.ACache, health.Maint)

	posA.SettleFunding(p.Market)
	posB.SettleFunding(p.Market)

	lotSize := fixedpoint.FromInt64(p.Market.BaseLotSize)
	aBaseNative := fixedpoint.FromInt64(posA.BasePositionLots).Mul(lotSize)
	bBaseNative := fixedpoint.FromInt64(posB.BasePositionLots).Mul(lotSize)
	aPnl := posA.QuotePositionNative.Add(aBaseNative.Mul(p.OraclePrice))
	bPnl := posB.QuotePositionNative.Add(bBaseNative.Mul(p.OraclePrice))

	if !aPnl.IsPositive() || !bPnl.IsNegative() {
		return PerpSettlePnlResult{}, marginerr.ErrProfitabilityMismatch
	}

	settlement := fixedpoint.Min(fixedpoint.Min(aPnl.Abs(), bPnl.Abs()), bSettleHealth)
	if !settlement.IsPositive() {
		return PerpSettlePnlResult{}, marginerr.ErrSettlementAmountMustBePositive
	}

	posA.QuotePositionNative = posA.QuotePositionNative.Sub(settlement)
	posB.QuotePositionNative = posB.QuotePositionNative.Add(settlement)

	fee := settlementFee(settlement, aInitHealth, aMaintHealth, p.SettleFeeFractionLowHealth, p.SettleFeeFlat, p.SettleFeeAmountThreshold)

	if err := transferSettlement(p.AccountA, p.AccountB, p.Settler, p.SettleBank, p.OraclePrice, p.Now, settlement, fee); err != nil {
		return PerpSettlePnlResult{}, err
	}

	return PerpSettlePnlResult{Settlement: settlement, Fee: fee}, nil
}

// settlementFee charges a flat fee plus a fraction that scales up as
// account A's init health runs negative, reflecting that settlement here
// pulled A back from (or further into) needing liquidation. The fee is
// capped at the settlement itself and waived below SettleFeeAmountThreshold.
func settlementFee(settlement, aInitHealth, aMaintHealth, feeFractionLowHealth, feeFlat, feeThreshold fixedpoint.I80F48) fixedpoint.I80F48 {
	lowHealthFee := fixedpoint.Zero
	if aInitHealth.IsNegative() {
		if aMaintHealth.IsNegative() {
			lowHealthFee = settlement.Mul(feeFractionLowHealth)
		} else {
			denom := aMaintHealth.Sub(aInitHealth)
			if ratio, err := aInitHealth.Neg().Div(denom); err == nil {
				lowHealthFee = settlement.Mul(feeFractionLowHealth).Mul(ratio)
			}
		}
	}

	if settlement.LessThan(feeThreshold) {
		return fixedpoint.Zero
	}
	return fixedpoint.Min(lowHealthFee.Add(feeFlat), settlement)
}

// transferSettlement moves settlement-fee native tokens through the
// settle bank: A receives settlement-fee, B pays the full settlement, and
// the settler collects fee.
func transferSettlement(accA, accB, settler *account.Account, b *bank.Bank, oraclePrice fixedpoint.I80F48, now int64, settlement, fee fixedpoint.I80F48) error {
	tokA, _, err := accA.EnsureTokenPosition(b.TokenIndex)
	if err != nil {
		return err
	}
	newIndexedA, _, err := b.Deposit(tokA.IndexedPosition, settlement.Sub(fee))
	if err != nil {
		return err
	}
	tokA.IndexedPosition = newIndexedA

	tokB, _, err := accB.EnsureTokenPosition(b.TokenIndex)
	if err != nil {
		return err
	}
	newIndexedB, _, err := b.WithdrawWithFee(tokB.IndexedPosition, settlement, true, oraclePrice, now)
	if err != nil {
		return err
	}
	tokB.IndexedPosition = newIndexedB
	accB.DeactivateTokenPositionIfEmpty(b.TokenIndex)

	if fee.IsZero() {
		return nil
	}
	tokS, _, err := settler.EnsureTokenPosition(b.TokenIndex)
	if err != nil {
		return err
	}
	newIndexedS, _, err := b.Deposit(tokS.IndexedPosition, fee)
	if err != nil {
		return err
	}
	tokS.IndexedPosition = newIndexedS
	return nil
}
