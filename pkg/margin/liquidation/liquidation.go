// Package liquidation implements the liquidator-facing instructions that
// unwind an undercollateralized account: swapping its spot assets for its
// spot liabilities, taking over its perp base position, and — once
// nothing liquidatable remains — writing off what the insurance fund and
// the rest of the bank's depositors must absorb.
package liquidation

import (
	"github.com/uhyunpark/hyperlicked/pkg/margin/account"
	"github.com/uhyunpark/hyperlicked/pkg/margin/bank"
	"github.com/uhyunpark/hyperlicked/pkg/margin/fixedpoint"
	"github.com/uhyunpark/hyperlicked/pkg/margin/health"
	"github.com/uhyunpark/hyperlicked/pkg/margin/marginerr"
	"github.com/uhyunpark/hyperlicked/pkg/margin/perp/market"
)

// EnterOrRelease transitions an account's liquidation flag based on its
// current health: flags a healthy-looking account that just went
// maint-negative, and releases one already flagged once its
// liquidation-end health recovers to non-negative. Every liquidation
// instruction calls this first so being_liquidated never goes stale.
func EnterOrRelease(acc *account.Account, cache health.Cache) (health.Liquidatable, error) {
	result := health.CheckLiquidatable(acc, cache)
	switch result {
	case health.IsLiquidatable:
		if !acc.IsBeingLiquidated() {
			acc.EnterLiquidation(health.Compute(acc, cache, health.Maint))
		}
	case health.BecameNotLiquidatable:
		acc.ExitLiquidation()
	case health.NotLiquidatable:
		if acc.IsBeingLiquidated() {
			return result, marginerr.ErrBeingLiquidated
		}
	}
	return result, nil
}

// TokenLiqWithTokenParams describes one call transferring liqee liability
// for liqee asset, paid for by the liqor.
type TokenLiqWithTokenParams struct {
	Liqor, Liqee                *account.Account
	AssetBank, LiabBank         *bank.Bank
	AssetPrice, LiabPrice       fixedpoint.I80F48
	LiqeeCache                  health.Cache
	AssetTokenIndex, LiabTokenIndex int64
	MaxLiabTransfer             fixedpoint.I80F48
	Now                         int64
}

// TokenLiqWithTokenResult reports how much moved.
type TokenLiqWithTokenResult struct {
	AssetTransfer fixedpoint.I80F48
	LiabTransfer  fixedpoint.I80F48
}

// TokenLiqWithToken computes how much of the liqee's liability a liqor
// must cover — and how much of the liqee's asset it receives in
// exchange — to bring the liqee's init health back toward zero, capped by
// what the liqee actually holds and by the caller's MaxLiabTransfer.
func TokenLiqWithToken(p TokenLiqWithTokenParams) (TokenLiqWithTokenResult, error) {
	if p.AssetTokenIndex == p.LiabTokenIndex {
		return TokenLiqWithTokenResult{}, marginerr.ErrDifferentSettleToken
	}
	if !p.Liqee.IsBeingLiquidated() {
		maint := health.Compute(p.Liqee, p.LiqeeCache, health.Maint)
		if !maint.IsNegative() {
			return TokenLiqWithTokenResult{}, marginerr.ErrHealthMustBeNegative
		}
		p.Liqee.EnterLiquidation(maint)
	}

	initHealth := health.Compute(p.Liqee, p.LiqeeCache, health.Init)

	liqeeAsset := p.Liqee.TokenPositionByIndex(p.AssetTokenIndex)
	liqeeLiab := p.Liqee.TokenPositionByIndex(p.LiabTokenIndex)
	if liqeeAsset == nil || liqeeLiab == nil {
		return TokenLiqWithTokenResult{}, marginerr.ErrNoFreeTokenPosition
	}
	liqeeAssetNative := liqeeAsset.Native(p.AssetBank)
	liqeeLiabNative := liqeeLiab.Native(p.LiabBank)
	if !liqeeAssetNative.IsPositive() || !liqeeLiabNative.IsNegative() {
		return TokenLiqWithTokenResult{}, marginerr.ErrProfitabilityMismatch
	}

	feeFactor := fixedpoint.One().Add(p.AssetBank.LiquidationFee).Add(p.LiabBank.LiquidationFee)
	liabPriceAdjusted := p.LiabPrice.Mul(feeFactor)

	// solve for the liab transfer x that brings init health to zero:
	// initHealth + x*initLiabWeight*liabPrice - (x*liabPriceAdjusted/assetPrice)*initAssetWeight*assetPrice = 0
	denom := p.LiabPrice.Mul(p.LiabBank.InitLiabWeight).Sub(p.AssetBank.InitAssetWeight.Mul(liabPriceAdjusted))
	liabNeeded := fixedpoint.Zero
	if !denom.IsZero() {
		if n, err := initHealth.Neg().Div(denom); err == nil {
			liabNeeded = n
		}
	}

	liabPossible := fixedpoint.Zero
	if !liabPriceAdjusted.IsZero() {
		if lp, err := liqeeAssetNative.Mul(p.AssetPrice).Div(liabPriceAdjusted); err == nil {
			liabPossible = lp
		}
	}

	liabTransfer := fixedpoint.Min(fixedpoint.Min(liabNeeded, liqeeLiabNative.Neg()), liabPossible)
	liabTransfer = fixedpoint.Min(liabTransfer, p.MaxLiabTransfer)
	if !liabTransfer.IsPositive() {
		return TokenLiqWithTokenResult{}, marginerr.ErrSettlementAmountMustBePositive
	}

	assetTransfer := fixedpoint.Zero
	if !p.AssetPrice.IsZero() {
		if at, err := liabTransfer.Mul(liabPriceAdjusted).Div(p.AssetPrice); err == nil {
			assetTransfer = at
		}
	}

	newLiqeeLiabIndexed, _, err := p.LiabBank.Deposit(liqeeLiab.IndexedPosition, liabTransfer)
	if err != nil {
		return TokenLiqWithTokenResult{}, err
	}
	liqeeLiab.IndexedPosition = newLiqeeLiabIndexed

	liqorLiab, _, err := p.Liqor.EnsureTokenPosition(p.LiabTokenIndex)
	if err != nil {
		return TokenLiqWithTokenResult{}, err
	}
	newLiqorLiabIndexed, _, err := p.LiabBank.WithdrawWithFee(liqorLiab.IndexedPosition, liabTransfer, true, p.LiabPrice, p.Now)
	if err != nil {
		return TokenLiqWithTokenResult{}, err
	}
	liqorLiab.IndexedPosition = newLiqorLiabIndexed

	liqorAsset, _, err := p.Liqor.EnsureTokenPosition(p.AssetTokenIndex)
	if err != nil {
		return TokenLiqWithTokenResult{}, err
	}
	newLiqorAssetIndexed, _, err := p.AssetBank.Deposit(liqorAsset.IndexedPosition, assetTransfer)
	if err != nil {
		return TokenLiqWithTokenResult{}, err
	}
	liqorAsset.IndexedPosition = newLiqorAssetIndexed

	newLiqeeAssetIndexed, _, err := p.AssetBank.Withdraw(liqeeAsset.IndexedPosition, assetTransfer, false, p.AssetPrice, p.Now)
	if err != nil {
		return TokenLiqWithTokenResult{}, err
	}
	liqeeAsset.IndexedPosition = newLiqeeAssetIndexed

	p.Liqee.DeactivateTokenPositionIfEmpty(p.AssetTokenIndex)
	p.Liqee.DeactivateTokenPositionIfEmpty(p.LiabTokenIndex)
	p.Liqor.DeactivateTokenPositionIfEmpty(p.AssetTokenIndex)
	p.Liqor.DeactivateTokenPositionIfEmpty(p.LiabTokenIndex)

	return TokenLiqWithTokenResult{AssetTransfer: assetTransfer, LiabTransfer: liabTransfer}, nil
}

// PerpLiqBasePositionParams describes a forced trade that takes over part
// of the liqee's perp base position in exchange for quote, at the
// oracle price discounted (or loaded) by the market's liquidation fee.
type PerpLiqBasePositionParams struct {
	Liqor, Liqee    *account.Account
	Market          *market.PerpMarket
	OraclePrice     fixedpoint.I80F48
	LiqeeCache      health.Cache
	MaxBaseTransfer int64
}

// PerpLiqBasePositionResult reports the forced trade executed.
type PerpLiqBasePositionResult struct {
	BaseTransfer  int64
	QuoteTransfer fixedpoint.I80F48
}

// perpLiqLegs holds the per-lot constants both LiqBaseReduce and
// LiqPositivePnLTakeover need, computed once from which side of the book
// the liqee's position sits on.
type perpLiqLegs struct {
	liqeePos, liqorPos              *account.PerpPosition
	direction                       int64
	feeFactor, unweightedHealthPerLot fixedpoint.I80F48
	liqeeBaseLots                   int64
	pricePerLot                     fixedpoint.I80F48
}

func settleAndSizeLegs(p PerpLiqBasePositionParams) (perpLiqLegs, error) {
	liqeePos := p.Liqee.PerpPositionByMarket(p.Market.MarketIndex)
	if liqeePos == nil {
		return perpLiqLegs{}, marginerr.ErrPerpPositionNotFound
	}
	if liqeePos.BasePositionLots == 0 {
		return perpLiqLegs{}, marginerr.ErrNotLiquidatable
	}

	liqorPos, err := p.Liqor.EnsurePerpPosition(p.Market.MarketIndex)
	if err != nil {
		return perpLiqLegs{}, err
	}
	liqeePos.SettleFunding(p.Market)
	liqorPos.SettleFunding(p.Market)

	pricePerLot := fixedpoint.FromInt64(p.Market.BaseLotSize).Mul(p.OraclePrice)

	var direction int64
	var feeFactor, unweightedHealthPerLot fixedpoint.I80F48
	liqeeBaseLots := liqeePos.BasePositionLots
	if liqeeBaseLots > 0 {
		direction = -1
		feeFactor = fixedpoint.One().Sub(p.Market.LiquidationFee)
		unweightedHealthPerLot = pricePerLot.Mul(p.Market.InitBaseAssetWeight.Neg().Add(feeFactor))
	} else {
		direction = 1
		feeFactor = fixedpoint.One().Add(p.Market.LiquidationFee)
		unweightedHealthPerLot = pricePerLot.Mul(p.Market.InitBaseLiabWeight.Sub(feeFactor))
	}
	if !unweightedHealthPerLot.IsPositive() {
		return perpLiqLegs{}, marginerr.ErrNotLiquidatable
	}

	return perpLiqLegs{
		liqeePos: liqeePos, liqorPos: liqorPos,
		direction: direction, feeFactor: feeFactor, unweightedHealthPerLot: unweightedHealthPerLot,
		liqeeBaseLots: liqeeBaseLots, pricePerLot: pricePerLot,
	}, nil
}

func applyBaseTransfer(legs perpLiqLegs, baseLots int64) (PerpLiqBasePositionResult, error) {
	baseTransfer := legs.direction * baseLots
	if baseTransfer == 0 {
		return PerpLiqBasePositionResult{}, marginerr.ErrNotLiquidatable
	}
	quoteTransfer := fixedpoint.FromInt64(baseTransfer).Neg().Mul(legs.pricePerLot).Mul(legs.feeFactor)

	legs.liqeePos.BasePositionLots += baseTransfer
	legs.liqeePos.QuotePositionNative = legs.liqeePos.QuotePositionNative.Add(quoteTransfer)
	legs.liqorPos.BasePositionLots -= baseTransfer
	legs.liqorPos.QuotePositionNative = legs.liqorPos.QuotePositionNative.Sub(quoteTransfer)

	return PerpLiqBasePositionResult{BaseTransfer: baseTransfer, QuoteTransfer: quoteTransfer}, nil
}

// LiqBaseReduce is step 1 of perp liquidation: it closes down just enough
// of the liqee's base position to bring that position's own unweighted
// health contribution back to zero. A liquidator always calls this first;
// if OverallPnlAssetWeight is zero the position can't contribute positive
// PnL to health at all, so there is nothing for LiqPositivePnLTakeover to
// do and this call is the whole liquidation.
func LiqBaseReduce(p PerpLiqBasePositionParams) (PerpLiqBasePositionResult, error) {
	legs, err := settleAndSizeLegs(p)
	if err != nil {
		return PerpLiqBasePositionResult{}, err
	}

	initHealth := health.Compute(p.Liqee, p.LiqeeCache, health.Init)
	unweightedPerpInit := unweightedPerpContribution(legs.liqeePos, p.Market, p.OraclePrice)

	step1Limit := fixedpoint.Min(fixedpoint.Max(unweightedPerpInit, initHealth), fixedpoint.Zero)
	step1Base := capStepBase(step1Limit, legs.unweightedHealthPerLot, abs64(legs.liqeeBaseLots), abs64(p.MaxBaseTransfer))

	return applyBaseTransfer(legs, step1Base)
}

// LiqPositivePnLTakeover is step 2 of perp liquidation: once the position's
// own unweighted contribution is non-negative (LiqBaseReduce has already
// run, or the position never needed it) and the market still counts
// profitable positions toward health, this closes further lots under the
// OverallPnlAssetWeight-scaled rate, up to the liqee's remaining negative
// init health.
func LiqPositivePnLTakeover(p PerpLiqBasePositionParams) (PerpLiqBasePositionResult, error) {
	legs, err := settleAndSizeLegs(p)
	if err != nil {
		return PerpLiqBasePositionResult{}, err
	}
	if !p.Market.OverallPnlAssetWeight.IsPositive() {
		return PerpLiqBasePositionResult{}, marginerr.ErrNotLiquidatable
	}

	initHealth := health.Compute(p.Liqee, p.LiqeeCache, health.Init)
	unweightedPerpInit := unweightedPerpContribution(legs.liqeePos, p.Market, p.OraclePrice)
	if unweightedPerpInit.IsNegative() {
		return PerpLiqBasePositionResult{}, marginerr.ErrNotLiquidatable
	}

	step2Limit := fixedpoint.Min(initHealth, fixedpoint.Zero)
	weightedHealthPerLot := legs.unweightedHealthPerLot.Mul(p.Market.OverallPnlAssetWeight)
	step2Base := capStepBase(step2Limit, weightedHealthPerLot, abs64(legs.liqeeBaseLots), abs64(p.MaxBaseTransfer))

	return applyBaseTransfer(legs, step2Base)
}

// PerpLiqBasePosition runs both liquidation steps in sequence against a
// single snapshot of the liqee's health, for callers (tests, the
// bankruptcy sequencer) that want the combined effect in one call rather
// than issuing LiqBaseReduce and LiqPositivePnLTakeover separately.
func PerpLiqBasePosition(p PerpLiqBasePositionParams) (PerpLiqBasePositionResult, error) {
	step1, err := LiqBaseReduce(p)
	if err != nil {
		step1 = PerpLiqBasePositionResult{}
	}

	p.MaxBaseTransfer -= abs64(step1.BaseTransfer)
	step2, err2 := LiqPositivePnLTakeover(p)
	if err2 != nil {
		step2 = PerpLiqBasePositionResult{}
	}

	if step1.BaseTransfer == 0 && step2.BaseTransfer == 0 {
		return PerpLiqBasePositionResult{}, marginerr.ErrNotLiquidatable
	}
	return PerpLiqBasePositionResult{
		BaseTransfer:  step1.BaseTransfer + step2.BaseTransfer,
		QuoteTransfer: step1.QuoteTransfer.Add(step2.QuoteTransfer),
	}, nil
}

// unweightedPerpContribution recomputes one position's unweighted health
// (before the overall-pnl weight is applied), mirroring the token-free
// half of perpContribution in pkg/margin/health so step 1 can size how
// many lots bring that number back to zero without exposing an internal
// of the health package.
func unweightedPerpContribution(pos *account.PerpPosition, m *market.PerpMarket, oraclePrice fixedpoint.I80F48) fixedpoint.I80F48 {
	baseLots := pos.BasePositionLots + pos.TakerBaseLots
	notional := fixedpoint.FromInt64(baseLots).Mul(fixedpoint.FromInt64(m.BaseLotSize)).Mul(oraclePrice)

	directionWeight := m.InitBaseLiabWeight
	if baseLots >= 0 {
		directionWeight = m.InitBaseAssetWeight
	}

	quote := pos.QuotePositionNative.Add(fixedpoint.FromInt64(pos.TakerQuoteLots))
	return notional.Mul(directionWeight).Add(quote)
}

func capStepBase(healthLimit, perLot fixedpoint.I80F48, maxAbs ...int64) int64 {
	if !healthLimit.IsNegative() || !perLot.IsPositive() {
		return 0
	}
	raw, err := healthLimit.Neg().Div(perLot)
	if err != nil {
		return 0
	}
	base := raw.CeilToInt64()
	for _, m := range maxAbs {
		if m < 0 {
			m = 0
		}
		if base > m {
			base = m
		}
	}
	if base < 0 {
		base = 0
	}
	return base
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// TokenLiqBankruptcyParams describes writing off a liqee's remaining
// liability once nothing liquidatable is left: first the insurance fund
// absorbs what it can, then any remainder is socialized across the bank's
// depositors via SocializeLoss.
type TokenLiqBankruptcyParams struct {
	Liqor, Liqee        *account.Account
	LiabBank, QuoteBank *bank.Bank // QuoteBank nil when LiabBank is itself the insurance token
	LiabPrice, QuotePrice fixedpoint.I80F48
	InsuranceVaultNative  fixedpoint.I80F48
	MaxLiabTransfer       fixedpoint.I80F48
	Now                   int64
}

// TokenLiqBankruptcyResult reports how the loss was absorbed.
type TokenLiqBankruptcyResult struct {
	InsuranceTransfer fixedpoint.I80F48
	SocializedLoss    fixedpoint.I80F48
}

// TokenLiqBankruptcy requires the liqee's liability position to already
// be negative with no liquidatable assets left to offset it (callers
// enforce that via health.CheckLiquidatable before calling this).
func TokenLiqBankruptcy(p TokenLiqBankruptcyParams) (TokenLiqBankruptcyResult, error) {
	liqeeLiab := p.Liqee.TokenPositionByIndex(p.LiabBank.TokenIndex)
	if liqeeLiab == nil {
		return TokenLiqBankruptcyResult{}, marginerr.ErrNoFreeTokenPosition
	}
	initialLiabNative := liqeeLiab.Native(p.LiabBank)
	if !initialLiabNative.IsNegative() {
		return TokenLiqBankruptcyResult{}, marginerr.ErrProfitabilityMismatch
	}
	remainingLoss := initialLiabNative.Neg()
	if p.MaxLiabTransfer.LessThan(remainingLoss) {
		remainingLoss = p.MaxLiabTransfer
	}

	liabToQuoteWithFee := fixedpoint.One()
	if p.QuoteBank != nil {
		feeFactor := fixedpoint.One().Add(p.LiabBank.LiquidationFee)
		if ratio, err := p.LiabPrice.Mul(feeFactor).Div(p.QuotePrice); err == nil {
			liabToQuoteWithFee = ratio
		}
	}

	insuranceTransfer := fixedpoint.Min(remainingLoss.Mul(liabToQuoteWithFee), p.InsuranceVaultNative)
	liabTransfer := fixedpoint.Zero
	if !liabToQuoteWithFee.IsZero() {
		if lt, err := insuranceTransfer.Div(liabToQuoteWithFee); err == nil {
			liabTransfer = lt
		}
	}

	if liabTransfer.IsPositive() {
		newLiqeeLiabIndexed, _, err := p.LiabBank.Deposit(liqeeLiab.IndexedPosition, liabTransfer)
		if err != nil {
			return TokenLiqBankruptcyResult{}, err
		}
		liqeeLiab.IndexedPosition = newLiqeeLiabIndexed
		remainingLoss = remainingLoss.Sub(liabTransfer)

		if p.QuoteBank != nil {
			liqorQuote, _, err := p.Liqor.EnsureTokenPosition(p.QuoteBank.TokenIndex)
			if err != nil {
				return TokenLiqBankruptcyResult{}, err
			}
			newIndexed, _, err := p.QuoteBank.Deposit(liqorQuote.IndexedPosition, insuranceTransfer)
			if err != nil {
				return TokenLiqBankruptcyResult{}, err
			}
			liqorQuote.IndexedPosition = newIndexed

			liqorLiab, _, err := p.Liqor.EnsureTokenPosition(p.LiabBank.TokenIndex)
			if err != nil {
				return TokenLiqBankruptcyResult{}, err
			}
			newLiabIndexed, _, err := p.LiabBank.WithdrawWithFee(liqorLiab.IndexedPosition, liabTransfer, true, p.LiabPrice, p.Now)
			if err != nil {
				return TokenLiqBankruptcyResult{}, err
			}
			liqorLiab.IndexedPosition = newLiabIndexed
		}
	}

	insuranceExhausted := insuranceTransfer.Equal(p.InsuranceVaultNative)

	socializedLoss := fixedpoint.Zero
	if insuranceExhausted && remainingLoss.IsPositive() {
		socializedLoss = p.LiabBank.SocializeLoss(remainingLoss, nil)
		liqeeLiab.IndexedPosition = fixedpoint.Zero
	}

	p.Liqee.DeactivateTokenPositionIfEmpty(p.LiabBank.TokenIndex)

	return TokenLiqBankruptcyResult{InsuranceTransfer: insuranceTransfer, SocializedLoss: socializedLoss}, nil
}
