package engine

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperlicked/pkg/margin/fixedpoint"
	"github.com/uhyunpark/hyperlicked/pkg/margin/liquidation"
	"github.com/uhyunpark/hyperlicked/pkg/margin/marginerr"
)

// TokenLiqWithTokenParams describes a token_liq_with_token call.
type TokenLiqWithTokenParams struct {
	Liqor, Liqee                    common.Address
	AssetTokenIndex, LiabTokenIndex int64
	MaxLiabTransfer                 fixedpoint.I80F48
	Now                             int64
}

// TokenLiqWithToken covers part of the liqee's token liability with the
// liqor's capital in exchange for a discounted slice of the liqee's
// token asset, then refreshes the liqee's liquidation flag and checks
// the liqor's own post-condition health.
func (g *Group) TokenLiqWithToken(p TokenLiqWithTokenParams) (liquidation.TokenLiqWithTokenResult, error) {
	liqor, ok := g.lookupAccount(p.Liqor)
	if !ok {
		return liquidation.TokenLiqWithTokenResult{}, marginerr.ErrNoFreeTokenPosition
	}
	liqee, ok := g.lookupAccount(p.Liqee)
	if !ok {
		return liquidation.TokenLiqWithTokenResult{}, marginerr.ErrNoFreeTokenPosition
	}
	assetBank, ok := g.Banks[p.AssetTokenIndex]
	if !ok {
		return liquidation.TokenLiqWithTokenResult{}, marginerr.ErrUnknownToken
	}
	liabBank, ok := g.Banks[p.LiabTokenIndex]
	if !ok {
		return liquidation.TokenLiqWithTokenResult{}, marginerr.ErrUnknownToken
	}

	assetPrice, err := g.tokenOraclePrice(p.AssetTokenIndex, p.Now)
	if err != nil {
		return liquidation.TokenLiqWithTokenResult{}, err
	}
	liabPrice, err := g.tokenOraclePrice(p.LiabTokenIndex, p.Now)
	if err != nil {
		return liquidation.TokenLiqWithTokenResult{}, err
	}

	liqeeCache, err := g.BuildCache(liqee, p.Now)
	if err != nil {
		return liquidation.TokenLiqWithTokenResult{}, err
	}

	result, err := liquidation.TokenLiqWithToken(liquidation.TokenLiqWithTokenParams{
		Liqor:           liqor,
		Liqee:           liqee,
		AssetBank:       assetBank,
		LiabBank:        liabBank,
		AssetPrice:      assetPrice,
		LiabPrice:       liabPrice,
		LiqeeCache:      liqeeCache,
		AssetTokenIndex: p.AssetTokenIndex,
		LiabTokenIndex:  p.LiabTokenIndex,
		MaxLiabTransfer: p.MaxLiabTransfer,
		Now:             p.Now,
	})
	if err != nil {
		return result, err
	}

	if _, err := g.liquidationTerminalCheck(liqee, p.Now); err != nil {
		return result, err
	}
	if err := g.checkPostHealth(liqor, p.Now, false); err != nil {
		return result, err
	}
	return result, nil
}

// PerpLiqBaseOrPositivePnlParams describes a perp_liq_base_or_positive_pnl
// call: the liquidation sequencer's two-step takeover of a liqee's perp
// base position.
type PerpLiqBaseOrPositivePnlParams struct {
	Liqor, Liqee    common.Address
	MarketIndex     int64
	MaxBaseTransfer int64
	Now             int64
}

// PerpLiqBaseOrPositivePnl runs LiqBaseReduce followed by
// LiqPositivePnLTakeover against one snapshot of the liqee's health
// (pkg/margin/liquidation.PerpLiqBasePosition), then refreshes the
// liqee's liquidation flag and the liqor's own health.
func (g *Group) PerpLiqBaseOrPositivePnl(p PerpLiqBaseOrPositivePnlParams) (liquidation.PerpLiqBasePositionResult, error) {
	liqor, ok := g.lookupAccount(p.Liqor)
	if !ok {
		return liquidation.PerpLiqBasePositionResult{}, marginerr.ErrPerpPositionNotFound
	}
	liqee, ok := g.lookupAccount(p.Liqee)
	if !ok {
		return liquidation.PerpLiqBasePositionResult{}, marginerr.ErrPerpPositionNotFound
	}
	m, ok := g.Markets[p.MarketIndex]
	if !ok {
		return liquidation.PerpLiqBasePositionResult{}, marginerr.ErrUnknownMarket
	}

	oraclePrice, err := g.marketOraclePrice(p.MarketIndex, p.Now)
	if err != nil {
		return liquidation.PerpLiqBasePositionResult{}, err
	}
	liqeeCache, err := g.BuildCache(liqee, p.Now)
	if err != nil {
		return liquidation.PerpLiqBasePositionResult{}, err
	}

	result, err := liquidation.PerpLiqBasePosition(liquidation.PerpLiqBasePositionParams{
		Liqor:           liqor,
		Liqee:           liqee,
		Market:          m,
		OraclePrice:     oraclePrice,
		LiqeeCache:      liqeeCache,
		MaxBaseTransfer: p.MaxBaseTransfer,
	})
	if err != nil {
		return result, err
	}

	liqee.DeactivatePerpPositionIfEmpty(p.MarketIndex)
	if _, err := g.liquidationTerminalCheck(liqee, p.Now); err != nil {
		return result, err
	}
	if err := g.checkPostHealth(liqor, p.Now, false); err != nil {
		return result, err
	}
	return result, nil
}

// PerpLiqNegativePnlParams describes a perp_liq_negative_pnl_or_bankruptcy
// call against a liqee whose base position is already flat (LiqBaseReduce
// has run) and whose quote value is negative.
type PerpLiqNegativePnlParams struct {
	Liqor, Liqee common.Address
	MarketIndex  int64
	MaxTransfer  fixedpoint.I80F48
	Now          int64
}

// PerpLiqNegativePnlResult reports how a liqee's negative perp quote
// value was absorbed, across however many of the three branches ran.
type PerpLiqNegativePnlResult struct {
	// LiqorTakeover is branch (a): capital the liqor paid in directly,
	// in exchange for the matching credit to the liqee's quote position.
	LiqorTakeover fixedpoint.I80F48
	// InsuranceTransfer is branch (b): what the insurance fund covered
	// once the liqor's own MaxTransfer was exhausted.
	InsuranceTransfer fixedpoint.I80F48
	// SocializedLoss is branch (c): what the settle bank's depositors
	// absorbed once the insurance fund was exhausted too.
	SocializedLoss fixedpoint.I80F48
}

// PerpLiqNegativePnlOrBankruptcy retires a flat, negative-quote perp
// position through as many of the three spec branches as the deficit
// requires: liqor capital first, then the insurance fund, then
// socialization across the settle token's depositors. Combining all
// three into one call (rather than three separate instructions) mirrors
// how PerpLiqBasePosition already combines its two steps.
func (g *Group) PerpLiqNegativePnlOrBankruptcy(p PerpLiqNegativePnlParams) (PerpLiqNegativePnlResult, error) {
	liqor, ok := g.lookupAccount(p.Liqor)
	if !ok {
		return PerpLiqNegativePnlResult{}, marginerr.ErrPerpPositionNotFound
	}
	liqee, ok := g.lookupAccount(p.Liqee)
	if !ok {
		return PerpLiqNegativePnlResult{}, marginerr.ErrPerpPositionNotFound
	}
	m, ok := g.Markets[p.MarketIndex]
	if !ok {
		return PerpLiqNegativePnlResult{}, marginerr.ErrUnknownMarket
	}
	liqeePos := liqee.PerpPositionByMarket(p.MarketIndex)
	if liqeePos == nil {
		return PerpLiqNegativePnlResult{}, marginerr.ErrPerpPositionNotFound
	}
	if liqeePos.BasePositionLots != 0 {
		return PerpLiqNegativePnlResult{}, marginerr.ErrNotLiquidatable
	}
	deficit := liqeePos.QuotePositionNative.Neg()
	if !deficit.IsPositive() {
		return PerpLiqNegativePnlResult{}, marginerr.ErrProfitabilityMismatch
	}
	settleBank, ok := g.Banks[m.SettleTokenIndex]
	if !ok {
		return PerpLiqNegativePnlResult{}, marginerr.ErrUnknownToken
	}

	remaining := deficit
	if p.MaxTransfer.IsPositive() {
		remaining = fixedpoint.Min(remaining, p.MaxTransfer)
	}

	var result PerpLiqNegativePnlResult

	if remaining.IsPositive() {
		quotePrice, err := g.tokenOraclePrice(settleBank.TokenIndex, p.Now)
		if err != nil {
			return PerpLiqNegativePnlResult{}, err
		}
		liqorTok, _, err := liqor.EnsureTokenPosition(settleBank.TokenIndex)
		if err != nil {
			return PerpLiqNegativePnlResult{}, err
		}
		newIndexed, _, err := settleBank.WithdrawWithFee(liqorTok.IndexedPosition, remaining, true, quotePrice, p.Now)
		if err != nil {
			return PerpLiqNegativePnlResult{}, err
		}
		liqorTok.IndexedPosition = newIndexed
		liqeePos.QuotePositionNative = liqeePos.QuotePositionNative.Add(remaining)
		result.LiqorTakeover = remaining
		deficit = deficit.Sub(remaining)
	}

	if deficit.IsPositive() {
		insurance := fixedpoint.Min(deficit, g.InsuranceVaultNative)
		if insurance.IsPositive() {
			g.InsuranceVaultNative = g.InsuranceVaultNative.Sub(insurance)
			liqeePos.QuotePositionNative = liqeePos.QuotePositionNative.Add(insurance)
			result.InsuranceTransfer = insurance
			deficit = deficit.Sub(insurance)
		}
	}

	if deficit.IsPositive() {
		absorbed := settleBank.SocializeLoss(deficit, g.Logger)
		liqeePos.QuotePositionNative = liqeePos.QuotePositionNative.Add(absorbed)
		result.SocializedLoss = absorbed
		if absorbed.LessThan(deficit) {
			liqee.MarkBankrupt()
		}
	}

	liqor.DeactivateTokenPositionIfEmpty(settleBank.TokenIndex)
	liqee.DeactivatePerpPositionIfEmpty(p.MarketIndex)

	if !liqee.IsBankrupt() {
		if _, err := g.liquidationTerminalCheck(liqee, p.Now); err != nil {
			return result, err
		}
	}
	return result, nil
}

// TokenLiqBankruptcyParams describes a token_liq_bankruptcy call against
// a liqee with no liquidatable assets left to offset a token liability.
type TokenLiqBankruptcyParams struct {
	Liqor, Liqee    common.Address
	LiabTokenIndex  int64
	MaxLiabTransfer fixedpoint.I80F48
	Now             int64
}

// TokenLiqBankruptcy writes off a liqee's remaining token liability:
// the insurance fund absorbs what it can (converting through the
// insurance token when the liability isn't already the insurance token),
// and SocializeLoss covers the rest across the bank's own depositors.
// It marks the liqee bankrupt whenever socialization was needed at all.
func (g *Group) TokenLiqBankruptcy(p TokenLiqBankruptcyParams) (liquidation.TokenLiqBankruptcyResult, error) {
	liqor, ok := g.lookupAccount(p.Liqor)
	if !ok {
		return liquidation.TokenLiqBankruptcyResult{}, marginerr.ErrNoFreeTokenPosition
	}
	liqee, ok := g.lookupAccount(p.Liqee)
	if !ok {
		return liquidation.TokenLiqBankruptcyResult{}, marginerr.ErrNoFreeTokenPosition
	}
	liabBank, ok := g.Banks[p.LiabTokenIndex]
	if !ok {
		return liquidation.TokenLiqBankruptcyResult{}, marginerr.ErrUnknownToken
	}

	quoteBankPtr := g.Banks[g.InsuranceTokenIndex]
	if p.LiabTokenIndex == g.InsuranceTokenIndex {
		quoteBankPtr = nil
	}

	liabPrice, err := g.tokenOraclePrice(p.LiabTokenIndex, p.Now)
	if err != nil {
		return liquidation.TokenLiqBankruptcyResult{}, err
	}
	quotePrice := fixedpoint.One()
	if quoteBankPtr != nil {
		quotePrice, err = g.tokenOraclePrice(g.InsuranceTokenIndex, p.Now)
		if err != nil {
			return liquidation.TokenLiqBankruptcyResult{}, err
		}
	}

	result, err := liquidation.TokenLiqBankruptcy(liquidation.TokenLiqBankruptcyParams{
		Liqor:                liqor,
		Liqee:                liqee,
		LiabBank:             liabBank,
		QuoteBank:            quoteBankPtr,
		LiabPrice:            liabPrice,
		QuotePrice:           quotePrice,
		InsuranceVaultNative: g.InsuranceVaultNative,
		MaxLiabTransfer:      p.MaxLiabTransfer,
		Now:                  p.Now,
	})
	if err != nil {
		return result, err
	}
	g.InsuranceVaultNative = g.InsuranceVaultNative.Sub(result.InsuranceTransfer)

	if result.SocializedLoss.IsPositive() {
		liqee.MarkBankrupt()
		return result, nil
	}
	if _, err := g.liquidationTerminalCheck(liqee, p.Now); err != nil {
		return result, err
	}
	return result, nil
}
