// Package health implements the weighted solvency computation that
// gates every account-mutating instruction: deposit/withdraw, order
// placement, settlement, and liquidation all consult one of its three
// variants before and after acting.
package health

import (
	"github.com/uhyunpark/hyperlicked/pkg/margin/account"
	"github.com/uhyunpark/hyperlicked/pkg/margin/bank"
	"github.com/uhyunpark/hyperlicked/pkg/margin/fixedpoint"
)

// Kind selects which weight set and purpose a health computation serves.
type Kind uint8

const (
	// Maint uses maintenance weights; crossing below zero makes an
	// account liquidatable.
	Maint Kind = iota
	// Init uses stricter initial weights and gates every action that
	// could reduce health.
	Init
	// LiquidationEnd is numerically identical to Init but is recomputed
	// mid-liquidation to decide when being_liquidated can be released.
	LiquidationEnd
)

// TokenInfo is the per-token data a health computation needs: static
// weights and oracle/stable prices, plus the account's already-resolved
// native balance for that token (computed by the engine from the
// position's indexed value and the bank's current deposit/borrow index,
// via NativeOf, before the Cache is built).
type TokenInfo struct {
	TokenIndex int64

	NativeBalance fixedpoint.I80F48

	OraclePrice fixedpoint.I80F48
	StablePrice fixedpoint.I80F48

	MaintAssetWeight fixedpoint.I80F48
	InitAssetWeight  fixedpoint.I80F48
	MaintLiabWeight  fixedpoint.I80F48
	InitLiabWeight   fixedpoint.I80F48
}

// assetWeight/liabWeight pick the weight set for the requested Kind.
func (t TokenInfo) assetWeight(k Kind) fixedpoint.I80F48 {
	if k == Maint {
		return t.MaintAssetWeight
	}
	return t.InitAssetWeight
}

func (t TokenInfo) liabWeight(k Kind) fixedpoint.I80F48 {
	if k == Maint {
		return t.MaintLiabWeight
	}
	return t.InitLiabWeight
}

// assetPrice returns the pessimistic-for-the-protocol price used when
// valuing a positive (asset) balance: the lower of oracle and stable.
func (t TokenInfo) assetPrice() fixedpoint.I80F48 {
	return fixedpoint.Min(t.OraclePrice, t.StablePrice)
}

// liabPrice returns the pessimistic price used when valuing a negative
// (liability) balance: the higher of oracle and stable.
func (t TokenInfo) liabPrice() fixedpoint.I80F48 {
	return fixedpoint.Max(t.OraclePrice, t.StablePrice)
}

// PerpMarketInfo is the per-market static data a health computation
// needs for one account's perp position.
type PerpMarketInfo struct {
	MarketIndex int64

	OraclePrice  fixedpoint.I80F48
	BaseLotSize  int64

	MaintBaseAssetWeight fixedpoint.I80F48
	InitBaseAssetWeight  fixedpoint.I80F48
	MaintBaseLiabWeight  fixedpoint.I80F48
	InitBaseLiabWeight   fixedpoint.I80F48

	// OverallPnlAssetWeight scales a profitable position's contribution;
	// zero disables positive-PnL contribution to health entirely.
	OverallPnlAssetWeight fixedpoint.I80F48
}

// baseAssetWeight/baseLiabWeight pick the weight set for the requested
// Kind, mirroring TokenInfo.assetWeight/liabWeight.
func (info PerpMarketInfo) baseAssetWeight(k Kind) fixedpoint.I80F48 {
	if k == Maint {
		return info.MaintBaseAssetWeight
	}
	return info.InitBaseAssetWeight
}

func (info PerpMarketInfo) baseLiabWeight(k Kind) fixedpoint.I80F48 {
	if k == Maint {
		return info.MaintBaseLiabWeight
	}
	return info.InitBaseLiabWeight
}

// Cache bundles everything compute needs for a single account: the
// per-token infos (indexed by their position in account.Tokens) and
// per-market infos (indexed by their position in account.PerpPositions).
// Both per-ix checks and the health-region terminal check build and
// consume the same Cache through the same Compute call, so the two code
// paths never diverge in arithmetic.
type Cache struct {
	Tokens []TokenInfo
	Perps  []PerpMarketInfo
}

func (c Cache) tokenInfo(tokenIndex int64) (TokenInfo, bool) {
	for _, ti := range c.Tokens {
		if ti.TokenIndex == tokenIndex {
			return ti, true
		}
	}
	return TokenInfo{}, false
}

func (c Cache) perpInfo(marketIndex int64) (PerpMarketInfo, bool) {
	for _, pi := range c.Perps {
		if pi.MarketIndex == marketIndex {
			return pi, true
		}
	}
	return PerpMarketInfo{}, false
}

// Compute returns the account's health for the given Kind, summing every
// active token and perp contribution. It is the single implementation
// both per-instruction checks and a health-region terminal check call;
// neither path may reimplement this arithmetic. cache.Tokens must carry
// an entry for every active token position (missing entries contribute
// zero, which would silently understate risk, so callers build the
// cache from the same set of active positions they pass here).
func Compute(acc *account.Account, cache Cache, kind Kind) fixedpoint.I80F48 {
	total := fixedpoint.Zero

	for _, info := range cache.Tokens {
		total = total.Add(tokenContribution(info, kind))
	}

	for _, pos := range acc.ActivePerpPositions() {
		total = total.Add(perpContribution(*pos, cache, kind))
	}

	return total
}

func tokenContribution(info TokenInfo, kind Kind) fixedpoint.I80F48 {
	if info.NativeBalance.IsZero() {
		return fixedpoint.Zero
	}
	if info.NativeBalance.IsPositive() {
		return info.NativeBalance.Mul(info.assetPrice()).Mul(info.assetWeight(kind))
	}
	return info.NativeBalance.Mul(info.liabPrice()).Mul(info.liabWeight(kind))
}

// NativeOf is the bank-aware conversion engine callers use to populate
// TokenInfo.NativeBalance before building a Cache.
func NativeOf(pos account.TokenPosition, b *bank.Bank) fixedpoint.I80F48 {
	return pos.Native(b)
}

// perpContribution computes the unweighted health of one market per
// account and applies overall_pnl_asset_weight only when it's positive
// (profitable); a negative unweighted health is charged in full.
func perpContribution(pos account.PerpPosition, cache Cache, kind Kind) fixedpoint.I80F48 {
	info, ok := cache.perpInfo(pos.MarketIndex)
	if !ok {
		return fixedpoint.Zero
	}

	baseLots := pos.BasePositionLots + pos.TakerBaseLots
	notional := fixedpoint.FromInt64(baseLots).Mul(fixedpoint.FromInt64(info.BaseLotSize)).Mul(info.OraclePrice)

	var directionWeight fixedpoint.I80F48
	if baseLots >= 0 {
		directionWeight = info.baseAssetWeight(kind)
	} else {
		directionWeight = info.baseLiabWeight(kind)
	}

	quote := pos.QuotePositionNative.Add(fixedpoint.FromInt64(pos.TakerQuoteLots))
	unweighted := notional.Mul(directionWeight).Add(quote)

	if unweighted.GreaterThanOrEqual(fixedpoint.Zero) {
		return unweighted.Mul(info.OverallPnlAssetWeight)
	}
	return unweighted
}

// Liquidatable is the outcome of CheckLiquidatable.
type Liquidatable uint8

const (
	NotLiquidatable Liquidatable = iota
	IsLiquidatable
	BecameNotLiquidatable
)

// CheckLiquidatable classifies an account's current maint health against
// its prior being_liquidated flag: an already-flagged account that has
// recovered non-negative LiquidationEnd health reports
// BecameNotLiquidatable so the caller can clear the flag.
func CheckLiquidatable(acc *account.Account, cache Cache) Liquidatable {
	if acc.IsBeingLiquidated() {
		liqEnd := Compute(acc, cache, LiquidationEnd)
		if liqEnd.GreaterThanOrEqual(fixedpoint.Zero) {
			return BecameNotLiquidatable
		}
		return IsLiquidatable
	}
	maint := Compute(acc, cache, Maint)
	if maint.IsNegative() {
		return IsLiquidatable
	}
	return NotLiquidatable
}

// PerpMaxSettle returns the quote amount that can still be settled out
// of a profitable position in settleTokenIndex without driving the
// account's health below zero on the spot leg: health / settle token's
// asset weight at its asset price, floored at zero.
func PerpMaxSettle(acc *account.Account, cache Cache, settleTokenIndex int64) fixedpoint.I80F48 {
	h := Compute(acc, cache, Maint)
	if h.LessThanOrEqual(fixedpoint.Zero) {
		return fixedpoint.Zero
	}
	info, ok := cache.tokenInfo(settleTokenIndex)
	if !ok || info.assetPrice().IsZero() || info.MaintAssetWeight.IsZero() {
		return fixedpoint.Zero
	}
	denom := info.assetPrice().Mul(info.MaintAssetWeight)
	max, err := h.Div(denom)
	if err != nil {
		return fixedpoint.Zero
	}
	return max
}
