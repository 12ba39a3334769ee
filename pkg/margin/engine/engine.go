// Package engine wires bank, account, health, perp market/orderbook,
// settlement, and liquidation into the instruction handlers described in
// spec.md §4.7/§4.8/§4.9: each handler mutates state through the
// underlying packages, then runs a post-condition health check built
// from the same health.Cache construction every other handler uses, so
// no two code paths ever value a position differently.
package engine

import (
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperlicked/pkg/margin/account"
	"github.com/uhyunpark/hyperlicked/pkg/margin/bank"
	"github.com/uhyunpark/hyperlicked/pkg/margin/fixedpoint"
	"github.com/uhyunpark/hyperlicked/pkg/margin/health"
	"github.com/uhyunpark/hyperlicked/pkg/margin/liquidation"
	"github.com/uhyunpark/hyperlicked/pkg/margin/marginerr"
	"github.com/uhyunpark/hyperlicked/pkg/margin/oracle"
	"github.com/uhyunpark/hyperlicked/pkg/margin/perp/market"
	"github.com/uhyunpark/hyperlicked/pkg/margin/stableprice"
)

// SpotAdapter is the boundary to an external spot-market program (spec.md
// §6: "opaque from the core's perspective"). The engine never decodes a
// third-party open-orders account; it only calls through here with the OO
// account key already resolved by the caller.
type SpotAdapter interface {
	CancelAllOrders(ooOwner common.Address, marketIndex int64) error
}

// Group is one cross-margined group's live state: every bank and perp
// market an account can reference, the accounts themselves, and the
// oracle readers/stable-price models the health cache is built from.
type Group struct {
	Banks    map[int64]*bank.Bank
	Markets  map[int64]*market.PerpMarket
	Accounts map[common.Address]*account.Account

	TokenOracles  map[int64]oracle.Reader
	MarketOracles map[int64]oracle.Reader
	StablePrices  map[int64]*stableprice.Model
	OracleParams  oracle.Params
	CurrentSlot   uint64

	// InsuranceTokenIndex/InsuranceVaultNative back every bankruptcy
	// handler's insurance-fund leg (spec.md §4.9 item 4b/6).
	InsuranceTokenIndex  int64
	InsuranceVaultNative fixedpoint.I80F48

	SettleFeeFlat              fixedpoint.I80F48
	SettleFeeFractionLowHealth fixedpoint.I80F48
	SettleFeeAmountThreshold   fixedpoint.I80F48

	Spot SpotAdapter

	Logger *zap.SugaredLogger
}

// NewGroup builds an empty group with sane settle-fee defaults; callers
// populate Banks/Markets/Accounts/oracles as they're created.
func NewGroup(insuranceTokenIndex int64, logger *zap.SugaredLogger) *Group {
	return &Group{
		Banks:         make(map[int64]*bank.Bank),
		Markets:       make(map[int64]*market.PerpMarket),
		Accounts:      make(map[common.Address]*account.Account),
		TokenOracles:  make(map[int64]oracle.Reader),
		MarketOracles: make(map[int64]oracle.Reader),
		StablePrices:  make(map[int64]*stableprice.Model),
		OracleParams:  oracle.DefaultParams(),

		InsuranceTokenIndex: insuranceTokenIndex,

		SettleFeeFlat:              fixedpoint.FromFloat64(0.02),
		SettleFeeFractionLowHealth: fixedpoint.FromFloat64(0.05),
		SettleFeeAmountThreshold:   fixedpoint.FromFloat64(1),

		Logger: logger,
	}
}

func (g *Group) lookupAccount(owner [20]byte) (*account.Account, bool) {
	acc, ok := g.Accounts[common.Address(owner)]
	return acc, ok
}

// tokenOraclePrice reads and gates a token's oracle price. A token with no
// registered reader (the group's own settle/insurance token, pegged to
// itself) defaults to 1.0 rather than erroring.
func (g *Group) tokenOraclePrice(tokenIndex int64, _ int64) (fixedpoint.I80F48, error) {
	r, ok := g.TokenOracles[tokenIndex]
	if !ok {
		return fixedpoint.One(), nil
	}
	reading, err := r.Read()
	if err != nil {
		return fixedpoint.Zero, err
	}
	if err := oracle.Gate(reading, g.CurrentSlot, g.OracleParams); err != nil {
		return fixedpoint.Zero, err
	}
	return reading.Price, nil
}

// tokenOraclePriceBypassGate is used only by the force-withdraw path,
// which spec.md describes as exempt from the staleness/confidence gate.
func (g *Group) tokenOraclePriceBypassGate(tokenIndex int64) (fixedpoint.I80F48, error) {
	r, ok := g.TokenOracles[tokenIndex]
	if !ok {
		return fixedpoint.One(), nil
	}
	reading, err := r.Read()
	if err != nil {
		return fixedpoint.Zero, err
	}
	return reading.Price, nil
}

func (g *Group) marketOraclePrice(marketIndex, _ int64) (fixedpoint.I80F48, error) {
	r, ok := g.MarketOracles[marketIndex]
	if !ok {
		return fixedpoint.Zero, marginerr.ErrUnknownMarket
	}
	reading, err := r.Read()
	if err != nil {
		return fixedpoint.Zero, err
	}
	if err := oracle.Gate(reading, g.CurrentSlot, g.OracleParams); err != nil {
		return fixedpoint.Zero, err
	}
	return reading.Price, nil
}

// BuildCache is the single place that turns an account's live positions
// into a health.Cache: every handler and the liquidation terminal check
// call this, so a Maint vs Init weight bug (like the one fixed in
// pkg/margin/health) is visible the instant the cache is built, not just
// at Compute time.
func (g *Group) BuildCache(acc *account.Account, now int64) (health.Cache, error) {
	cache := health.Cache{}

	for _, tp := range acc.ActiveTokenPositions() {
		b, ok := g.Banks[tp.TokenIndex]
		if !ok {
			continue
		}
		price, err := g.tokenOraclePrice(tp.TokenIndex, now)
		if err != nil {
			return health.Cache{}, err
		}
		stable := price
		if m, ok := g.StablePrices[tp.TokenIndex]; ok {
			stable = m.StablePrice
		}
		cache.Tokens = append(cache.Tokens, health.TokenInfo{
			TokenIndex:       tp.TokenIndex,
			NativeBalance:    health.NativeOf(*tp, b),
			OraclePrice:      price,
			StablePrice:      stable,
			MaintAssetWeight: b.MaintAssetWeight,
			InitAssetWeight:  b.InitAssetWeight,
			MaintLiabWeight:  b.MaintLiabWeight,
			InitLiabWeight:   b.InitLiabWeight,
		})
	}

	for _, pp := range acc.ActivePerpPositions() {
		m, ok := g.Markets[pp.MarketIndex]
		if !ok {
			continue
		}
		price, err := g.marketOraclePrice(pp.MarketIndex, now)
		if err != nil {
			return health.Cache{}, err
		}
		cache.Perps = append(cache.Perps, health.PerpMarketInfo{
			MarketIndex:           pp.MarketIndex,
			OraclePrice:           price,
			BaseLotSize:           m.BaseLotSize,
			MaintBaseAssetWeight:  m.MaintBaseAssetWeight,
			InitBaseAssetWeight:   m.InitBaseAssetWeight,
			MaintBaseLiabWeight:   m.MaintBaseLiabWeight,
			InitBaseLiabWeight:    m.InitBaseLiabWeight,
			OverallPnlAssetWeight: m.OverallPnlAssetWeight,
		})
	}

	return cache, nil
}

// checkPostHealth is the one post-condition check every mutating handler
// calls: it flags/releases being_liquidated from the freshly-built cache
// (spec.md §4.9 "any instruction that observes maint_health < 0 sets
// being_liquidated"), then — unless the caller is bracketed inside a
// HealthRegionBegin/End region, in which case only the region's terminal
// call checks — requires Init health to be non-negative.
func (g *Group) checkPostHealth(acc *account.Account, now int64, inHealthRegion bool) error {
	cache, err := g.BuildCache(acc, now)
	if err != nil {
		return err
	}
	if _, err := liquidation.EnterOrRelease(acc, cache); err != nil {
		return err
	}
	if acc.IsBeingLiquidated() {
		return marginerr.ErrBeingLiquidated
	}
	if inHealthRegion {
		return nil
	}
	if health.Compute(acc, cache, health.Init).IsNegative() {
		return marginerr.ErrHealthMustBePositive
	}
	return nil
}

// HealthRegionEnd is the terminal check a HealthRegionBegin/End bracket
// runs once, after every bracketed instruction has already skipped its
// own per-ix gate via inHealthRegion=true.
func (g *Group) HealthRegionEnd(acc *account.Account, now int64) error {
	cache, err := g.BuildCache(acc, now)
	if err != nil {
		return err
	}
	if _, err := liquidation.EnterOrRelease(acc, cache); err != nil {
		return err
	}
	if health.Compute(acc, cache, health.Init).IsNegative() {
		return marginerr.ErrHealthMustBePositive
	}
	return nil
}

// liquidationTerminalCheck recomputes LiquidationEnd health after a
// liquidation-sequencer call and clears being_liquidated once it is
// non-negative (spec.md §4.9's termination condition).
func (g *Group) liquidationTerminalCheck(acc *account.Account, now int64) (health.Liquidatable, error) {
	cache, err := g.BuildCache(acc, now)
	if err != nil {
		return health.NotLiquidatable, err
	}
	return liquidation.EnterOrRelease(acc, cache)
}
