package health

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperlicked/pkg/margin/account"
	"github.com/uhyunpark/hyperlicked/pkg/margin/fixedpoint"
)

func usdcInfo(native float64) TokenInfo {
	return TokenInfo{
		TokenIndex:       0,
		NativeBalance:    fixedpoint.FromFloat64(native),
		OraclePrice:      fixedpoint.FromInt64(1),
		StablePrice:      fixedpoint.FromInt64(1),
		MaintAssetWeight: fixedpoint.FromFloat64(1.0),
		InitAssetWeight:  fixedpoint.FromFloat64(1.0),
		MaintLiabWeight:  fixedpoint.FromFloat64(1.0),
		InitLiabWeight:   fixedpoint.FromFloat64(1.0),
	}
}

func solInfo(native, oracle float64, maintAsset, initAsset, maintLiab, initLiab float64) TokenInfo {
	return TokenInfo{
		TokenIndex:       1,
		NativeBalance:    fixedpoint.FromFloat64(native),
		OraclePrice:      fixedpoint.FromFloat64(oracle),
		StablePrice:      fixedpoint.FromFloat64(oracle),
		MaintAssetWeight: fixedpoint.FromFloat64(maintAsset),
		InitAssetWeight:  fixedpoint.FromFloat64(initAsset),
		MaintLiabWeight:  fixedpoint.FromFloat64(maintLiab),
		InitLiabWeight:   fixedpoint.FromFloat64(initLiab),
	}
}

func TestComputeSumsPositiveTokenAssets(t *testing.T) {
	acc := account.New(common.HexToAddress("0xA"), common.HexToAddress("0xG"), 0, 2, 0, 0, 0)
	cache := Cache{Tokens: []TokenInfo{usdcInfo(100), solInfo(10, 20, 0.9, 0.8, 1.1, 1.2)}}

	got := Compute(acc, cache, Maint)
	want := 100.0 + 10*20*0.9
	if got.Float64() != want {
		t.Fatalf("got %f want %f", got.Float64(), want)
	}
}

func TestComputeChargesLiabilitiesMoreUnderInit(t *testing.T) {
	acc := account.New(common.HexToAddress("0xA"), common.HexToAddress("0xG"), 0, 2, 0, 0, 0)
	cache := Cache{Tokens: []TokenInfo{usdcInfo(0), solInfo(-10, 20, 0.9, 0.8, 1.1, 1.2)}}

	maint := Compute(acc, cache, Maint)
	init := Compute(acc, cache, Init)

	if !init.LessThan(maint) {
		t.Fatalf("init health (%f) should be lower (more negative) than maint health (%f) for a liability", init.Float64(), maint.Float64())
	}
}

func TestPerpContributionAppliesOverallPnlWeightWhenProfitable(t *testing.T) {
	acc := account.New(common.HexToAddress("0xA"), common.HexToAddress("0xG"), 0, 0, 0, 2, 0)
	pos, _ := acc.EnsurePerpPosition(0)
	pos.BasePositionLots = 10
	pos.QuotePositionNative = fixedpoint.FromInt64(-900)

	cache := Cache{Perps: []PerpMarketInfo{{
		MarketIndex:           0,
		OraclePrice:           fixedpoint.FromInt64(100),
		BaseLotSize:           1,
		InitBaseAssetWeight:   fixedpoint.FromFloat64(0.9),
		InitBaseLiabWeight:    fixedpoint.FromFloat64(1.1),
		OverallPnlAssetWeight: fixedpoint.FromFloat64(0.5),
	}}}

	got := Compute(acc, cache, Init)
	unweighted := 10.0*1*100*0.9 - 900
	want := unweighted * 0.5
	if got.Float64() != want {
		t.Fatalf("got %f want %f", got.Float64(), want)
	}
}

func TestPerpContributionChargesNegativeUnweightedInFull(t *testing.T) {
	acc := account.New(common.HexToAddress("0xA"), common.HexToAddress("0xG"), 0, 0, 0, 2, 0)
	pos, _ := acc.EnsurePerpPosition(0)
	pos.BasePositionLots = 10
	pos.QuotePositionNative = fixedpoint.FromInt64(-2000)

	cache := Cache{Perps: []PerpMarketInfo{{
		MarketIndex:           0,
		OraclePrice:           fixedpoint.FromInt64(100),
		BaseLotSize:           1,
		InitBaseAssetWeight:   fixedpoint.FromFloat64(0.9),
		InitBaseLiabWeight:    fixedpoint.FromFloat64(1.1),
		OverallPnlAssetWeight: fixedpoint.FromFloat64(0.5),
	}}}

	got := Compute(acc, cache, Init)
	want := 10.0*1*100*0.9 - 2000
	if got.Float64() != want {
		t.Fatalf("got %f want %f (unweighted, not scaled by overall_pnl_asset_weight)", got.Float64(), want)
	}
}

func TestCheckLiquidatableFlagsNegativeMaintHealth(t *testing.T) {
	acc := account.New(common.HexToAddress("0xA"), common.HexToAddress("0xG"), 0, 1, 0, 0, 0)
	cache := Cache{Tokens: []TokenInfo{solInfo(-100, 20, 0.9, 0.8, 1.1, 1.2)}}

	if CheckLiquidatable(acc, cache) != IsLiquidatable {
		t.Fatalf("expected liquidatable for deeply negative health")
	}
}

func TestCheckLiquidatableReleasesOnRecovery(t *testing.T) {
	acc := account.New(common.HexToAddress("0xA"), common.HexToAddress("0xG"), 0, 1, 0, 0, 0)
	acc.EnterLiquidation(fixedpoint.FromInt64(-50))

	cache := Cache{Tokens: []TokenInfo{usdcInfo(100)}}
	if CheckLiquidatable(acc, cache) != BecameNotLiquidatable {
		t.Fatalf("expected release once LiquidationEnd health is non-negative")
	}
}

func TestPerpContributionUsesMaintWeightsUnderMaintKind(t *testing.T) {
	acc := account.New(common.HexToAddress("0xA"), common.HexToAddress("0xG"), 0, 0, 0, 2, 0)
	pos, _ := acc.EnsurePerpPosition(0)
	pos.BasePositionLots = 10
	pos.QuotePositionNative = fixedpoint.FromInt64(-900)

	cache := Cache{Perps: []PerpMarketInfo{{
		MarketIndex:           0,
		OraclePrice:           fixedpoint.FromInt64(100),
		BaseLotSize:           1,
		MaintBaseAssetWeight:  fixedpoint.FromFloat64(0.95),
		InitBaseAssetWeight:   fixedpoint.FromFloat64(0.9),
		MaintBaseLiabWeight:   fixedpoint.FromFloat64(1.05),
		InitBaseLiabWeight:    fixedpoint.FromFloat64(1.1),
		OverallPnlAssetWeight: fixedpoint.FromFloat64(0.5),
	}}}

	maint := Compute(acc, cache, Maint)
	init := Compute(acc, cache, Init)

	wantMaint := (10.0*1*100*0.95 - 900) * 0.5
	wantInit := (10.0*1*100*0.9 - 900) * 0.5
	if maint.Float64() != wantMaint {
		t.Fatalf("maint: got %f want %f", maint.Float64(), wantMaint)
	}
	if init.Float64() != wantInit {
		t.Fatalf("init: got %f want %f", init.Float64(), wantInit)
	}
	if !init.LessThan(maint) {
		t.Fatalf("expected init health (%f) below maint health (%f): init must use the stricter weight", init.Float64(), maint.Float64())
	}
}

func TestPerpMaxSettleIsZeroWhenHealthNonPositive(t *testing.T) {
	acc := account.New(common.HexToAddress("0xA"), common.HexToAddress("0xG"), 0, 1, 0, 0, 0)
	cache := Cache{Tokens: []TokenInfo{solInfo(-10, 20, 0.9, 0.8, 1.1, 1.2)}}

	got := PerpMaxSettle(acc, cache, 1)
	if !got.IsZero() {
		t.Fatalf("expected zero max settle for non-positive health, got %s", got)
	}
}
