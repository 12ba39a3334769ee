package liquidation

import (
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperlicked/pkg/margin/account"
	"github.com/uhyunpark/hyperlicked/pkg/margin/bank"
	"github.com/uhyunpark/hyperlicked/pkg/margin/fixedpoint"
	"github.com/uhyunpark/hyperlicked/pkg/margin/health"
	"github.com/uhyunpark/hyperlicked/pkg/margin/perp/market"
	"github.com/uhyunpark/hyperlicked/pkg/margin/perp/orderbook"
)

func approxEqual(t *testing.T, got, want float64, tolerance float64) {
	t.Helper()
	if math.Abs(got-want) > tolerance {
		t.Fatalf("got %f, want ~%f", got, want)
	}
}

func tokenCache(acc *account.Account, banks map[int64]*bank.Bank) health.Cache {
	c := health.Cache{}
	for _, tp := range acc.ActiveTokenPositions() {
		b := banks[tp.TokenIndex]
		c.Tokens = append(c.Tokens, health.TokenInfo{
			TokenIndex:       tp.TokenIndex,
			NativeBalance:    health.NativeOf(*tp, b),
			OraclePrice:      fixedpoint.One(),
			StablePrice:      fixedpoint.One(),
			MaintAssetWeight: b.MaintAssetWeight,
			InitAssetWeight:  b.InitAssetWeight,
			MaintLiabWeight:  b.MaintLiabWeight,
			InitLiabWeight:   b.InitLiabWeight,
		})
	}
	return c
}

func TestTokenLiqWithTokenTransfersLiabForAsset(t *testing.T) {
	assetBank := bank.NewDefault(0, common.HexToAddress("0x1"), common.HexToAddress("0x2"), common.Address{}, 0)
	liabBank := bank.NewDefault(1, common.HexToAddress("0x3"), common.HexToAddress("0x4"), common.Address{}, 0)

	liqee := account.New(common.HexToAddress("0xa"), common.Address{}, 0, 4, 0, 0, 0)
	liqor := account.New(common.HexToAddress("0xb"), common.Address{}, 0, 4, 0, 0, 0)

	liqeeAsset, _, err := liqee.EnsureTokenPosition(0)
	if err != nil {
		t.Fatalf("ensure asset position: %v", err)
	}
	liqeeAsset.IndexedPosition = fixedpoint.FromInt64(100)

	liqeeLiab, _, err := liqee.EnsureTokenPosition(1)
	if err != nil {
		t.Fatalf("ensure liab position: %v", err)
	}
	liqeeLiab.IndexedPosition = fixedpoint.FromInt64(-500)

	banks := map[int64]*bank.Bank{0: assetBank, 1: liabBank}
	cache := tokenCache(liqee, banks)

	res, err := TokenLiqWithToken(TokenLiqWithTokenParams{
		Liqor: liqor, Liqee: liqee,
		AssetBank: assetBank, LiabBank: liabBank,
		AssetPrice: fixedpoint.One(), LiabPrice: fixedpoint.One(),
		LiqeeCache:      cache,
		AssetTokenIndex: 0, LiabTokenIndex: 1,
		MaxLiabTransfer: fixedpoint.FromInt64(1_000_000),
	})
	if err != nil {
		t.Fatalf("token liq with token: %v", err)
	}

	approxEqual(t, res.AssetTransfer.Float64(), 100, 0.01)
	approxEqual(t, res.LiabTransfer.Float64(), 96.15, 0.05)

	if !liqee.IsBeingLiquidated() {
		t.Fatalf("expected liqee to be flagged as being liquidated")
	}

	liqeeAssetAfter := liqee.TokenPositionByIndex(0)
	if liqeeAssetAfter != nil && liqeeAssetAfter.Native(assetBank).IsPositive() {
		approxEqual(t, liqeeAssetAfter.Native(assetBank).Float64(), 0, 0.5)
	}

	liqorAsset := liqor.TokenPositionByIndex(0)
	if liqorAsset == nil {
		t.Fatalf("expected liqor to hold the asset it received")
	}
	approxEqual(t, liqorAsset.Native(assetBank).Float64(), 100, 0.5)
}

func TestTokenLiqWithTokenRejectsHealthyLiqee(t *testing.T) {
	assetBank := bank.NewDefault(0, common.HexToAddress("0x1"), common.HexToAddress("0x2"), common.Address{}, 0)
	liabBank := bank.NewDefault(1, common.HexToAddress("0x3"), common.HexToAddress("0x4"), common.Address{}, 0)

	liqee := account.New(common.HexToAddress("0xa"), common.Address{}, 0, 4, 0, 0, 0)
	liqor := account.New(common.HexToAddress("0xb"), common.Address{}, 0, 4, 0, 0, 0)

	liqeeAsset, _, _ := liqee.EnsureTokenPosition(0)
	liqeeAsset.IndexedPosition = fixedpoint.FromInt64(10000)
	liqeeLiab, _, _ := liqee.EnsureTokenPosition(1)
	liqeeLiab.IndexedPosition = fixedpoint.FromInt64(-10)

	banks := map[int64]*bank.Bank{0: assetBank, 1: liabBank}
	cache := tokenCache(liqee, banks)

	_, err := TokenLiqWithToken(TokenLiqWithTokenParams{
		Liqor: liqor, Liqee: liqee,
		AssetBank: assetBank, LiabBank: liabBank,
		AssetPrice: fixedpoint.One(), LiabPrice: fixedpoint.One(),
		LiqeeCache:      cache,
		AssetTokenIndex: 0, LiabTokenIndex: 1,
		MaxLiabTransfer: fixedpoint.FromInt64(1_000_000),
	})
	if err == nil {
		t.Fatalf("expected a healthy liqee to be rejected")
	}
}

func TestPerpLiqBasePositionClosesOutAPositiveBasePosition(t *testing.T) {
	m := &market.PerpMarket{
		MarketIndex:           0,
		BaseLotSize:           1,
		InitBaseAssetWeight:   fixedpoint.FromFloat64(0.9),
		InitBaseLiabWeight:    fixedpoint.FromFloat64(1.1),
		OverallPnlAssetWeight: fixedpoint.One(),
		LiquidationFee:        fixedpoint.FromFloat64(0.01),
		Book:                  orderbook.NewBook(0, 8),
	}

	liqee := account.New(common.HexToAddress("0xa"), common.Address{}, 0, 0, 0, 2, 2)
	liqor := account.New(common.HexToAddress("0xb"), common.Address{}, 0, 0, 0, 2, 2)

	liqeePos, _ := liqee.EnsurePerpPosition(0)
	liqeePos.BasePositionLots = 10
	liqeePos.QuotePositionNative = fixedpoint.FromInt64(-1200)

	cache := health.Cache{Perps: []health.PerpMarketInfo{{
		MarketIndex:           0,
		OraclePrice:           fixedpoint.FromInt64(100),
		BaseLotSize:           1,
		InitBaseAssetWeight:   m.InitBaseAssetWeight,
		InitBaseLiabWeight:    m.InitBaseLiabWeight,
		OverallPnlAssetWeight: m.OverallPnlAssetWeight,
	}}}

	if _, err := EnterOrRelease(liqee, cache); err != nil {
		t.Fatalf("enter liquidation: %v", err)
	}
	if !liqee.IsBeingLiquidated() {
		t.Fatalf("expected the liqee to be flagged liquidatable")
	}

	res, err := PerpLiqBasePosition(PerpLiqBasePositionParams{
		Liqor: liqor, Liqee: liqee,
		Market:          m,
		OraclePrice:     fixedpoint.FromInt64(100),
		LiqeeCache:      cache,
		MaxBaseTransfer: 10,
	})
	if err != nil {
		t.Fatalf("perp liq base position: %v", err)
	}

	if res.BaseTransfer != -10 {
		t.Fatalf("expected the full 10-lot long position to be taken over, got base transfer %d", res.BaseTransfer)
	}
	if liqeePos.BasePositionLots != 0 {
		t.Fatalf("expected liqee's base position fully closed, got %d", liqeePos.BasePositionLots)
	}
	liqorPos := liqor.PerpPositionByMarket(0)
	if liqorPos.BasePositionLots != 10 {
		t.Fatalf("expected liqor to take on the 10-lot long, got %d", liqorPos.BasePositionLots)
	}
}

func TestTokenLiqBankruptcySocializesWhenInsuranceIsEmpty(t *testing.T) {
	liabBank := bank.NewDefault(1, common.HexToAddress("0x3"), common.HexToAddress("0x4"), common.Address{}, 0)
	liabBank.IndexedTotalDeposits = fixedpoint.FromInt64(1000)

	liqee := account.New(common.HexToAddress("0xa"), common.Address{}, 0, 4, 0, 0, 0)
	liqor := account.New(common.HexToAddress("0xb"), common.Address{}, 0, 4, 0, 0, 0)

	liqeeLiab, _, err := liqee.EnsureTokenPosition(1)
	if err != nil {
		t.Fatalf("ensure liab position: %v", err)
	}
	liqeeLiab.IndexedPosition = fixedpoint.FromInt64(-200)

	res, err := TokenLiqBankruptcy(TokenLiqBankruptcyParams{
		Liqor: liqor, Liqee: liqee,
		LiabBank:             liabBank,
		QuoteBank:            nil,
		LiabPrice:            fixedpoint.One(),
		InsuranceVaultNative: fixedpoint.Zero,
		MaxLiabTransfer:      fixedpoint.FromInt64(1_000_000),
	})
	if err != nil {
		t.Fatalf("token liq bankruptcy: %v", err)
	}

	approxEqual(t, res.SocializedLoss.Float64(), 200, 0.01)
	approxEqual(t, liabBank.DepositIndex.Float64(), 0.8, 0.01)
	if !liqeeLiab.IndexedPosition.IsZero() {
		t.Fatalf("expected liqee's liability fully zeroed by socialization, got %s", liqeeLiab.IndexedPosition)
	}
}
