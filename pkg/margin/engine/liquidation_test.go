package engine

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperlicked/pkg/margin/account"
	"github.com/uhyunpark/hyperlicked/pkg/margin/fixedpoint"
)

func TestSettlePnlRealizesProfitAgainstLoss(t *testing.T) {
	g, maker, taker := testGroupWithPerp(1000)

	posA, err := maker.EnsurePerpPosition(solPerpIndex)
	if err != nil {
		t.Fatalf("ensure maker perp position: %v", err)
	}
	posA.QuotePositionNative = fixedpoint.FromInt64(500)

	posB, err := taker.EnsurePerpPosition(solPerpIndex)
	if err != nil {
		t.Fatalf("ensure taker perp position: %v", err)
	}
	posB.QuotePositionNative = fixedpoint.FromInt64(-500)

	result, err := g.SettlePnl(SettlePnlParams{
		AccountA:    maker.Owner,
		AccountB:    taker.Owner,
		Settler:     maker.Owner,
		MarketIndex: solPerpIndex,
		Now:         1000,
	})
	if err != nil {
		t.Fatalf("settle_pnl: %v", err)
	}
	if !result.Settlement.IsPositive() {
		t.Fatalf("expected a positive settlement amount, got %v", result.Settlement.Float64())
	}
	if posB.QuotePositionNative.LessThan(fixedpoint.FromInt64(-500)) {
		t.Fatalf("expected loss side's deficit to shrink, got %v", posB.QuotePositionNative.Float64())
	}
}

func TestPerpLiqBaseOrPositivePnlClosesUnderwaterShort(t *testing.T) {
	g, liqor, _ := testGroupWithPerp(1000)

	liqee := account.New(common.HexToAddress("0xLIQEEPERP"), common.HexToAddress("0xG"), 0, 4, 0, 2, 4)
	g.Accounts[liqee.Owner] = liqee
	pos, err := liqee.EnsurePerpPosition(solPerpIndex)
	if err != nil {
		t.Fatalf("ensure liqee perp position: %v", err)
	}
	pos.BasePositionLots = -100

	result, err := g.PerpLiqBaseOrPositivePnl(PerpLiqBaseOrPositivePnlParams{
		Liqor:           liqor.Owner,
		Liqee:           liqee.Owner,
		MarketIndex:     solPerpIndex,
		MaxBaseTransfer: 1000,
		Now:             1000,
	})
	if err != nil {
		t.Fatalf("perp_liq_base_or_positive_pnl: %v", err)
	}
	if result.BaseTransfer != 100 {
		t.Fatalf("expected the full 100-lot short to be taken over, got %d", result.BaseTransfer)
	}
	if pos.BasePositionLots != 0 {
		t.Fatalf("expected liqee's base position to close, got %d lots", pos.BasePositionLots)
	}
	if !pos.QuotePositionNative.IsNegative() {
		t.Fatalf("expected liqee to owe quote after the takeover, got %v", pos.QuotePositionNative.Float64())
	}
}

func TestPerpLiqNegativePnlOrBankruptcySpansLiqorAndInsurance(t *testing.T) {
	g, liqor, _ := testGroupWithPerp(1000)
	g.InsuranceVaultNative = fixedpoint.FromInt64(50)

	liqee := account.New(common.HexToAddress("0xLIQEENEG"), common.HexToAddress("0xG"), 0, 4, 0, 2, 4)
	g.Accounts[liqee.Owner] = liqee
	pos, err := liqee.EnsurePerpPosition(solPerpIndex)
	if err != nil {
		t.Fatalf("ensure liqee perp position: %v", err)
	}
	pos.QuotePositionNative = fixedpoint.FromInt64(-300)

	result, err := g.PerpLiqNegativePnlOrBankruptcy(PerpLiqNegativePnlParams{
		Liqor:       liqor.Owner,
		Liqee:       liqee.Owner,
		MarketIndex: solPerpIndex,
		MaxTransfer: fixedpoint.FromInt64(100),
		Now:         1000,
	})
	if err != nil {
		t.Fatalf("perp_liq_negative_pnl_or_bankruptcy: %v", err)
	}
	if result.LiqorTakeover.Float64() != 100 {
		t.Fatalf("expected liqor to cover its 100 max transfer, got %v", result.LiqorTakeover.Float64())
	}
	if result.InsuranceTransfer.Float64() != 50 {
		t.Fatalf("expected the insurance fund to cover the remaining 50, got %v", result.InsuranceTransfer.Float64())
	}
	if !result.SocializedLoss.IsPositive() {
		t.Fatalf("expected the settle bank's depositors to absorb what was left, got %v", result.SocializedLoss.Float64())
	}
	if g.InsuranceVaultNative.IsPositive() {
		t.Fatalf("expected the insurance fund to be drained, got %v", g.InsuranceVaultNative.Float64())
	}
}

func TestTokenLiqBankruptcySocializesUnbackedLiability(t *testing.T) {
	g, liqee := testGroup(1000)

	liqor := account.New(common.HexToAddress("0xLIQORBANKRUPT"), common.HexToAddress("0xG"), 0, 4, 0, 2, 4)
	g.Accounts[liqor.Owner] = liqor
	if _, err := g.TokenDeposit(TokenDepositParams{
		Owner: liqor.Owner, TokenIndex: usdcIndex, Amount: fixedpoint.FromInt64(10000), Now: 1000,
	}); err != nil {
		t.Fatalf("liqor usdc deposit: %v", err)
	}

	// force a usdc liability on the liqee with no offsetting asset left,
	// the way token_liq_with_token leaves a liqee once every asset has
	// been taken over and the liability still isn't fully covered.
	usdcPos, _, err := liqee.EnsureTokenPosition(usdcIndex)
	if err != nil {
		t.Fatalf("ensure liqee usdc position: %v", err)
	}
	newIndexed, _, err := g.Banks[usdcIndex].Withdraw(usdcPos.IndexedPosition, fixedpoint.FromInt64(500), true, fixedpoint.One(), 1000)
	if err != nil {
		t.Fatalf("force borrow: %v", err)
	}
	usdcPos.IndexedPosition = newIndexed

	result, err := g.TokenLiqBankruptcy(TokenLiqBankruptcyParams{
		Liqor:           liqor.Owner,
		Liqee:           liqee.Owner,
		LiabTokenIndex:  usdcIndex,
		MaxLiabTransfer: fixedpoint.FromInt64(500),
		Now:             1000,
	})
	if err != nil {
		t.Fatalf("token_liq_bankruptcy: %v", err)
	}
	if !result.SocializedLoss.IsPositive() {
		t.Fatalf("expected the liability to be socialized across usdc depositors, got %v", result.SocializedLoss.Float64())
	}
	if !liqee.IsBankrupt() {
		t.Fatalf("expected the liqee to be marked bankrupt")
	}
}
