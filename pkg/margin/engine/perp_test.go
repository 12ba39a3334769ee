package engine

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperlicked/pkg/margin/account"
	"github.com/uhyunpark/hyperlicked/pkg/margin/fixedpoint"
	"github.com/uhyunpark/hyperlicked/pkg/margin/oracle"
	"github.com/uhyunpark/hyperlicked/pkg/margin/perp/market"
	"github.com/uhyunpark/hyperlicked/pkg/margin/perp/orderbook"
)

const solPerpIndex = 0

func testGroupWithPerp(now int64) (*Group, *account.Account, *account.Account) {
	g, maker := testGroup(now)

	m := &market.PerpMarket{
		MarketIndex:           solPerpIndex,
		BaseLotSize:           1,
		QuoteLotSize:          1,
		MaintBaseAssetWeight:  fixedpoint.FromFloat64(0.9),
		InitBaseAssetWeight:   fixedpoint.FromFloat64(0.8),
		MaintBaseLiabWeight:   fixedpoint.FromFloat64(1.1),
		InitBaseLiabWeight:    fixedpoint.FromFloat64(1.2),
		OverallPnlAssetWeight: fixedpoint.FromFloat64(1.0),
		SettleTokenIndex:      usdcIndex,
		Book:                  orderbook.NewBook(0, 32),
	}
	g.Markets[solPerpIndex] = m
	g.MarketOracles[solPerpIndex] = oracle.NewStub(20, 1000)

	if _, err := g.TokenDeposit(TokenDepositParams{Owner: maker.Owner, TokenIndex: usdcIndex, Amount: fixedpoint.FromInt64(10000), Now: now}); err != nil {
		panic(err)
	}

	taker := account.New(common.HexToAddress("0xTAKER"), common.HexToAddress("0xG"), 0, 4, 0, 2, 4)
	g.Accounts[taker.Owner] = taker
	if _, err := g.TokenDeposit(TokenDepositParams{Owner: taker.Owner, TokenIndex: usdcIndex, Amount: fixedpoint.FromInt64(10000), Now: now}); err != nil {
		panic(err)
	}

	return g, maker, taker
}

func TestPlaceOrderMatchesRestingMaker(t *testing.T) {
	g, maker, taker := testGroupWithPerp(1000)

	if _, err := g.PlaceOrder(PlaceOrderParams{
		Owner: maker.Owner, MarketIndex: solPerpIndex, Side: account.Ask,
		Price: 20, MaxBaseQty: 5, OrderType: orderbook.Limit, Now: 1000,
	}); err != nil {
		t.Fatalf("maker place: %v", err)
	}

	result, err := g.PlaceOrder(PlaceOrderParams{
		Owner: taker.Owner, MarketIndex: solPerpIndex, Side: account.Bid,
		Price: 20, MaxBaseQty: 5, OrderType: orderbook.Limit, Now: 1000,
	})
	if err != nil {
		t.Fatalf("taker place: %v", err)
	}
	if result.BaseFilled != 5 {
		t.Fatalf("expected full fill of 5 lots, got %d", result.BaseFilled)
	}

	takerPos := taker.PerpPositionByMarket(solPerpIndex)
	if takerPos.TakerBaseLots != 5 {
		t.Fatalf("expected 5 provisional taker base lots, got %d", takerPos.TakerBaseLots)
	}

	n, err := g.ConsumeEvents(ConsumeEventsParams{MarketIndex: solPerpIndex, Limit: 8})
	if err != nil {
		t.Fatalf("consume_events: %v", err)
	}
	if n == 0 {
		t.Fatalf("expected at least one event consumed")
	}

	if takerPos.BasePositionLots != 5 {
		t.Fatalf("expected consume_events to realize 5 base lots, got %d", takerPos.BasePositionLots)
	}
	makerPos := maker.PerpPositionByMarket(solPerpIndex)
	if makerPos.BasePositionLots != -5 {
		t.Fatalf("expected maker short 5 lots, got %d", makerPos.BasePositionLots)
	}
}

func TestCancelOrderReleasesReservedLots(t *testing.T) {
	g, maker, _ := testGroupWithPerp(1000)

	result, err := g.PlaceOrder(PlaceOrderParams{
		Owner: maker.Owner, MarketIndex: solPerpIndex, Side: account.Ask,
		Price: 25, MaxBaseQty: 5, OrderType: orderbook.Limit, Now: 1000,
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if !result.Posted {
		t.Fatalf("expected the order to rest")
	}

	pos := maker.PerpPositionByMarket(solPerpIndex)
	if pos.AsksBaseLots != 5 {
		t.Fatalf("expected 5 reserved ask lots, got %d", pos.AsksBaseLots)
	}

	if err := g.CancelOrder(CancelOrderParams{Owner: maker.Owner, MarketIndex: solPerpIndex, OrderID: result.OrderID, Now: 1000}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if pos.AsksBaseLots != 0 {
		t.Fatalf("expected cancel to release reserved ask lots, got %d", pos.AsksBaseLots)
	}
}
