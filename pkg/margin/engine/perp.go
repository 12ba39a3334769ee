package engine

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperlicked/pkg/margin/account"
	"github.com/uhyunpark/hyperlicked/pkg/margin/marginerr"
	"github.com/uhyunpark/hyperlicked/pkg/margin/perp/orderbook"
	"github.com/uhyunpark/hyperlicked/pkg/margin/settlement"
)

// maxEventsPerConsume bounds a single consume_events call the way a real
// transaction's compute budget would: a caller asking for more than this
// gets silently capped rather than rejected outright.
const maxEventsPerConsume = 8

// PlaceOrderParams describes a perp order placement.
type PlaceOrderParams struct {
	Owner         common.Address
	MarketIndex   int64
	Side          account.Side
	Price         int64
	WorstPrice    int64
	MaxBaseQty    int64
	MaxQuoteQty   int64
	OrderType     orderbook.OrderType
	TimeInForce   uint8
	ClientOrderID uint64
	SelfTrade     orderbook.SelfTradeBehavior
	Now           int64
}

// PlaceOrder matches the incoming order against the book, applies any
// immediate fill to the account's provisional taker lots and rests the
// remainder, then runs the shared post-condition health check (a fill
// can push an over-leveraged taker straight through zero health).
func (g *Group) PlaceOrder(p PlaceOrderParams) (orderbook.PlaceOrderResult, error) {
	acc, ok := g.lookupAccount(p.Owner)
	if !ok {
		return orderbook.PlaceOrderResult{}, marginerr.ErrPerpPositionNotFound
	}
	m, ok := g.Markets[p.MarketIndex]
	if !ok {
		return orderbook.PlaceOrderResult{}, marginerr.ErrUnknownMarket
	}
	if m.ReduceOnly {
		pos := acc.PerpPositionByMarket(p.MarketIndex)
		if pos == nil || !reducesPosition(pos.BasePositionLots, p.Side, p.MaxBaseQty) {
			return orderbook.PlaceOrderResult{}, marginerr.ErrMarketInReduceOnly
		}
	}

	pos, err := acc.EnsurePerpPosition(p.MarketIndex)
	if err != nil {
		return orderbook.PlaceOrderResult{}, err
	}

	obSide := orderbook.Side(p.Side)
	result, err := m.Book.PlaceOrder(orderbook.PlaceOrderParams{
		Side:          obSide,
		Owner:         [20]byte(p.Owner),
		Price:         p.Price,
		WorstPrice:    p.WorstPrice,
		MaxBaseQty:    p.MaxBaseQty,
		MaxQuoteQty:   p.MaxQuoteQty,
		OrderType:     p.OrderType,
		TimeInForce:   p.TimeInForce,
		ClientOrderID: p.ClientOrderID,
		SelfTrade:     p.SelfTrade,
		Now:           p.Now,
	})
	if err != nil {
		return result, err
	}

	if result.BaseFilled > 0 {
		pos.AddTakerTrade(p.Side, result.BaseFilled, result.QuoteFilled)
	}
	if result.Posted {
		if p.Side == account.Bid {
			pos.BidsBaseLots += result.RemainingBase
		} else {
			pos.AsksBaseLots += result.RemainingBase
		}
		if err := acc.AddPerpOpenOrder(p.Side, p.MarketIndex, p.ClientOrderID, [16]byte(result.OrderID)); err != nil {
			return result, err
		}
	}

	if err := g.checkPostHealth(acc, p.Now, false); err != nil {
		return result, err
	}
	return result, nil
}

// reducesPosition reports whether an order of side/maxQty can only shrink
// (never flip past flat into growth on) an existing base position, the
// condition a reduce-only market enforces.
func reducesPosition(baseLots int64, side account.Side, maxQty int64) bool {
	if baseLots == 0 {
		return false
	}
	if baseLots > 0 {
		return side == account.Ask && maxQty <= baseLots
	}
	return side == account.Bid && maxQty <= -baseLots
}

// CancelOrderParams describes a perp order cancellation.
type CancelOrderParams struct {
	Owner       common.Address
	MarketIndex int64
	OrderID     orderbook.OrderID
	Now         int64
}

// CancelOrder removes a resting order and releases its reserved
// bids/asks lots. Cancelling can only improve health, so it refreshes
// being_liquidated without gating on Init health.
func (g *Group) CancelOrder(p CancelOrderParams) error {
	acc, ok := g.lookupAccount(p.Owner)
	if !ok {
		return marginerr.ErrPerpPositionNotFound
	}
	m, ok := g.Markets[p.MarketIndex]
	if !ok {
		return marginerr.ErrUnknownMarket
	}

	leaf, ok := m.Book.CancelOrder(p.OrderID)
	if !ok {
		return marginerr.ErrOrderNotFound
	}

	pos := acc.PerpPositionByMarket(p.MarketIndex)
	if pos != nil {
		if leaf.Side == orderbook.Bid {
			pos.BidsBaseLots -= leaf.Quantity
		} else {
			pos.AsksBaseLots -= leaf.Quantity
		}
	}
	acc.RemovePerpOpenOrder(p.MarketIndex, [16]byte(p.OrderID))
	acc.DeactivatePerpPositionIfEmpty(p.MarketIndex)

	return g.checkPostHealth(acc, p.Now, true)
}

// ForceCancelPerpOrders cancels every resting order an account has in a
// market, used by the liquidation sequencer's first phase before any
// position takeover can run.
func (g *Group) ForceCancelPerpOrders(owner common.Address, marketIndex int64, now int64) (int, error) {
	acc, ok := g.lookupAccount(owner)
	if !ok {
		return 0, marginerr.ErrPerpPositionNotFound
	}
	m, ok := g.Markets[marketIndex]
	if !ok {
		return 0, marginerr.ErrUnknownMarket
	}

	orders := acc.OpenOrdersForMarket(marketIndex)
	pos := acc.PerpPositionByMarket(marketIndex)
	cancelled := 0
	for _, o := range orders {
		leaf, ok := m.Book.CancelOrder(orderbook.OrderID(o.OrderID))
		if !ok {
			continue
		}
		if pos != nil {
			if leaf.Side == orderbook.Bid {
				pos.BidsBaseLots -= leaf.Quantity
			} else {
				pos.AsksBaseLots -= leaf.Quantity
			}
		}
		acc.RemovePerpOpenOrder(marketIndex, o.OrderID)
		cancelled++
	}
	acc.DeactivatePerpPositionIfEmpty(marketIndex)

	if _, err := g.liquidationTerminalCheck(acc, now); err != nil {
		return cancelled, err
	}
	return cancelled, nil
}

// ConsumeEventsParams describes a consume_events call.
type ConsumeEventsParams struct {
	MarketIndex int64
	Limit       int
}

// ConsumeEvents drains up to Limit (capped at maxEventsPerConsume) fill
// and out events from a market's book into the relevant accounts'
// positions.
func (g *Group) ConsumeEvents(p ConsumeEventsParams) (int, error) {
	m, ok := g.Markets[p.MarketIndex]
	if !ok {
		return 0, marginerr.ErrUnknownMarket
	}
	limit := p.Limit
	if limit <= 0 || limit > maxEventsPerConsume {
		limit = maxEventsPerConsume
	}
	return m.ConsumeEvents(limit, g.lookupAccount)
}

// SettlePnlParams describes a perp_settle_pnl call.
type SettlePnlParams struct {
	AccountA    common.Address
	AccountB    common.Address
	Settler     common.Address
	MarketIndex int64
	Now         int64
}

// SettlePnl realizes A's profit against B's loss, paying the settler a
// fee, then checks B's (the paying side's) post-condition health.
func (g *Group) SettlePnl(p SettlePnlParams) (settlement.PerpSettlePnlResult, error) {
	accA, ok := g.lookupAccount(p.AccountA)
	if !ok {
		return settlement.PerpSettlePnlResult{}, marginerr.ErrPerpPositionNotFound
	}
	accB, ok := g.lookupAccount(p.AccountB)
	if !ok {
		return settlement.PerpSettlePnlResult{}, marginerr.ErrPerpPositionNotFound
	}
	settler, ok := g.lookupAccount(p.Settler)
	if !ok {
		return settlement.PerpSettlePnlResult{}, marginerr.ErrPerpPositionNotFound
	}
	m, ok := g.Markets[p.MarketIndex]
	if !ok {
		return settlement.PerpSettlePnlResult{}, marginerr.ErrUnknownMarket
	}
	settleBank, ok := g.Banks[m.SettleTokenIndex]
	if !ok {
		return settlement.PerpSettlePnlResult{}, marginerr.ErrUnknownToken
	}

	price, err := g.marketOraclePrice(p.MarketIndex, p.Now)
	if err != nil {
		return settlement.PerpSettlePnlResult{}, err
	}

	aCache, err := g.BuildCache(accA, p.Now)
	if err != nil {
		return settlement.PerpSettlePnlResult{}, err
	}
	bCache, err := g.BuildCache(accB, p.Now)
	if err != nil {
		return settlement.PerpSettlePnlResult{}, err
	}

	result, err := settlement.SettlePnl(settlement.PerpSettlePnlParams{
		AccountA:                   accA,
		AccountB:                   accB,
		Settler:                    settler,
		Market:                     m,
		SettleBank:                 settleBank,
		OraclePrice:                price,
		ACache:                     aCache,
		BCache:                     bCache,
		SettleFeeFlat:              g.SettleFeeFlat,
		SettleFeeFractionLowHealth: g.SettleFeeFractionLowHealth,
		SettleFeeAmountThreshold:   g.SettleFeeAmountThreshold,
		Now:                        p.Now,
	})
	if err != nil {
		return settlement.PerpSettlePnlResult{}, err
	}

	accA.DeactivatePerpPositionIfEmpty(p.MarketIndex)
	accB.DeactivatePerpPositionIfEmpty(p.MarketIndex)

	if err := g.checkPostHealth(accB, p.Now, false); err != nil {
		return result, err
	}
	return result, nil
}

// Serum3LiqForceCancelOrders routes a liquidation-sequencer cancel-all
// call to the external spot program through SpotAdapter; the engine
// itself never holds spot open-orders state.
func (g *Group) Serum3LiqForceCancelOrders(owner common.Address, spotMarketIndex int64) error {
	if g.Spot == nil {
		return marginerr.ErrUnknownMarket
	}
	return g.Spot.CancelAllOrders(owner, spotMarketIndex)
}
