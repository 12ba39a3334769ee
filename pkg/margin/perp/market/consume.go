package market

import (
	"github.com/uhyunpark/hyperlicked/pkg/margin/account"
	"github.com/uhyunpark/hyperlicked/pkg/margin/fixedpoint"
	"github.com/uhyunpark/hyperlicked/pkg/margin/perp/orderbook"
)

// AccountLookup resolves an order's owning account by its raw address,
// letting ConsumeEvents stay agnostic of how the caller indexes
// accounts (in-memory map, pebble-backed store, etc.).
type AccountLookup func(owner [20]byte) (*account.Account, bool)

// ConsumeEvents drains up to limit events from the market's book and
// applies each fill/out to the relevant accounts' perp positions. It is
// the only place PerpPosition.BasePositionLots changes for matched
// trades; everything before this point (AddTakerTrade) is provisional.
func (m *PerpMarket) ConsumeEvents(limit int, lookup AccountLookup) (int, error) {
	return m.Book.Events.ConsumeEvents(limit, func(e orderbook.Event) error {
		switch e.Kind {
		case orderbook.EventFill:
			m.applyFill(e.Fill, lookup)
		case orderbook.EventOut:
			m.applyOut(e.Out, lookup)
		}
		return nil
	})
}

func (m *PerpMarket) applyFill(f orderbook.FillEvent, lookup AccountLookup) {
	quoteNative := fixedpoint.FromInt64(f.Quantity * f.Price * m.BaseLotSize * m.QuoteLotSize)

	makerSide := f.TakerSide.Opposite()
	m.executePerpMaker(f, quoteNative, makerSide, lookup)
	m.executePerpTaker(f, quoteNative, lookup)

	fee := quoteNative.Mul(m.MakerFee).Add(quoteNative.Mul(m.TakerFee))
	m.FeesAccrued = m.FeesAccrued.Add(fee)
}

// executePerpMaker settles a resting order's side of a fill: releases
// its reserved bids/asks lots, applies the base/quote change, and
// charges (or rebates, if MakerFee is negative) the maker fee.
func (m *PerpMarket) executePerpMaker(f orderbook.FillEvent, quoteNative fixedpoint.I80F48, makerSide orderbook.Side, lookup AccountLookup) {
	acc, ok := lookup(f.MakerOwner)
	if !ok {
		return
	}
	pos := acc.PerpPositionByMarket(m.MarketIndex)
	if pos == nil {
		return
	}
	pos.SettleFunding(m)

	baseChange := f.Quantity
	if makerSide == orderbook.Ask {
		baseChange = -baseChange
		pos.AsksBaseLots -= f.Quantity
		pos.QuotePositionNative = pos.QuotePositionNative.Add(quoteNative)
	} else {
		pos.BidsBaseLots -= f.Quantity
		pos.QuotePositionNative = pos.QuotePositionNative.Sub(quoteNative)
	}
	pos.ChangeBasePosition(m, baseChange)

	makerFee := quoteNative.Mul(m.MakerFee)
	pos.QuotePositionNative = pos.QuotePositionNative.Sub(makerFee)
}

// executePerpTaker settles the aggressor's side: clears the provisional
// taker lots reserved at placement (in the same quote-lot units
// AddTakerTrade reserved them in) and charges the taker fee against the
// native quote value of the fill.
func (m *PerpMarket) executePerpTaker(f orderbook.FillEvent, quoteNative fixedpoint.I80F48, lookup AccountLookup) {
	acc, ok := lookup(f.TakerOwner)
	if !ok {
		return
	}
	pos := acc.PerpPositionByMarket(m.MarketIndex)
	if pos == nil {
		return
	}
	pos.SettleFunding(m)

	quoteLots := f.Quantity * f.Price
	baseChange := f.Quantity
	quoteChangeLots := -quoteLots
	quoteNativeSigned := quoteNative.Neg()
	if f.TakerSide == orderbook.Ask {
		baseChange = -baseChange
		quoteChangeLots = quoteLots
		quoteNativeSigned = quoteNative
	}
	pos.RemoveTakerTrade(baseChange, quoteChangeLots)
	pos.ChangeBasePosition(m, baseChange)
	pos.QuotePositionNative = pos.QuotePositionNative.Add(quoteNativeSigned)

	takerFee := quoteNative.Mul(m.TakerFee)
	pos.QuotePositionNative = pos.QuotePositionNative.Sub(takerFee)
}

func (m *PerpMarket) applyOut(o orderbook.OutEvent, lookup AccountLookup) {
	acc, ok := lookup(o.Owner)
	if !ok {
		return
	}
	pos := acc.PerpPositionByMarket(m.MarketIndex)
	if pos == nil {
		return
	}
	if o.Side == orderbook.Bid {
		pos.BidsBaseLots -= o.Quantity
	} else {
		pos.AsksBaseLots -= o.Quantity
	}
}

// SettlePnlWindow tracks a single account's rolling settle-pnl-limit
// allowance for one market, capping how much realized PnL can be
// withdrawn to the settle-token bank within SettlePnlLimitWindowSecs.
type SettlePnlWindow struct {
	WindowStart      int64
	UsedThisWindow    fixedpoint.I80F48
	CarryoverAllowance fixedpoint.I80F48
}

// MaxSettleable returns how much of wantToSettle can be realized right
// now against positionValue, rolling the window forward if it has
// elapsed and folding any unused allowance into the new window's
// carryover, exactly as spec describes for "recurring_settle_pnl_allowance".
func (m *PerpMarket) MaxSettleable(w *SettlePnlWindow, positionValue, wantToSettle fixedpoint.I80F48, now int64) fixedpoint.I80F48 {
	if m.SettlePnlLimitWindowSecs <= 0 {
		return wantToSettle
	}
	fresh := w.WindowStart == 0 && w.UsedThisWindow.IsZero()
	if fresh || now-w.WindowStart >= m.SettlePnlLimitWindowSecs {
		if !fresh {
			limit := m.SettlePnlLimitFactor.Mul(positionValue.Abs())
			unused := limit.Sub(w.UsedThisWindow)
			if unused.IsPositive() {
				w.CarryoverAllowance = w.CarryoverAllowance.Add(unused)
			}
		}
		w.WindowStart = now
		w.UsedThisWindow = fixedpoint.Zero
	}

	limit := m.SettlePnlLimitFactor.Mul(positionValue.Abs()).Add(w.CarryoverAllowance)
	remaining := limit.Sub(w.UsedThisWindow)
	if remaining.IsNegative() {
		remaining = fixedpoint.Zero
	}
	settled := fixedpoint.Min(wantToSettle, remaining)
	w.UsedThisWindow = w.UsedThisWindow.Add(settled)
	if w.CarryoverAllowance.IsPositive() {
		used := fixedpoint.Min(settled, w.CarryoverAllowance)
		w.CarryoverAllowance = w.CarryoverAllowance.Sub(used)
	}
	return settled
}
