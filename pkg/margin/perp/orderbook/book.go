package orderbook

import "github.com/uhyunpark/hyperlicked/pkg/margin/marginerr"

// Book is one market's two-sided order book plus the event queue its
// matching loop feeds.
type Book struct {
	Bids *BookSide
	Asks *BookSide

	Events *EventQueue

	seq uint64
}

// NewBook builds an empty book. maxLevelsPerSide of 0 means unbounded;
// eventQueueCapacity should be sized so a worst-case block's fills never
// overflow it before consume_events runs.
func NewBook(maxLevelsPerSide, eventQueueCapacity int) *Book {
	return &Book{
		Bids:   NewBookSide(Bid, maxLevelsPerSide),
		Asks:   NewBookSide(Ask, maxLevelsPerSide),
		Events: NewEventQueue(eventQueueCapacity),
	}
}

func (b *Book) sideFor(s Side) *BookSide {
	if s == Bid {
		return b.Bids
	}
	return b.Asks
}

// PlaceOrderParams describes a new order's placement request.
type PlaceOrderParams struct {
	Side          Side
	Owner         [20]byte
	Price         int64 // ignored for Market orders, which use WorstPrice
	WorstPrice    int64 // market orders' price-insensitivity bound
	MaxBaseQty    int64
	MaxQuoteQty   int64 // quote lots still available to spend/receive
	OrderType     OrderType
	TimeInForce   uint8
	ClientOrderID uint64
	SelfTrade     SelfTradeBehavior
	Now           int64
	MakerFeeRate  int64
	TakerFeeRate  int64
}

// PlaceOrderResult summarizes what happened to the incoming order.
type PlaceOrderResult struct {
	OrderID        OrderID
	BaseFilled     int64
	QuoteFilled    int64
	RemainingBase  int64
	Posted         bool
	Rejected       bool
	RejectedReason error
}

// PlaceOrder runs the taker side of matching against the opposite book,
// then (depending on order type and leftover quantity) rests the order.
func (b *Book) PlaceOrder(p PlaceOrderParams) (PlaceOrderResult, error) {
	if b.Events.IsFull() {
		return PlaceOrderResult{Rejected: true, RejectedReason: marginerr.ErrEventQueueFull}, marginerr.ErrEventQueueFull
	}
	opposite := b.sideFor(p.Side.Opposite())
	own := b.sideFor(p.Side)

	limitPrice := p.Price
	if p.OrderType == Market {
		limitPrice = p.WorstPrice
	}

	remainingBase := p.MaxBaseQty
	remainingQuote := p.MaxQuoteQty
	var baseFilled, quoteFilled int64
	queueFull := false

	postOnly := p.OrderType == PostOnly || p.OrderType == PostOnlySlide

	for remainingBase > 0 {
		opposite.RemoveExpired(p.Now, func(n *LeafNode) {
			b.pushOut(n, p.Now)
		})

		maker, ok := opposite.Best()
		if !ok {
			break
		}
		if !priceMatches(p.Side, limitPrice, maker.Price) {
			break
		}

		if maker.Owner == p.Owner {
			switch p.SelfTrade {
			case AbortTransaction:
				return PlaceOrderResult{Rejected: true, RejectedReason: marginerr.ErrCannotSettleWithSelf}, marginerr.ErrCannotSettleWithSelf
			case CancelProvide:
				opposite.PopFront()
				b.pushOut(maker, p.Now)
				continue
			case DecrementTake:
				matchQty := minInt64(remainingBase, maker.Quantity)
				remainingBase -= matchQty
				opposite.PopFront()
				b.pushOut(maker, p.Now)
				continue
			}
		}

		if postOnly {
			// a post-only taker never matches; the whole remaining
			// quantity rests below (PostOnlySlide at the price slidePrice
			// computes, PostOnly at the requested price).
			break
		}

		matchQty := minInt64(remainingBase, maker.Quantity)
		if remainingQuote > 0 {
			affordable := remainingQuote / maxInt64(maker.Price, 1)
			matchQty = minInt64(matchQty, affordable)
			if matchQty <= 0 {
				break
			}
		}

		if b.Events.IsFull() {
			// stop matching rather than lose a fill; the remainder does not rest
			queueFull = true
			break
		}

		fillQuote := matchQty * maker.Price
		baseFilled += matchQty
		quoteFilled += fillQuote
		remainingBase -= matchQty
		remainingQuote -= fillQuote

		b.Events.Push(Event{Kind: EventFill, Fill: FillEvent{
			TakerOrderID: newOrderID(),
			MakerOrderID: maker.OrderID,
			TakerOwner:   p.Owner,
			MakerOwner:   maker.Owner,
			TakerSide:    p.Side,
			Price:        maker.Price,
			Quantity:     matchQty,
			MakerFeeRate: p.MakerFeeRate,
			TakerFeeRate: p.TakerFeeRate,
			Timestamp:    p.Now,
		}})

		maker.Quantity -= matchQty
		if maker.Quantity == 0 {
			opposite.PopFront()
		}
	}

	result := PlaceOrderResult{
		BaseFilled:    baseFilled,
		QuoteFilled:   quoteFilled,
		RemainingBase: remainingBase,
	}

	canRest := remainingBase > 0 && !queueFull && p.OrderType != ImmediateOrCancel && p.OrderType != Market
	if !canRest {
		return result, nil
	}

	restPrice := p.Price
	if p.OrderType == PostOnlySlide {
		restPrice = slidePrice(p.Side, p.Price, opposite)
	}

	if own.IsFull() {
		if !dominates(p.Side, restPrice, own) {
			result.Rejected = true
			result.RejectedReason = marginerr.ErrOrderbookFull
			return result, nil
		}
		own.EvictWorst(func(n *LeafNode) { b.pushOut(n, p.Now) })
	}

	b.seq++
	orderID := newOrderID()
	leaf := &LeafNode{
		Key:           newKey(p.Side, directPriceData(restPrice), b.seq),
		Side:          p.Side,
		OrderID:       orderID,
		Owner:         p.Owner,
		Price:         restPrice,
		Quantity:      remainingBase,
		ClientOrderID: p.ClientOrderID,
		Timestamp:     p.Now,
		OrderType:     p.OrderType,
		TimeInForce:   p.TimeInForce,
	}
	own.Insert(leaf)

	result.OrderID = orderID
	result.Posted = true
	return result, nil
}

func (b *Book) pushOut(n *LeafNode, now int64) {
	b.Events.Push(Event{Kind: EventOut, Out: OutEvent{
		Owner:     n.Owner,
		Side:      n.Side,
		OrderID:   n.OrderID,
		Quantity:  n.Quantity,
		Timestamp: now,
	}})
}

// CancelOrder removes a resting order by ID, on whichever side it's on,
// and returns it.
func (b *Book) CancelOrder(id OrderID) (*LeafNode, bool) {
	if n, ok := b.Bids.Remove(id); ok {
		return n, true
	}
	return b.Asks.Remove(id)
}

func priceMatches(takerSide Side, limitPrice, makerPrice int64) bool {
	if takerSide == Bid {
		return makerPrice <= limitPrice
	}
	return makerPrice >= limitPrice
}

// slidePrice computes the PostOnlySlide reprice: one tick inside the
// current opposite touch if the requested price would otherwise cross,
// else the requested price unchanged.
func slidePrice(side Side, requested int64, opposite *BookSide) int64 {
	touch, ok := opposite.BestPrice()
	if !ok {
		return requested
	}
	if side == Bid && requested >= touch {
		return touch - 1
	}
	if side == Ask && requested <= touch {
		return touch + 1
	}
	return requested
}

// dominates reports whether a new order at price would sort strictly
// better than the side's current worst resting level, the condition
// under which a full side may evict to make room.
func dominates(side Side, price int64, own *BookSide) bool {
	worst, ok := own.WorstLevel()
	if !ok {
		return true
	}
	if side == Bid {
		return price > worst
	}
	return price < worst
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
