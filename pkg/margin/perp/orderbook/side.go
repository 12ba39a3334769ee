package orderbook

import "container/heap"

// priceHeap orders resting price levels so the best price for a side is
// always at index 0: highest first for bids, lowest first for asks.
type priceHeap struct {
	prices []int64
	better func(a, b int64) bool
}

func (h *priceHeap) Len() int            { return len(h.prices) }
func (h *priceHeap) Less(i, j int) bool  { return h.better(h.prices[i], h.prices[j]) }
func (h *priceHeap) Swap(i, j int)       { h.prices[i], h.prices[j] = h.prices[j], h.prices[i] }
func (h *priceHeap) Push(x interface{})  { h.prices = append(h.prices, x.(int64)) }
func (h *priceHeap) Pop() interface{} {
	old := h.prices
	n := len(old)
	x := old[n-1]
	h.prices = old[:n-1]
	return x
}
func (h *priceHeap) Peek() (int64, bool) {
	if len(h.prices) == 0 {
		return 0, false
	}
	return h.prices[0], true
}

// expiryHeap tracks the earliest-expiring order across an entire side,
// standing in for the per-InnerNode child_earliest_expiry chain: a
// single side-wide min-heap gives the same O(log n) "find and remove the
// next expired order" operation without needing to maintain expiry
// watermarks through every ancestor on insert/remove.
type expiryEntry struct {
	expiry  uint64
	orderID OrderID
}

type expiryHeap []expiryEntry

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].expiry < h[j].expiry }
func (h expiryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x interface{}) { *h = append(*h, x.(expiryEntry)) }
func (h *expiryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// BookSide holds every resting order on one side of a market.
type BookSide struct {
	side Side

	levels map[int64][]*LeafNode // price -> FIFO queue, earliest first
	prices *priceHeap

	byOrderID map[OrderID]int64 // orderID -> price, for O(1) cancel

	expiring expiryHeap

	maxLevels int
}

// NewBookSide builds an empty side. maxLevels of 0 means unbounded.
func NewBookSide(side Side, maxLevels int) *BookSide {
	var better func(a, b int64) bool
	if side == Bid {
		better = func(a, b int64) bool { return a > b }
	} else {
		better = func(a, b int64) bool { return a < b }
	}
	ph := &priceHeap{better: better}
	heap.Init(ph)
	return &BookSide{
		side:      side,
		levels:    make(map[int64][]*LeafNode),
		prices:    ph,
		byOrderID: make(map[OrderID]int64),
		maxLevels: maxLevels,
	}
}

func (bs *BookSide) Best() (*LeafNode, bool) {
	price, ok := bs.prices.Peek()
	if !ok {
		return nil, false
	}
	level := bs.levels[price]
	if len(level) == 0 {
		return nil, false
	}
	return level[0], true
}

func (bs *BookSide) BestPrice() (int64, bool) {
	return bs.prices.Peek()
}

func (bs *BookSide) NumLevels() int { return bs.prices.Len() }

// Insert adds a resting leaf to its price level, pushing a new heap
// entry only when the level didn't already exist.
func (bs *BookSide) Insert(n *LeafNode) {
	price := n.Price
	if len(bs.levels[price]) == 0 {
		heap.Push(bs.prices, price)
	}
	bs.levels[price] = append(bs.levels[price], n)
	bs.byOrderID[n.OrderID] = price
	if n.Expiry() != noExpiry {
		heap.Push(&bs.expiring, expiryEntry{expiry: n.Expiry(), orderID: n.OrderID})
	}
}

// Remove deletes an order by ID, returning it if found.
func (bs *BookSide) Remove(id OrderID) (*LeafNode, bool) {
	price, ok := bs.byOrderID[id]
	if !ok {
		return nil, false
	}
	level := bs.levels[price]
	for i, n := range level {
		if n.OrderID == id {
			bs.levels[price] = append(level[:i], level[i+1:]...)
			if len(bs.levels[price]) == 0 {
				delete(bs.levels, price)
				bs.removeFromPriceHeap(price)
			}
			delete(bs.byOrderID, id)
			return n, true
		}
	}
	return nil, false
}

func (bs *BookSide) removeFromPriceHeap(price int64) {
	for i, p := range bs.prices.prices {
		if p == price {
			heap.Remove(bs.prices, i)
			return
		}
	}
}

// PopFront consumes the maker at the very front of the book (after
// Best() identified it as matchable), removing it from its level and
// clearing the level/heap entry if it was the last one there.
func (bs *BookSide) PopFront() {
	price, ok := bs.prices.Peek()
	if !ok {
		return
	}
	level := bs.levels[price]
	if len(level) == 0 {
		delete(bs.levels, price)
		bs.removeFromPriceHeap(price)
		return
	}
	front := level[0]
	bs.levels[price] = level[1:]
	delete(bs.byOrderID, front.OrderID)
	if len(bs.levels[price]) == 0 {
		delete(bs.levels, price)
		bs.removeFromPriceHeap(price)
	}
}

// RemoveExpired pops up to dropExpiredOrderLimit orders that have
// expired as of nowTs, invoking onExpired for each (callers emit an Out
// event so the maker account is eventually credited back by
// consume_events). Returns the number removed.
func (bs *BookSide) RemoveExpired(nowTs int64, onExpired func(*LeafNode)) int {
	removed := 0
	for removed < dropExpiredOrderLimit && len(bs.expiring) > 0 {
		top := bs.expiring[0]
		if top.expiry > uint64(nowTs) {
			break
		}
		heap.Pop(&bs.expiring)
		n, ok := bs.Remove(top.orderID)
		if !ok {
			continue // already removed by a fill or explicit cancel
		}
		onExpired(n)
		removed++
	}
	return removed
}

// IsFull reports whether the side has reached its level cap (0 = no cap).
func (bs *BookSide) IsFull() bool {
	return bs.maxLevels > 0 && bs.prices.Len() >= bs.maxLevels
}

// WorstLevel returns the price farthest from the touch, used to decide
// whether a new order dominates it and can evict it when the side is
// full.
func (bs *BookSide) WorstLevel() (int64, bool) {
	if bs.prices.Len() == 0 {
		return 0, false
	}
	worst := bs.prices.prices[0]
	for _, p := range bs.prices.prices {
		if bs.side == Bid && p < worst {
			worst = p
		} else if bs.side == Ask && p > worst {
			worst = p
		}
	}
	return worst, true
}

// EvictWorst removes every order at the worst price level, invoking
// onEvicted for each so callers can emit Out events.
func (bs *BookSide) EvictWorst(onEvicted func(*LeafNode)) {
	price, ok := bs.WorstLevel()
	if !ok {
		return
	}
	for _, n := range bs.levels[price] {
		onEvicted(n)
		delete(bs.byOrderID, n.OrderID)
	}
	delete(bs.levels, price)
	bs.removeFromPriceHeap(price)
}

// Levels returns aggregated (price, total quantity) pairs, best first.
func (bs *BookSide) Levels() []PriceLevel {
	prices := append([]int64(nil), bs.prices.prices...)
	out := make([]PriceLevel, 0, len(prices))
	for _, p := range prices {
		var qty int64
		for _, n := range bs.levels[p] {
			qty += n.Quantity
		}
		out = append(out, PriceLevel{Price: p, Quantity: qty})
	}
	sortLevels(out, bs.side)
	return out
}

// PriceLevel is one aggregated price/quantity pair in a book snapshot.
type PriceLevel struct {
	Price    int64
	Quantity int64
}

func sortLevels(levels []PriceLevel, side Side) {
	for i := 1; i < len(levels); i++ {
		for j := i; j > 0; j-- {
			var swap bool
			if side == Bid {
				swap = levels[j].Price > levels[j-1].Price
			} else {
				swap = levels[j].Price < levels[j-1].Price
			}
			if !swap {
				break
			}
			levels[j], levels[j-1] = levels[j-1], levels[j]
		}
	}
}
