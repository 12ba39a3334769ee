// Package orderbook implements the perp book: two price-time-priority
// sides (each a price heap over FIFO queues per price level, not a
// critbit tree), time-in-force expiry, and a fixed-capacity
// event queue that decouples matching from account settlement.
package orderbook

import "github.com/google/uuid"

// Side is which side of the book an order rests on or matches against.
type Side uint8

const (
	Bid Side = iota
	Ask
)

func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// OrderType selects matching behavior at placement time.
type OrderType uint8

const (
	Limit OrderType = iota
	ImmediateOrCancel
	PostOnly
	// PostOnlySlide reprices one tick inside the current touch if the
	// requested price would otherwise cross; PostOnly rests at the
	// requested price either way.
	PostOnlySlide
	// Market is price-insensitive up to the caller-provided worst price.
	Market
)

// SelfTradeBehavior controls what happens when a taker would match
// against its own resting order.
type SelfTradeBehavior uint8

const (
	DecrementTake SelfTradeBehavior = iota
	CancelProvide
	AbortTransaction
)

// dropExpiredOrderLimit bounds how many expired maker orders a single
// matching pass evicts before giving up and treating the level as live;
// unbounded eviction would make a single taker's gas/compute cost
// proportional to however many stale orders happen to be queued.
const dropExpiredOrderLimit = 5

// noExpiry marks an order that never expires (time_in_force == 0).
const noExpiry = ^uint64(0)

// Key orders leaves within one side: price_data in the high word so
// price dominates the comparison, then a sequence tiebreak in the low
// word. For bids the tiebreak is bitwise-inverted so that, at equal
// price, the earlier (lower raw sequence) order sorts first on both
// sides using the same "higher key wins priority" comparator.
type Key struct {
	PriceData   uint64
	SeqTiebreak uint64
}

func newKey(side Side, priceData, seqNum uint64) Key {
	tie := seqNum
	if side == Bid {
		tie = ^seqNum
	}
	return Key{PriceData: priceData, SeqTiebreak: tie}
}

// Less reports whether k is the lower key: price data first, then the
// tiebreak (under "highest key first" priority, k sorts after other).
func (k Key) Less(other Key) bool {
	if k.PriceData != other.PriceData {
		return k.PriceData < other.PriceData
	}
	return k.SeqTiebreak < other.SeqTiebreak
}

func directPriceData(priceLots int64) uint64 {
	if priceLots < 1 {
		priceLots = 1
	}
	return uint64(priceLots)
}

// OrderID identifies a resting order across cancel/expiry/fill events.
type OrderID [16]byte

func newOrderID() OrderID {
	var id OrderID
	copy(id[:], uuid.New()[:])
	return id
}

// LeafNode is a resting order.
type LeafNode struct {
	Key           Key
	Side          Side
	OrderID       OrderID
	Owner         [20]byte
	OwnerSlot     uint8
	Price         int64
	Quantity      int64
	ClientOrderID uint64
	Timestamp     int64
	OrderType     OrderType
	TimeInForce   uint8
}

// Expiry returns the unix timestamp at which the order expires, or
// noExpiry if time_in_force is 0 (good-til-cancelled).
func (n *LeafNode) Expiry() uint64 {
	if n.TimeInForce == 0 {
		return noExpiry
	}
	return uint64(n.Timestamp) + uint64(n.TimeInForce)
}

// IsValid reports whether the order has not yet expired as of nowTs.
func (n *LeafNode) IsValid(nowTs int64) bool {
	return n.TimeInForce == 0 || uint64(nowTs) < uint64(n.Timestamp)+uint64(n.TimeInForce)
}
