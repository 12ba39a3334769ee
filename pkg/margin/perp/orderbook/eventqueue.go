package orderbook

import "github.com/uhyunpark/hyperlicked/pkg/margin/marginerr"

// EventKind distinguishes the two event payloads the matching engine
// can emit; settlement dispatches on this before touching account state.
type EventKind uint8

const (
	EventFill EventKind = iota
	EventOut
)

// FillEvent is a matched trade, with both sides' identity and the fee
// rates copied from the placement params. ConsumeEvents in package
// market does not read MakerFeeRate/TakerFeeRate: it charges the
// market's MakerFee/TakerFee as they stand when the event is consumed.
type FillEvent struct {
	TakerOrderID OrderID
	MakerOrderID OrderID
	TakerOwner   [20]byte
	MakerOwner   [20]byte
	TakerSide    Side
	Price        int64
	Quantity     int64
	MakerFeeRate int64 // basis points, negative means rebate
	TakerFeeRate int64 // basis points
	Timestamp    int64
}

// OutEvent returns a resting order's unfilled remainder to its owner:
// emitted when an order is evicted for book-capacity reasons or expires
// before it could be cancelled explicitly.
type OutEvent struct {
	Owner    [20]byte
	Side     Side
	OrderID  OrderID
	Quantity int64
	Timestamp int64
}

// Event is a tagged union of FillEvent/OutEvent, queued for
// consume_events to process in order.
type Event struct {
	Kind EventKind
	Fill FillEvent
	Out  OutEvent
}

// EventQueue is a fixed-capacity ring buffer decoupling the matching
// loop (producer) from settlement (consumer): a taker's fills land here
// immediately, but account balances only change when consume_events
// drains them, bounding how much state one transaction can touch.
type EventQueue struct {
	buf   []Event
	head  int // next to consume
	count int
}

func NewEventQueue(capacity int) *EventQueue {
	return &EventQueue{buf: make([]Event, capacity)}
}

func (q *EventQueue) Capacity() int { return len(q.buf) }
func (q *EventQueue) Len() int      { return q.count }
func (q *EventQueue) IsFull() bool  { return q.count == len(q.buf) }

// Push enqueues an event, failing with ErrEventQueueFull once the ring
// buffer is saturated; matching must not silently drop fills.
func (q *EventQueue) Push(e Event) error {
	if q.IsFull() {
		return marginerr.ErrEventQueueFull
	}
	tail := (q.head + q.count) % len(q.buf)
	q.buf[tail] = e
	q.count++
	return nil
}

// ConsumeEvents drains up to limit events, invoking handle for each and
// advancing head only past events handle accepts (returns nil). An
// error from handle stops the drain and is returned, leaving the
// offending event at the front for the next call to retry.
func (q *EventQueue) ConsumeEvents(limit int, handle func(Event) error) (int, error) {
	consumed := 0
	for consumed < limit && q.count > 0 {
		e := q.buf[q.head]
		if err := handle(e); err != nil {
			return consumed, err
		}
		q.head = (q.head + 1) % len(q.buf)
		q.count--
		consumed++
	}
	return consumed, nil
}
