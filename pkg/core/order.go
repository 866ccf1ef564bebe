package core

import (
	"encoding/json"

	"github.com/nikolaydubina/fpdecimal"
)

// Side represents the bid or ask side of the book
type Side int

// Book sides
const (
	Ask Side = iota
	Bid
)

// String returns side as string
func (s Side) String() string {
	switch s {
	case Bid:
		return "BID"
	case Ask:
		return "ASK"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the other side of the book
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// OrderType represents type of the order
type OrderType string

// Order types
const (
	TypeMarket OrderType = "MARKET"
	TypeLimit  OrderType = "LIMIT"
)

// Order is one resting or incoming request. Identity and arrival time are
// assigned by the engine; quantity is the only field mutated after creation.
// A resting order belongs to exactly one price level queue, whose key equals
// the order's price.
type Order struct {
	id        uint64
	orderType OrderType
	side      Side
	quantity  fpdecimal.Decimal
	price     fpdecimal.Decimal
	timestamp int64
	traderID  string

	// intrusive FIFO links, owned by the containing queue
	queue *OrderQueue
	next  *Order
	prev  *Order
}

func newOrder(id uint64, orderType OrderType, side Side, quantity, price fpdecimal.Decimal, timestamp int64, traderID string) *Order {
	return &Order{
		id:        id,
		orderType: orderType,
		side:      side,
		quantity:  quantity,
		price:     price,
		timestamp: timestamp,
		traderID:  traderID,
	}
}

// ID returns the engine-assigned order identifier
func (o *Order) ID() uint64 {
	return o.id
}

// Side returns side of the Order
func (o *Order) Side() Side {
	return o.side
}

// Quantity returns the remaining quantity
func (o *Order) Quantity() fpdecimal.Decimal {
	return o.quantity
}

// Price returns the limit price (zero for market orders)
func (o *Order) Price() fpdecimal.Decimal {
	return o.price
}

// Timestamp returns the logical arrival time
func (o *Order) Timestamp() int64 {
	return o.timestamp
}

// TraderID returns the owning trader
func (o *Order) TraderID() string {
	return o.traderID
}

// IsMarketOrder returns true if Order is MARKET
func (o *Order) IsMarketOrder() bool {
	return o.orderType == TypeMarket
}

// IsLimitOrder returns true if Order is LIMIT
func (o *Order) IsLimitOrder() bool {
	return o.orderType == TypeLimit
}

// Resting reports whether the order is currently held in a price level queue.
func (o *Order) Resting() bool {
	return o.queue != nil
}

// UpdateQuantity sets a new quantity and timestamp. An increase while the
// order is not already last in its queue moves it to the tail, losing time
// priority; a decrease never moves it. The containing queue's volume is kept
// in sync.
func (o *Order) UpdateQuantity(newQty fpdecimal.Decimal, newTimestamp int64) {
	if o.queue != nil {
		if newQty.GreaterThan(o.quantity) && o.queue.tail != o {
			o.queue.MoveToTail(o)
		}
		o.queue.volume = o.queue.volume.Sub(o.quantity).Add(newQty)
	}
	o.quantity = newQty
	o.timestamp = newTimestamp
}

// fill reduces the remaining quantity after a match. Identity and time
// priority are unchanged.
func (o *Order) fill(qty fpdecimal.Decimal) {
	o.quantity = o.quantity.Sub(qty)
	if o.queue != nil {
		o.queue.volume = o.queue.volume.Sub(qty)
	}
}

// MarshalJSON implements json.Marshaler
func (o *Order) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID        uint64    `json:"id"`
		OrderType OrderType `json:"orderType"`
		Side      string    `json:"side"`
		Quantity  string    `json:"quantity"`
		Price     string    `json:"price"`
		Timestamp int64     `json:"timestamp"`
		TraderID  string    `json:"traderId"`
	}{
		ID:        o.id,
		OrderType: o.orderType,
		Side:      o.side.String(),
		Quantity:  o.quantity.String(),
		Price:     o.price.String(),
		Timestamp: o.timestamp,
		TraderID:  o.traderID,
	})
}

// String implements fmt.Stringer interface
func (o *Order) String() string {
	j, _ := o.MarshalJSON()
	return string(j)
}
