package core

import (
	"fmt"
	"strings"

	"github.com/nikolaydubina/fpdecimal"
)

// OrderSide is one side of the book: the price index plus an id lookup and
// side-wide summary stats. Best/worst orientation depends on the side — the
// best bid is the maximum price, the best ask the minimum.
type OrderSide struct {
	side   Side
	tree   *PriceTree
	orders map[uint64]*Order
	volume fpdecimal.Decimal
}

// NewOrderSide creates an empty book side
func NewOrderSide(side Side) *OrderSide {
	return &OrderSide{
		side:   side,
		tree:   NewPriceTree(),
		orders: make(map[uint64]*Order),
	}
}

// Side returns which side of the book this is
func (s *OrderSide) Side() Side {
	return s.side
}

// Len returns the number of resting orders
func (s *OrderSide) Len() int {
	return len(s.orders)
}

// Depth returns the number of price levels
func (s *OrderSide) Depth() int {
	return s.tree.Len()
}

// Volume returns the total resting quantity on this side
func (s *OrderSide) Volume() fpdecimal.Decimal {
	return s.volume
}

// Order returns the resting order with the given id, or nil
func (s *OrderSide) Order(orderID uint64) *Order {
	return s.orders[orderID]
}

// Tree exposes the underlying price index for traversal
func (s *OrderSide) Tree() *PriceTree {
	return s.tree
}

// InsertOrder rests the order at the tail of its price level, creating the
// level if this is the first order at that price.
func (s *OrderSide) InsertOrder(o *Order) {
	q := s.tree.Insert(o.price)
	q.Append(o)
	s.orders[o.id] = o
	s.volume = s.volume.Add(o.quantity)
}

// RemoveOrder removes a resting order from its level, dropping the level if
// it becomes empty. Returns false if the id is not resting on this side.
func (s *OrderSide) RemoveOrder(orderID uint64) bool {
	o, ok := s.orders[orderID]
	if !ok {
		return false
	}
	q := o.queue
	q.Remove(o)
	if q.Len() == 0 {
		if err := s.tree.Remove(q.Price()); err != nil {
			panic(fmt.Sprintf("core: removing empty level %s: %v", q.Price(), err))
		}
	}
	delete(s.orders, orderID)
	s.volume = s.volume.Sub(o.quantity)
	return true
}

// UpdateOrderQuantity changes a resting order's quantity, re-queuing it to
// the tail only when the quantity grew. Side volume tracks the delta.
func (s *OrderSide) UpdateOrderQuantity(o *Order, newQty fpdecimal.Decimal, timestamp int64) {
	s.volume = s.volume.Sub(o.quantity).Add(newQty)
	o.UpdateQuantity(newQty, timestamp)
}

// reduce applies a partial fill to a resting order.
func (s *OrderSide) reduce(o *Order, qty fpdecimal.Decimal) {
	o.fill(qty)
	s.volume = s.volume.Sub(qty)
}

// BestPrice returns the best price on this side: the highest bid or the
// lowest ask.
func (s *OrderSide) BestPrice() (fpdecimal.Decimal, bool) {
	price, _, ok := s.bestLevel()
	return price, ok
}

// WorstPrice returns the opposite extreme of BestPrice
func (s *OrderSide) WorstPrice() (fpdecimal.Decimal, bool) {
	price, _, ok := s.worstLevel()
	return price, ok
}

// BestQueue returns the queue at the best price
func (s *OrderSide) BestQueue() (*OrderQueue, bool) {
	_, q, ok := s.bestLevel()
	return q, ok
}

// WorstQueue returns the queue at the worst price
func (s *OrderSide) WorstQueue() (*OrderQueue, bool) {
	_, q, ok := s.worstLevel()
	return q, ok
}

// VolumeAtPrice returns the aggregate resting quantity at one level, zero if
// the level does not exist.
func (s *OrderSide) VolumeAtPrice(price fpdecimal.Decimal) fpdecimal.Decimal {
	q, ok := s.tree.Get(price)
	if !ok {
		return fpdecimal.Zero
	}
	return q.Volume()
}

// NextWorse returns the next level away from the top of the book: the next
// lower price for bids, the next higher for asks.
func (s *OrderSide) NextWorse(price fpdecimal.Decimal) (fpdecimal.Decimal, *OrderQueue, error) {
	if s.side == Bid {
		return s.tree.Pred(price)
	}
	return s.tree.Succ(price)
}

func (s *OrderSide) bestLevel() (fpdecimal.Decimal, *OrderQueue, bool) {
	if s.side == Bid {
		return s.tree.Max()
	}
	return s.tree.Min()
}

func (s *OrderSide) worstLevel() (fpdecimal.Decimal, *OrderQueue, bool) {
	if s.side == Bid {
		return s.tree.Min()
	}
	return s.tree.Max()
}

// String implements fmt.Stringer interface. Levels print best-first.
func (s *OrderSide) String() string {
	sb := strings.Builder{}
	cur := s.tree.NewCursor(s.side == Bid)
	for price, q, ok := cur.Next(); ok; price, q, ok = cur.Next() {
		sb.WriteString(fmt.Sprintf("\n%s -> orders: %d, volume: %s", price, q.Len(), q.Volume()))
	}
	return sb.String()
}
