package core

import (
	"fmt"
	"strings"

	"github.com/nikolaydubina/fpdecimal"
)

// OrderQueue is the FIFO of resting orders sharing one price. The head is the
// earliest arrival and the next to trade. Aggregate volume is maintained
// incrementally and always equals the sum of member quantities.
type OrderQueue struct {
	price  fpdecimal.Decimal
	head   *Order
	tail   *Order
	volume fpdecimal.Decimal
	size   int
}

// NewOrderQueue creates an empty queue for the given price
func NewOrderQueue(price fpdecimal.Decimal) *OrderQueue {
	return &OrderQueue{price: price}
}

// Price returns the queue's price key
func (q *OrderQueue) Price() fpdecimal.Decimal {
	return q.price
}

// Len returns the number of resting orders
func (q *OrderQueue) Len() int {
	return q.size
}

// Volume returns the aggregate resting quantity
func (q *OrderQueue) Volume() fpdecimal.Decimal {
	return q.volume
}

// Head returns the earliest-arrived order, or nil if the queue is empty
func (q *OrderQueue) Head() *Order {
	return q.head
}

// Append links the order at the tail of the queue.
func (q *OrderQueue) Append(o *Order) {
	o.queue = q
	o.next = nil
	o.prev = q.tail
	if q.tail == nil {
		q.head = o
	} else {
		q.tail.next = o
	}
	q.tail = o
	q.volume = q.volume.Add(o.quantity)
	q.size++
}

// Remove unlinks an arbitrary member. Removing an order that is not in this
// queue is a bookkeeping bug, not a runtime condition, so it panics.
func (q *OrderQueue) Remove(o *Order) {
	if o.queue != q {
		panic(fmt.Sprintf("core: order %d is not a member of price level %s", o.id, q.price))
	}
	q.unlink(o)
	o.queue = nil
	q.volume = q.volume.Sub(o.quantity)
	q.size--
}

// RemoveHead unlinks and returns the head order, or nil if empty
func (q *OrderQueue) RemoveHead() *Order {
	h := q.head
	if h == nil {
		return nil
	}
	q.Remove(h)
	return h
}

// MoveToTail re-queues the order at the tail, dropping its time priority.
// Volume is unchanged.
func (q *OrderQueue) MoveToTail(o *Order) {
	if o.queue != q {
		panic(fmt.Sprintf("core: order %d is not a member of price level %s", o.id, q.price))
	}
	if q.tail == o {
		return
	}
	q.unlink(o)
	o.next = nil
	o.prev = q.tail
	q.tail.next = o
	q.tail = o
}

func (q *OrderQueue) unlink(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		q.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		q.tail = o.prev
	}
	o.next = nil
	o.prev = nil
}

// String implements fmt.Stringer interface
func (q *OrderQueue) String() string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("%s -> orders: %d, volume: %s", q.price, q.size, q.volume))
	return sb.String()
}
