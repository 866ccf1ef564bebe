package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"

	"github.com/DrAshBooth/golob/pkg/messaging"
)

// ResidualPolicy decides what happens to the unfilled remainder of a market
// order once the opposite side runs out of matchable liquidity. The policy
// is fixed per book, not per request.
type ResidualPolicy int

const (
	// DiscardResidual drops the remainder (immediate-or-cancel behavior)
	DiscardResidual ResidualPolicy = iota
	// RestResidual rests the remainder as a limit order at the last
	// matched price. With no trade to anchor a price the remainder is
	// discarded anyway.
	RestResidual
)

// Options configures an OrderBook. The zero value gives a stand-alone book:
// 0.001 tick, discard policy, no journal, no publisher, no logging.
type Options struct {
	// TickSize is the minimum price increment; limit prices are rounded
	// to the nearest multiple
	TickSize fpdecimal.Decimal
	// Residual selects the market-order remainder policy
	Residual ResidualPolicy
	// Journal, when set, durably records each accepted order and trade
	Journal Journal
	// Sender, when set, publishes each execution result
	Sender messaging.MessageSender
	// Logger for engine events
	Logger zerolog.Logger
}

// OrderBook is the single-instrument matching engine. It owns both book
// sides, the logical clock, the id counter and the trade tape; no other
// component mutates them. Events (Process, Cancel, Modify) are applied one
// at a time in a strict total order — the engine is deliberately
// single-threaded so replaying an event sequence reproduces trades and book
// bit-for-bit.
type OrderBook struct {
	bids *OrderSide
	asks *OrderSide

	tape           []TradeRecord
	tickSize       fpdecimal.Decimal
	residual       ResidualPolicy
	journal        Journal
	sender         messaging.MessageSender
	logger         zerolog.Logger
	lastTimestamp  int64
	lastTradePrice fpdecimal.Decimal
	nextOrderID    uint64
}

// NewOrderBook creates an engine with the given options.
func NewOrderBook(opts Options) *OrderBook {
	tick := opts.TickSize
	if tick.LessThanOrEqual(fpdecimal.Zero) {
		tick = fpdecimal.FromFloat(0.001)
	}
	return &OrderBook{
		bids:        NewOrderSide(Bid),
		asks:        NewOrderSide(Ask),
		tickSize:    tick,
		residual:    opts.Residual,
		journal:     opts.Journal,
		sender:      opts.Sender,
		logger:      opts.Logger,
		nextOrderID: 1,
	}
}

// TickSize returns the configured minimum price increment
func (ob *OrderBook) TickSize() fpdecimal.Decimal {
	return ob.tickSize
}

// Process applies one inbound request: it matches against resting liquidity
// under price-time priority and rests any limit residual. The returned Done
// carries the trades produced and the resting order, if any.
//
// A non-nil error wrapping ErrJournalFailure means durable and in-memory
// state may disagree; the caller must treat that as a fatal consistency
// fault.
func (ob *OrderBook) Process(req Request) (*Done, error) {
	return ob.process(req, 0)
}

// process runs the request; a non-zero reuseID keeps the identity of a
// repriced order instead of drawing a fresh id.
func (ob *OrderBook) process(req Request, reuseID uint64) (*Done, error) {
	if !req.valid {
		return nil, ErrInvalidOrderType
	}

	ts := ob.advanceClock(req.timestamp, req.hasTimestamp)

	id := reuseID
	if id == 0 {
		id = ob.nextOrderID
		ob.nextOrderID++
	}

	price := fpdecimal.Zero
	if !req.IsMarket() {
		price = ob.clipPrice(req.price)
	}
	order := newOrder(id, req.orderType, req.side, req.quantity, price, ts, req.traderID)

	var jerr error
	if ob.journal != nil {
		ob.journal.Begin(id)
		jerr = ob.journal.RecordOrder(order)
	}

	done := newDone(order)
	remaining := ob.match(order, done)

	if remaining.GreaterThan(fpdecimal.Zero) {
		switch {
		case order.IsLimitOrder():
			ob.rest(order, done)
		case ob.residual == RestResidual && ob.lastTradePrice.GreaterThan(fpdecimal.Zero):
			order.price = ob.lastTradePrice
			ob.rest(order, done)
		default:
			done.Left = remaining
		}
	}

	if ob.journal != nil {
		for i := range done.Trades {
			if jerr == nil {
				jerr = ob.journal.RecordTrade(&done.Trades[i])
			}
		}
		if jerr == nil {
			jerr = ob.journal.Commit()
		}
		if jerr != nil {
			ob.logger.Error().Err(jerr).Uint64("order_id", id).Msg("journal commit failed")
			return done, fmt.Errorf("%w: %v", ErrJournalFailure, jerr)
		}
	}

	ob.publish(done)
	ob.logger.Debug().
		Uint64("order_id", id).
		Str("side", order.Side().String()).
		Int("trades", len(done.Trades)).
		Str("processed", done.Processed.String()).
		Bool("stored", done.Stored).
		Msg("order processed")

	return done, nil
}

// advanceClock moves the logical clock for one event and returns the event's
// timestamp. Replayed events adopt the recorded timestamp and only ever push
// the clock forward to it; live events tick the clock by one.
func (ob *OrderBook) advanceClock(ts int64, recorded bool) int64 {
	if recorded {
		if ts > ob.lastTimestamp {
			ob.lastTimestamp = ts
		}
		return ts
	}
	ob.lastTimestamp++
	return ob.lastTimestamp
}

// Cancel removes a resting order from the given side. Cancelling an id that
// is not resting there is a benign no-op and returns false.
func (ob *OrderBook) Cancel(side Side, orderID uint64) bool {
	return ob.cancel(side, orderID, 0, false)
}

// CancelAt replays a recorded cancel, adopting its timestamp the way Process
// adopts a stamped Request.
func (ob *OrderBook) CancelAt(side Side, orderID uint64, ts int64) bool {
	return ob.cancel(side, orderID, ts, true)
}

func (ob *OrderBook) cancel(side Side, orderID uint64, ts int64, recorded bool) bool {
	if side != Bid && side != Ask {
		return false
	}
	s := ob.sideOf(side)
	if s.Order(orderID) == nil {
		return false
	}
	s.RemoveOrder(orderID)
	ob.advanceClock(ts, recorded)
	ob.logger.Debug().Uint64("order_id", orderID).Str("side", side.String()).Msg("order canceled")
	return true
}

// Modify changes a resting order. A price improvement — a higher bid or a
// lower ask — removes the order and resubmits it through the matching loop,
// where it may trade immediately under its existing id. Any other update is
// applied in place via UpdateQuantity, which re-queues to the tail only when
// the quantity grew. An unknown id is a benign no-op.
func (ob *OrderBook) Modify(orderID uint64, newPrice, newQty fpdecimal.Decimal) (*Done, error) {
	return ob.modify(orderID, newPrice, newQty, 0, false)
}

// ModifyAt replays a recorded modify, adopting its timestamp the way Process
// adopts a stamped Request.
func (ob *OrderBook) ModifyAt(orderID uint64, newPrice, newQty fpdecimal.Decimal, ts int64) (*Done, error) {
	return ob.modify(orderID, newPrice, newQty, ts, true)
}

func (ob *OrderBook) modify(orderID uint64, newPrice, newQty fpdecimal.Decimal, ts int64, recorded bool) (*Done, error) {
	if newQty.LessThanOrEqual(fpdecimal.Zero) {
		return nil, ErrInvalidQuantity
	}
	side, order := ob.findOrder(orderID)
	if order == nil {
		return &Done{Trades: make([]TradeRecord, 0)}, nil
	}

	price := ob.clipPrice(newPrice)
	improved := (side == Bid && price.GreaterThan(order.Price())) ||
		(side == Ask && price.LessThan(order.Price()))

	if improved {
		ob.sideOf(side).RemoveOrder(orderID)
		req, err := NewLimitRequest(side, newQty, price, order.TraderID())
		if err != nil {
			return nil, err
		}
		if recorded {
			req = req.WithTimestamp(ts)
		}
		return ob.process(req, orderID)
	}

	now := ob.advanceClock(ts, recorded)
	ob.sideOf(side).UpdateOrderQuantity(order, newQty, now)
	done := newDone(order)
	done.Resting = order
	done.Stored = true
	return done, nil
}

// Order returns the resting order with the given id on the given side
func (ob *OrderBook) Order(side Side, orderID uint64) *Order {
	if side != Bid && side != Ask {
		return nil
	}
	return ob.sideOf(side).Order(orderID)
}

// BestBid returns the highest resting bid price
func (ob *OrderBook) BestBid() (fpdecimal.Decimal, bool) {
	return ob.bids.BestPrice()
}

// BestAsk returns the lowest resting ask price
func (ob *OrderBook) BestAsk() (fpdecimal.Decimal, bool) {
	return ob.asks.BestPrice()
}

// WorstBid returns the lowest resting bid price
func (ob *OrderBook) WorstBid() (fpdecimal.Decimal, bool) {
	return ob.bids.WorstPrice()
}

// WorstAsk returns the highest resting ask price
func (ob *OrderBook) WorstAsk() (fpdecimal.Decimal, bool) {
	return ob.asks.WorstPrice()
}

// VolumeAtPrice returns the resting volume at one price level
func (ob *OrderBook) VolumeAtPrice(side Side, price fpdecimal.Decimal) fpdecimal.Decimal {
	if side != Bid && side != Ask {
		return fpdecimal.Zero
	}
	return ob.sideOf(side).VolumeAtPrice(ob.clipPrice(price))
}

// Bids returns the bid side of the book
func (ob *OrderBook) Bids() *OrderSide {
	return ob.bids
}

// Asks returns the ask side of the book
func (ob *OrderBook) Asks() *OrderSide {
	return ob.asks
}

// Tape returns the append-only trade tape, oldest first
func (ob *OrderBook) Tape() []TradeRecord {
	return ob.tape
}

// LastTimestamp returns the engine's logical clock
func (ob *OrderBook) LastTimestamp() int64 {
	return ob.lastTimestamp
}

// String implements fmt.Stringer interface
func (ob *OrderBook) String() string {
	builder := strings.Builder{}
	builder.WriteString("Ask:")
	builder.WriteString(ob.asks.String())
	builder.WriteString("\nBid:")
	builder.WriteString(ob.bids.String())
	builder.WriteString("\n")
	return builder.String()
}

// private methods

// match walks the opposite side best-first and drains crossing levels.
// The next-worse price is resolved before each drain so removing an emptied
// level never breaks the walk; a level left non-empty by self-trade skips is
// simply walked past.
func (ob *OrderBook) match(taker *Order, done *Done) fpdecimal.Decimal {
	opp := ob.sideOf(taker.Side().Opposite())
	remaining := taker.Quantity()

	price, ok := opp.BestPrice()
	for ok && remaining.GreaterThan(fpdecimal.Zero) && ob.crosses(taker, price) {
		nextPrice, _, nextErr := opp.NextWorse(price)
		q, exists := opp.Tree().Get(price)
		if !exists {
			panic(fmt.Sprintf("core: best price %s has no level", price))
		}
		remaining = ob.drainLevel(opp, q, taker, remaining, done)
		if nextErr != nil {
			break
		}
		price = nextPrice
	}
	return remaining
}

// drainLevel trades the incoming order against one level head-first. Resting
// orders of the same trader are skipped in a single forward pass — they keep
// their place and their time priority, and the scan never revisits them.
func (ob *OrderBook) drainLevel(opp *OrderSide, q *OrderQueue, taker *Order, remaining fpdecimal.Decimal, done *Done) fpdecimal.Decimal {
	resting := q.Head()
	for resting != nil && remaining.GreaterThan(fpdecimal.Zero) {
		next := resting.next
		if resting.TraderID() == taker.TraderID() {
			resting = next
			continue
		}

		matchQty := minDecimal(remaining, resting.Quantity())
		// trades carry the event's timestamp, which for a replayed event is
		// the adopted recorded stamp rather than the clock
		trade := TradeRecord{
			Timestamp: taker.Timestamp(),
			Price:     q.Price(),
			Qty:       matchQty,
			Maker:     TradeParty{TraderID: resting.TraderID(), Side: resting.Side(), OrderID: resting.ID()},
			Taker:     TradeParty{TraderID: taker.TraderID(), Side: taker.Side(), OrderID: taker.ID()},
		}

		remaining = remaining.Sub(matchQty)
		taker.fill(matchQty)
		if matchQty.Equal(resting.Quantity()) {
			opp.RemoveOrder(resting.ID())
		} else {
			opp.reduce(resting, matchQty)
		}

		ob.tape = append(ob.tape, trade)
		done.appendTrade(trade)
		ob.lastTradePrice = trade.Price

		resting = next
	}
	return remaining
}

func (ob *OrderBook) rest(order *Order, done *Done) {
	ob.sideOf(order.Side()).InsertOrder(order)
	done.Resting = order
	done.Stored = true
}

func (ob *OrderBook) crosses(taker *Order, oppPrice fpdecimal.Decimal) bool {
	if taker.IsMarketOrder() {
		return true
	}
	if taker.Side() == Bid {
		return taker.Price().GreaterThanOrEqual(oppPrice)
	}
	return taker.Price().LessThanOrEqual(oppPrice)
}

// clipPrice discretizes a price to the nearest tick. The float ratio only
// seeds the tick count; the neighboring multiples are then compared in exact
// fixed point, so the result cannot land on the wrong side of a tick
// boundary. A price exactly between two ticks rounds up.
func (ob *OrderBook) clipPrice(price fpdecimal.Decimal) fpdecimal.Decimal {
	n := int64(math.Round(price.Float64() / ob.tickSize.Float64()))
	best := ob.tickSize.Mul(fpdecimal.FromInt(n - 1))
	bestDiff := absDiff(price, best)
	for k := n; k <= n+1; k++ {
		c := ob.tickSize.Mul(fpdecimal.FromInt(k))
		if d := absDiff(price, c); d.LessThanOrEqual(bestDiff) {
			best, bestDiff = c, d
		}
	}
	return best
}

func absDiff(a, b fpdecimal.Decimal) fpdecimal.Decimal {
	if a.LessThan(b) {
		return b.Sub(a)
	}
	return a.Sub(b)
}

func (ob *OrderBook) sideOf(side Side) *OrderSide {
	if side == Bid {
		return ob.bids
	}
	return ob.asks
}

func (ob *OrderBook) findOrder(orderID uint64) (Side, *Order) {
	if o := ob.bids.Order(orderID); o != nil {
		return Bid, o
	}
	if o := ob.asks.Order(orderID); o != nil {
		return Ask, o
	}
	return Bid, nil
}

func (ob *OrderBook) publish(done *Done) {
	if ob.sender == nil {
		return
	}
	if err := ob.sender.SendDoneMessage(done.ToMessagingDoneMessage()); err != nil {
		ob.logger.Error().Err(err).Uint64("order_id", done.Order.ID()).Msg("failed to publish execution result")
	}
}

// minDecimal returns the minimum of two decimals
func minDecimal(a, b fpdecimal.Decimal) fpdecimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
