package core

import (
	"encoding/json"

	"github.com/nikolaydubina/fpdecimal"

	"github.com/DrAshBooth/golob/pkg/messaging"
)

// TradeParty identifies one side of an execution
type TradeParty struct {
	TraderID string
	Side     Side
	OrderID  uint64
}

// TradeRecord is one entry on the append-only trade tape. Maker is the
// resting order, Taker the incoming request that crossed it.
type TradeRecord struct {
	Timestamp int64
	Price     fpdecimal.Decimal
	Qty       fpdecimal.Decimal
	Maker     TradeParty
	Taker     TradeParty
}

// MarshalJSON implements Marshaler interface
func (t *TradeRecord) MarshalJSON() ([]byte, error) {
	type partyJSON struct {
		TraderID string `json:"traderId"`
		Side     string `json:"side"`
		OrderID  uint64 `json:"orderId"`
	}
	return json.Marshal(struct {
		Timestamp int64     `json:"timestamp"`
		Price     string    `json:"price"`
		Qty       string    `json:"qty"`
		Maker     partyJSON `json:"party1"`
		Taker     partyJSON `json:"party2"`
	}{
		Timestamp: t.Timestamp,
		Price:     t.Price.String(),
		Qty:       t.Qty.String(),
		Maker:     partyJSON{t.Maker.TraderID, t.Maker.Side.String(), t.Maker.OrderID},
		Taker:     partyJSON{t.Taker.TraderID, t.Taker.Side.String(), t.Taker.OrderID},
	})
}

// Done contains the outcome of one processed request
type Done struct {
	// Initial order processed
	Order *Order
	// Original quantity of the request
	Quantity fpdecimal.Decimal
	// Trades executed, in match order
	Trades []TradeRecord
	// Resting order left in the book, nil if nothing rested
	Resting *Order
	// Remaining quantity neither traded nor rested
	Left fpdecimal.Decimal
	// Total quantity traded
	Processed fpdecimal.Decimal
	// Whether any quantity was stored in the book
	Stored bool
}

func newDone(order *Order) *Done {
	return &Done{
		Order:    order,
		Quantity: order.Quantity(),
		Trades:   make([]TradeRecord, 0),
		Left:     fpdecimal.Zero,
	}
}

func (d *Done) appendTrade(t TradeRecord) {
	d.Trades = append(d.Trades, t)
	d.Processed = d.Processed.Add(t.Qty)
}

// ToMessagingDoneMessage converts the Done object to a messaging.DoneMessage.
func (d *Done) ToMessagingDoneMessage() *messaging.DoneMessage {
	if d == nil || d.Order == nil {
		return nil
	}
	trades := make([]messaging.Trade, len(d.Trades))
	for i, t := range d.Trades {
		trades[i] = messaging.Trade{
			Timestamp:     t.Timestamp,
			Price:         t.Price.String(),
			Quantity:      t.Qty.String(),
			MakerOrderID:  t.Maker.OrderID,
			MakerTraderID: t.Maker.TraderID,
			TakerOrderID:  t.Taker.OrderID,
			TakerTraderID: t.Taker.TraderID,
		}
	}
	return &messaging.DoneMessage{
		OrderID:      d.Order.ID(),
		TraderID:     d.Order.TraderID(),
		Side:         d.Order.Side().String(),
		ExecutedQty:  d.Processed.String(),
		RemainingQty: d.Left.String(),
		Stored:       d.Stored,
		Trades:       trades,
	}
}

// MarshalJSON implements json.Marshaler interface for Done
func (d *Done) MarshalJSON() ([]byte, error) {
	trades := make([]*TradeRecord, len(d.Trades))
	for i := range d.Trades {
		trades[i] = &d.Trades[i]
	}
	return json.Marshal(struct {
		Order     *Order         `json:"order"`
		Trades    []*TradeRecord `json:"trades"`
		Resting   *Order         `json:"resting,omitempty"`
		Left      string         `json:"left"`
		Processed string         `json:"processed"`
		Stored    bool           `json:"stored"`
	}{
		Order:     d.Order,
		Trades:    trades,
		Resting:   d.Resting,
		Left:      d.Left.String(),
		Processed: d.Processed.String(),
		Stored:    d.Stored,
	})
}
