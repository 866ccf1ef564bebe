// Package pebble persists engine events to a local pebble store. Each
// processed request becomes one atomic batch: the accepted order plus every
// trade it produced, committed with a synced write.
package pebble

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/DrAshBooth/golob/pkg/core"
)

// OrderRecord is the stored form of an accepted order.
type OrderRecord struct {
	EventID   uint64 `json:"eventId"`
	OrderID   uint64 `json:"orderId"`
	Type      string `json:"type"`
	Side      string `json:"side"`
	Quantity  string `json:"quantity"`
	Price     string `json:"price"`
	TraderID  string `json:"traderId"`
	Timestamp int64  `json:"timestamp"`
}

// TradeEntry is the stored form of one execution.
type TradeEntry struct {
	EventID       uint64 `json:"eventId"`
	Seq           uint32 `json:"seq"`
	Timestamp     int64  `json:"timestamp"`
	Price         string `json:"price"`
	Qty           string `json:"qty"`
	MakerOrderID  uint64 `json:"makerOrderId"`
	MakerTraderID string `json:"makerTraderId"`
	TakerOrderID  uint64 `json:"takerOrderId"`
	TakerTraderID string `json:"takerTraderId"`
}

// Journal implements core.Journal on a pebble database.
type Journal struct {
	db      *pebble.DB
	batch   *pebble.Batch
	eventID uint64
	seq     uint32
}

// Open opens (or creates) the journal store at dir.
func Open(dir string) (*Journal, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal store: %w", err)
	}
	return &Journal{db: db}, nil
}

// Begin starts the batch for one engine event. Any uncommitted previous
// batch is discarded.
func (j *Journal) Begin(eventID uint64) {
	if j.batch != nil {
		_ = j.batch.Close()
	}
	j.batch = j.db.NewBatch()
	j.eventID = eventID
	j.seq = 0
}

// RecordOrder stages the accepted order in the current batch.
func (j *Journal) RecordOrder(o *core.Order) error {
	if j.batch == nil {
		return fmt.Errorf("record order outside event %d: no open batch", j.eventID)
	}
	rec := OrderRecord{
		EventID:   j.eventID,
		OrderID:   o.ID(),
		Type:      string(core.TypeLimit),
		Side:      o.Side().String(),
		Quantity:  o.Quantity().String(),
		Price:     o.Price().String(),
		TraderID:  o.TraderID(),
		Timestamp: o.Timestamp(),
	}
	if o.IsMarketOrder() {
		rec.Type = string(core.TypeMarket)
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode order record: %w", err)
	}
	return j.batch.Set(orderKey(j.eventID), val, nil)
}

// RecordTrade stages one execution in the current batch.
func (j *Journal) RecordTrade(t *core.TradeRecord) error {
	if j.batch == nil {
		return fmt.Errorf("record trade outside event %d: no open batch", j.eventID)
	}
	rec := TradeEntry{
		EventID:       j.eventID,
		Seq:           j.seq,
		Timestamp:     t.Timestamp,
		Price:         t.Price.String(),
		Qty:           t.Qty.String(),
		MakerOrderID:  t.Maker.OrderID,
		MakerTraderID: t.Maker.TraderID,
		TakerOrderID:  t.Taker.OrderID,
		TakerTraderID: t.Taker.TraderID,
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode trade record: %w", err)
	}
	key := tradeKey(j.eventID, j.seq)
	j.seq++
	return j.batch.Set(key, val, nil)
}

// Commit durably writes the current event batch.
func (j *Journal) Commit() error {
	if j.batch == nil {
		return nil
	}
	err := j.batch.Commit(pebble.Sync)
	cerr := j.batch.Close()
	j.batch = nil
	if err != nil {
		return fmt.Errorf("failed to commit event %d: %w", j.eventID, err)
	}
	return cerr
}

// Close discards any open batch and closes the store.
func (j *Journal) Close() error {
	if j.batch != nil {
		_ = j.batch.Close()
		j.batch = nil
	}
	return j.db.Close()
}

// ScanOrders iterates all committed order records in event order.
func (j *Journal) ScanOrders(fn func(OrderRecord) error) error {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("order/"),
		UpperBound: []byte("order/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var rec OrderRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return fmt.Errorf("corrupt order record at %q: %w", iter.Key(), err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// ScanTrades iterates all committed trade records in event, then match, order.
func (j *Journal) ScanTrades(fn func(TradeEntry) error) error {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("trade/"),
		UpperBound: []byte("trade/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var rec TradeEntry
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return fmt.Errorf("corrupt trade record at %q: %w", iter.Key(), err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

func orderKey(eventID uint64) []byte {
	return []byte(fmt.Sprintf("order/%020d", eventID))
}

func tradeKey(eventID uint64, seq uint32) []byte {
	return []byte(fmt.Sprintf("trade/%020d/%06d", eventID, seq))
}
