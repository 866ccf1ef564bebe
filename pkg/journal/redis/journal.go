// Package redis persists engine events to a Redis server. Records for one
// event are staged on a transaction pipeline and executed atomically on
// Commit.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/DrAshBooth/golob/pkg/core"
)

// Options represents configuration options for the Redis connection
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient creates a Redis client from the given options
func NewClient(opts *Options) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

type orderRecord struct {
	EventID   uint64 `json:"eventId"`
	OrderID   uint64 `json:"orderId"`
	Type      string `json:"type"`
	Side      string `json:"side"`
	Quantity  string `json:"quantity"`
	Price     string `json:"price"`
	TraderID  string `json:"traderId"`
	Timestamp int64  `json:"timestamp"`
}

type tradeRecord struct {
	EventID       uint64 `json:"eventId"`
	Timestamp     int64  `json:"timestamp"`
	Price         string `json:"price"`
	Qty           string `json:"qty"`
	MakerOrderID  uint64 `json:"makerOrderId"`
	MakerTraderID string `json:"makerTraderId"`
	TakerOrderID  uint64 `json:"takerOrderId"`
	TakerTraderID string `json:"takerTraderId"`
}

// Journal implements core.Journal backed by a Redis server. Keys are
// namespaced under the given prefix: <prefix>:order:<eventID> holds the
// accepted order, <prefix>:trades is an append-only list of executions.
type Journal struct {
	client  *redis.Client
	ctx     context.Context
	prefix  string
	pipe    redis.Pipeliner
	eventID uint64
	logger  *zap.Logger
}

// NewJournal creates a journal on an existing client
func NewJournal(client *redis.Client, prefix string, logger *zap.Logger) *Journal {
	return &Journal{
		client: client,
		ctx:    context.Background(),
		prefix: prefix,
		logger: logger,
	}
}

// Begin starts the transaction for one engine event. Any staged commands
// from an uncommitted previous event are discarded.
func (j *Journal) Begin(eventID uint64) {
	if j.pipe != nil {
		j.pipe.Discard()
	}
	j.pipe = j.client.TxPipeline()
	j.eventID = eventID
}

// RecordOrder stages the accepted order on the current transaction.
func (j *Journal) RecordOrder(o *core.Order) error {
	if j.pipe == nil {
		return fmt.Errorf("record order outside event %d: no open transaction", j.eventID)
	}
	rec := orderRecord{
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
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal order record: %w", err)
	}
	key := fmt.Sprintf("%s:order:%d", j.prefix, j.eventID)
	j.pipe.Set(j.ctx, key, data, 0)
	return nil
}

// RecordTrade stages one execution on the current transaction.
func (j *Journal) RecordTrade(t *core.TradeRecord) error {
	if j.pipe == nil {
		return fmt.Errorf("record trade outside event %d: no open transaction", j.eventID)
	}
	rec := tradeRecord{
		EventID:       j.eventID,
		Timestamp:     t.Timestamp,
		Price:         t.Price.String(),
		Qty:           t.Qty.String(),
		MakerOrderID:  t.Maker.OrderID,
		MakerTraderID: t.Maker.TraderID,
		TakerOrderID:  t.Taker.OrderID,
		TakerTraderID: t.Taker.TraderID,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal trade record: %w", err)
	}
	j.pipe.RPush(j.ctx, fmt.Sprintf("%s:trades", j.prefix), data)
	return nil
}

// Commit executes the staged transaction.
func (j *Journal) Commit() error {
	if j.pipe == nil {
		return nil
	}
	_, err := j.pipe.Exec(j.ctx)
	j.pipe = nil
	if err != nil {
		j.logger.Error("failed to commit journal event",
			zap.Uint64("eventID", j.eventID),
			zap.Error(err))
		return fmt.Errorf("failed to commit event %d: %w", j.eventID, err)
	}
	return nil
}

// Close discards any open transaction and closes the connection.
func (j *Journal) Close() error {
	if j.pipe != nil {
		j.pipe.Discard()
		j.pipe = nil
	}
	return j.client.Close()
}

// TradeCount returns the number of executions on the trade list
func (j *Journal) TradeCount() (int64, error) {
	return j.client.LLen(j.ctx, fmt.Sprintf("%s:trades", j.prefix)).Result()
}
