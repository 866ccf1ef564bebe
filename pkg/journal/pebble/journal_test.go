package pebble

import (
	"testing"

	"github.com/nikolaydubina/fpdecimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrAshBooth/golob/pkg/core"
)

func TestJournalPersistsEvents(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir)
	require.NoError(t, err)

	book := core.NewOrderBook(core.Options{
		TickSize: fpdecimal.FromInt(1),
		Journal:  j,
	})

	req, err := core.NewLimitRequest(core.Ask, fpdecimal.FromInt(5), fpdecimal.FromInt(100), "maker")
	require.NoError(t, err)
	_, err = book.Process(req)
	require.NoError(t, err)

	req, err = core.NewLimitRequest(core.Bid, fpdecimal.FromInt(3), fpdecimal.FromInt(100), "taker")
	require.NoError(t, err)
	done, err := book.Process(req)
	require.NoError(t, err)
	require.Len(t, done.Trades, 1)

	require.NoError(t, j.Close())

	// reopen and read back what was committed
	j, err = Open(dir)
	require.NoError(t, err)
	defer j.Close()

	var orders []OrderRecord
	require.NoError(t, j.ScanOrders(func(rec OrderRecord) error {
		orders = append(orders, rec)
		return nil
	}))
	require.Len(t, orders, 2)
	assert.Equal(t, uint64(1), orders[0].EventID)
	assert.Equal(t, "ASK", orders[0].Side)
	assert.Equal(t, "maker", orders[0].TraderID)
	assert.Equal(t, uint64(2), orders[1].EventID)
	assert.Equal(t, "LIMIT", orders[1].Type)

	var trades []TradeEntry
	require.NoError(t, j.ScanTrades(func(rec TradeEntry) error {
		trades = append(trades, rec)
		return nil
	}))
	require.Len(t, trades, 1)
	assert.Equal(t, uint64(2), trades[0].EventID)
	assert.Equal(t, uint64(1), trades[0].MakerOrderID)
	assert.Equal(t, uint64(2), trades[0].TakerOrderID)
	assert.Equal(t, "maker", trades[0].MakerTraderID)
	assert.Equal(t, "taker", trades[0].TakerTraderID)
}

func TestJournalBeginDiscardsStaleBatch(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir)
	require.NoError(t, err)
	defer j.Close()

	book := core.NewOrderBook(core.Options{
		TickSize: fpdecimal.FromInt(1),
		Journal:  j,
	})

	req, err := core.NewLimitRequest(core.Bid, fpdecimal.FromInt(1), fpdecimal.FromInt(99), "t1")
	require.NoError(t, err)
	_, err = book.Process(req)
	require.NoError(t, err)

	// a Begin with no Commit leaves nothing behind once the next event runs
	j.Begin(999)
	j.Begin(1000)
	require.NoError(t, j.Commit())

	count := 0
	require.NoError(t, j.ScanOrders(func(OrderRecord) error {
		count++
		return nil
	}))
	assert.Equal(t, 1, count)
}

func TestJournalRecordOutsideEvent(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir)
	require.NoError(t, err)
	defer j.Close()

	tr := &core.TradeRecord{}
	assert.Error(t, j.RecordTrade(tr))
	assert.NoError(t, j.Commit())
}
