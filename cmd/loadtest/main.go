// Command loadtest drives a single in-process order book with randomized
// limit and market flow and reports request latency percentiles.
//
// Parameters come from GOLOB_* environment variables, e.g.
//
//	GOLOB_ORDERS=500000 GOLOB_WORKERS=4 GOLOB_RATE=100000 loadtest
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/DrAshBooth/golob/pkg/core"
)

type params struct {
	Orders      int
	Workers     int
	Rate        int
	PriceLevels int
	MidPrice    float64
	TickSize    float64
	MarketRatio float64
}

func loadParams() params {
	v := viper.New()
	v.SetEnvPrefix("GOLOB")
	v.AutomaticEnv()

	v.SetDefault("orders", 100000)
	v.SetDefault("workers", 8)
	v.SetDefault("rate", 50000)
	v.SetDefault("price_levels", 50)
	v.SetDefault("mid_price", 100.0)
	v.SetDefault("tick_size", 0.01)
	v.SetDefault("market_ratio", 0.1)

	return params{
		Orders:      v.GetInt("orders"),
		Workers:     v.GetInt("workers"),
		Rate:        v.GetInt("rate"),
		PriceLevels: v.GetInt("price_levels"),
		MidPrice:    v.GetFloat64("mid_price"),
		TickSize:    v.GetFloat64("tick_size"),
		MarketRatio: v.GetFloat64("market_ratio"),
	}
}

func main() {
	p := loadParams()
	if p.Workers < 1 {
		p.Workers = 1
	}

	book := core.NewOrderBook(core.Options{
		TickSize: fpdecimal.FromFloat(p.TickSize),
	})
	var bookMu sync.Mutex

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		log.Println("Received interrupt signal, stopping...")
		cancel()
	}()

	limiter := rate.NewLimiter(rate.Limit(p.Rate), p.Rate)
	hist := hdrhistogram.New(1, int64(10*time.Second), 3)
	var histMu sync.Mutex

	perWorker := p.Orders / p.Workers
	log.Printf("Starting %d workers, %d orders per worker, %d orders/s limit...",
		p.Workers, perWorker, p.Rate)

	var wg sync.WaitGroup
	var errCount int64
	var errMu sync.Mutex

	start := time.Now()
	for i := 0; i < p.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
			for j := 0; j < perWorker; j++ {
				if err := limiter.Wait(ctx); err != nil {
					return
				}

				req, err := randomRequest(r, p, workerID)
				if err != nil {
					errMu.Lock()
					errCount++
					errMu.Unlock()
					continue
				}

				t0 := time.Now()
				bookMu.Lock()
				_, perr := book.Process(req)
				bookMu.Unlock()
				elapsed := time.Since(t0)

				histMu.Lock()
				_ = hist.RecordValue(int64(elapsed))
				histMu.Unlock()

				if perr != nil {
					errMu.Lock()
					errCount++
					errMu.Unlock()
				}
			}
		}(i)
	}
	wg.Wait()
	duration := time.Since(start)

	printReport(book, hist, duration, errCount)
}

func randomRequest(r *rand.Rand, p params, workerID int) (core.Request, error) {
	trader := fmt.Sprintf("trader-%d", workerID)
	qty := fpdecimal.FromInt(1 + r.Intn(10))

	side := core.Bid
	if r.Float64() < 0.5 {
		side = core.Ask
	}

	if r.Float64() < p.MarketRatio {
		return core.NewMarketRequest(side, qty, trader)
	}

	offset := float64(r.Intn(p.PriceLevels)) * p.TickSize
	price := p.MidPrice - offset
	if side == core.Ask {
		price = p.MidPrice + offset
	}
	return core.NewLimitRequest(side, qty, fpdecimal.FromFloat(price), trader)
}

func printReport(book *core.OrderBook, hist *hdrhistogram.Histogram, duration time.Duration, errCount int64) {
	total := hist.TotalCount()
	log.Printf("Load test completed in %v", duration)
	log.Printf("Orders processed: %d (%.0f/s)", total, float64(total)/duration.Seconds())
	log.Printf("Errors: %d", errCount)
	log.Printf("Trades on tape: %d", len(book.Tape()))
	log.Printf("Resting orders: %d bids, %d asks", book.Bids().Len(), book.Asks().Len())
	log.Printf("Latency p50: %v", time.Duration(hist.ValueAtQuantile(50)))
	log.Printf("Latency p90: %v", time.Duration(hist.ValueAtQuantile(90)))
	log.Printf("Latency p99: %v", time.Duration(hist.ValueAtQuantile(99)))
	log.Printf("Latency max: %v", time.Duration(hist.Max()))
}
