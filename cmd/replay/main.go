// Command replay feeds a recorded event stream through the matching engine
// and prints a summary of the resulting book state and trade tape.
//
// The input is a CSV file, one event per line:
//
//	limit,<side>,<quantity>,<price>,<trader>,<timestamp>
//	market,<side>,<quantity>,,<trader>,<timestamp>
//	cancel,<side>,,,,<timestamp>,<orderID>
//	modify,,<quantity>,<price>,,<timestamp>,<orderID>
//
// Recorded timestamps are adopted verbatim so a replay reproduces the
// original tape exactly.
package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/nikolaydubina/fpdecimal"
	"go.uber.org/zap"

	"github.com/DrAshBooth/golob/config"
	"github.com/DrAshBooth/golob/pkg/core"
	pebblejournal "github.com/DrAshBooth/golob/pkg/journal/pebble"
	redisjournal "github.com/DrAshBooth/golob/pkg/journal/redis"
	"github.com/DrAshBooth/golob/pkg/logging"
	"github.com/DrAshBooth/golob/pkg/messaging/kafka"
)

var (
	inputFile = flag.String("input", "", "Path to the event CSV file")
	publish   = flag.Bool("publish", false, "Publish execution results to Kafka")
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *inputFile == "" {
		fmt.Fprintln(os.Stderr, "usage: replay -input <events.csv>")
		os.Exit(1)
	}

	logging.Setup(logging.Config{
		Level:  cfg.Engine.LogLevel,
		Pretty: cfg.Engine.LogFormat == "pretty",
	})
	logger := logging.Component("replay")

	opts := core.Options{
		TickSize: fpdecimal.FromFloat(cfg.Engine.TickSize),
		Logger:   logger,
	}
	if cfg.Engine.ResidualPolicy == "rest" {
		opts.Residual = core.RestResidual
	}

	switch cfg.Journal.Backend {
	case "pebble":
		j, err := pebblejournal.Open(cfg.Journal.Dir)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open journal")
		}
		defer j.Close()
		opts.Journal = j
	case "redis":
		client := redisjournal.NewClient(&redisjournal.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		zl, _ := zap.NewProduction()
		j := redisjournal.NewJournal(client, "golob", zl)
		defer j.Close()
		opts.Journal = j
	}

	if *publish {
		sender, err := kafka.NewSender([]string{cfg.Kafka.BrokerAddr}, cfg.Kafka.Topic)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect Kafka producer")
		}
		defer sender.Close()
		opts.Sender = sender
	}

	book := core.NewOrderBook(opts)

	f, err := os.Open(*inputFile)
	if err != nil {
		logger.Fatal().Err(err).Str("file", *inputFile).Msg("failed to open input")
	}
	defer f.Close()

	stats, err := replay(book, f)
	if err != nil {
		logger.Fatal().Err(err).Msg("replay failed")
	}

	printSummary(book, stats)
}

type replayStats struct {
	events    int
	trades    int
	traded    fpdecimal.Decimal
	cancels   int
	modifies  int
	rejected  int
	discarded fpdecimal.Decimal
}

func replay(book *core.OrderBook, src io.Reader) (*replayStats, error) {
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	stats := &replayStats{}
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+1, err)
		}
		line++
		if len(rec) == 0 || strings.HasPrefix(rec[0], "#") {
			continue
		}
		if err := applyEvent(book, rec, stats); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		stats.events++
	}
	return stats, nil
}

func applyEvent(book *core.OrderBook, rec []string, stats *replayStats) error {
	action := strings.ToLower(rec[0])
	switch action {
	case "limit", "market":
		if len(rec) < 6 {
			return fmt.Errorf("%s event needs 6 fields, got %d", action, len(rec))
		}
		side, err := parseSide(rec[1])
		if err != nil {
			return err
		}
		qty, err := fpdecimal.FromString(rec[2])
		if err != nil {
			return fmt.Errorf("bad quantity %q: %w", rec[2], err)
		}
		ts, err := strconv.ParseInt(rec[5], 10, 64)
		if err != nil {
			return fmt.Errorf("bad timestamp %q: %w", rec[5], err)
		}

		var (
			req    core.Request
			reqErr error
		)
		if action == "limit" {
			price, perr := fpdecimal.FromString(rec[3])
			if perr != nil {
				return fmt.Errorf("bad price %q: %w", rec[3], perr)
			}
			req, reqErr = core.NewLimitRequest(side, qty, price, rec[4])
		} else {
			req, reqErr = core.NewMarketRequest(side, qty, rec[4])
		}
		if reqErr != nil {
			stats.rejected++
			return nil
		}

		done, err := book.Process(req.WithTimestamp(ts))
		if err != nil {
			// a journal failure means durable and in-memory state have
			// diverged; replaying further events would compound it
			if errors.Is(err, core.ErrJournalFailure) {
				return err
			}
			stats.rejected++
			return nil
		}
		stats.trades += len(done.Trades)
		stats.traded = stats.traded.Add(done.Processed)
		stats.discarded = stats.discarded.Add(done.Left)

	case "cancel":
		if len(rec) < 7 {
			return fmt.Errorf("cancel event needs 7 fields, got %d", len(rec))
		}
		side, err := parseSide(rec[1])
		if err != nil {
			return err
		}
		ts, err := strconv.ParseInt(rec[5], 10, 64)
		if err != nil {
			return fmt.Errorf("bad timestamp %q: %w", rec[5], err)
		}
		id, err := strconv.ParseUint(rec[6], 10, 64)
		if err != nil {
			return fmt.Errorf("bad order id %q: %w", rec[6], err)
		}
		if book.CancelAt(side, id, ts) {
			stats.cancels++
		}

	case "modify":
		if len(rec) < 7 {
			return fmt.Errorf("modify event needs 7 fields, got %d", len(rec))
		}
		qty, err := fpdecimal.FromString(rec[2])
		if err != nil {
			return fmt.Errorf("bad quantity %q: %w", rec[2], err)
		}
		price, err := fpdecimal.FromString(rec[3])
		if err != nil {
			return fmt.Errorf("bad price %q: %w", rec[3], err)
		}
		ts, err := strconv.ParseInt(rec[5], 10, 64)
		if err != nil {
			return fmt.Errorf("bad timestamp %q: %w", rec[5], err)
		}
		id, err := strconv.ParseUint(rec[6], 10, 64)
		if err != nil {
			return fmt.Errorf("bad order id %q: %w", rec[6], err)
		}
		done, err := book.ModifyAt(id, price, qty, ts)
		if err != nil {
			if errors.Is(err, core.ErrJournalFailure) {
				return err
			}
			stats.rejected++
			return nil
		}
		stats.modifies++
		stats.trades += len(done.Trades)
		stats.traded = stats.traded.Add(done.Processed)

	default:
		return fmt.Errorf("unknown event action %q", action)
	}
	return nil
}

func parseSide(s string) (core.Side, error) {
	switch strings.ToLower(s) {
	case "bid", "buy":
		return core.Bid, nil
	case "ask", "sell":
		return core.Ask, nil
	}
	return core.Ask, fmt.Errorf("unknown side %q", s)
}

func printSummary(book *core.OrderBook, stats *replayStats) {
	header := color.New(color.FgCyan, color.Bold)
	good := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)

	header.Println("Replay summary")
	fmt.Printf("  events applied:   %d\n", stats.events)
	fmt.Printf("  trades executed:  %d\n", stats.trades)
	fmt.Printf("  quantity traded:  %s\n", stats.traded.String())
	fmt.Printf("  cancels:          %d\n", stats.cancels)
	fmt.Printf("  modifies:         %d\n", stats.modifies)
	if stats.rejected > 0 {
		warn.Printf("  rejected events:  %d\n", stats.rejected)
	}
	if !stats.discarded.Equal(fpdecimal.Zero) {
		warn.Printf("  quantity unfilled: %s\n", stats.discarded.String())
	}

	header.Println("Book state")
	fmt.Printf("  resting bids: %d (volume %s)\n", book.Bids().Len(), book.Bids().Volume().String())
	fmt.Printf("  resting asks: %d (volume %s)\n", book.Asks().Len(), book.Asks().Volume().String())
	if best, ok := book.BestBid(); ok {
		good.Printf("  best bid: %s\n", best.String())
	}
	if best, ok := book.BestAsk(); ok {
		good.Printf("  best ask: %s\n", best.String())
	}
}
