package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"golang.org/x/time/rate"

	"github.com/erain9/lobsim/pkg/core"
	"github.com/erain9/lobsim/pkg/simulator"
	"github.com/nikolaydubina/fpdecimal"
)

// latencies are recorded in nanoseconds, 1ns to 10s, 3 significant figures
const (
	minLatency = 1
	maxLatency = int64(10 * time.Second)
	sigFigs    = 3
)

type options struct {
	workers         int
	ordersPerWorker int
	rps             int
	checkInvariants bool
}

type workerResult struct {
	place   *hdrhistogram.Histogram
	market  *hdrhistogram.Histogram
	cancel  *hdrhistogram.Histogram
	errors  int
	lastErr error
}

func main() {
	var opts options
	flag.IntVar(&opts.workers, "workers", 8, "Concurrent order generators")
	flag.IntVar(&opts.ordersPerWorker, "orders", 10000, "Operations per worker")
	flag.IntVar(&opts.rps, "rps", 0, "Operations per second across all workers (0 = unlimited)")
	flag.BoolVar(&opts.checkInvariants, "check-invariants", false, "Verify the book after every mutation")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		log.Println("Received interrupt signal, cleaning up...")
		cancel()
	}()

	sim := simulator.New(simulator.Config{Symbol: "LOAD", SkipInvariantChecks: !opts.checkInvariants})

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.rps), opts.workers)
	}

	var (
		wg      sync.WaitGroup
		nextID  atomic.Uint64
		results = make([]*workerResult, opts.workers)
	)

	start := time.Now()
	log.Printf("Starting %d workers, %d operations per worker...", opts.workers, opts.ordersPerWorker)

	for i := 0; i < opts.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			results[workerID] = runWorker(ctx, sim, limiter, &nextID, workerID, opts.ordersPerWorker)
		}(i)
	}

	// Wait for all workers to finish
	wg.Wait()
	duration := time.Since(start)

	total := &workerResult{
		place:  newHistogram(),
		market: newHistogram(),
		cancel: newHistogram(),
	}
	for _, r := range results {
		total.place.Merge(r.place)
		total.market.Merge(r.market)
		total.cancel.Merge(r.cancel)
		total.errors += r.errors
		if r.lastErr != nil {
			total.lastErr = r.lastErr
		}
	}

	ops := total.place.TotalCount() + total.market.TotalCount() + total.cancel.TotalCount()

	// Print results
	log.Printf("Load test completed in %v", duration)
	log.Printf("Operations: %d (%.0f ops/s)", ops, float64(ops)/duration.Seconds())
	printHistogram("limit", total.place)
	printHistogram("market", total.market)
	printHistogram("cancel", total.cancel)
	log.Printf("Trades executed: %d", len(sim.Trades()))

	l1 := sim.Level1()
	log.Printf("Final book: bid %s x %d, ask %s x %d", l1.BidPrice, l1.BidQuantity, l1.AskPrice, l1.AskQuantity)

	var invariantErr error
	sim.Book(func(ob *core.OrderBook) {
		invariantErr = ob.CheckInvariants()
	})
	if invariantErr != nil {
		log.Printf("Book inconsistent after load: %v", invariantErr)
		os.Exit(1)
	}

	log.Printf("Errors encountered: %d", total.errors)
	if total.errors > 0 {
		log.Printf("Last error: %v", total.lastErr)
		os.Exit(1)
	}
}

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(minLatency, maxLatency, sigFigs)
}

// runWorker sends a mix of 70% limit orders around 100, 20% market orders
// and 10% cancels of its own earlier orders
func runWorker(ctx context.Context, sim *simulator.Simulator, limiter *rate.Limiter, nextID *atomic.Uint64, workerID, n int) *workerResult {
	r := rand.New(rand.NewPCG(uint64(workerID), uint64(time.Now().UnixNano())))
	res := &workerResult{
		place:  newHistogram(),
		market: newHistogram(),
		cancel: newHistogram(),
	}
	trader := core.TraderID(workerID + 1)
	var mine []core.OrderID

	for j := 0; j < n; j++ {
		if err := limiter.Wait(ctx); err != nil {
			res.errors++
			res.lastErr = fmt.Errorf("rate limiter error: %v", err)
			return res
		}

		side := core.Buy
		if r.Float64() < 0.5 {
			side = core.Sell
		}
		id := core.OrderID(nextID.Add(1))
		roll := r.Float64()

		var (
			err   error
			begin = time.Now()
			hist  *hdrhistogram.Histogram
		)
		switch {
		case roll < 0.1 && len(mine) > 0:
			k := r.IntN(len(mine))
			victim := mine[k]
			mine[k] = mine[len(mine)-1]
			mine = mine[:len(mine)-1]
			sim.CancelOrder(ctx, victim)
			hist = res.cancel
		case roll < 0.3:
			err = withBook(sim, func(ob *core.OrderBook) error {
				return ob.PlaceMarketOrder(ctx, core.Order{
					ID: id, TraderID: trader, Side: side, Type: core.TypeMarket, Quantity: 1 + r.Uint64N(10),
				})
			})
			hist = res.market
		default:
			// ticks of 0.05 within 2.5 of 100
			price := fpdecimal.FromInt(int64(9950 + r.IntN(101)*5)).Div(fpdecimal.FromInt(100))
			err = withBook(sim, func(ob *core.OrderBook) error {
				return ob.PlaceLimitOrder(ctx, core.Order{
					ID: id, TraderID: trader, Side: side, Type: core.TypeLimit, Price: price, Quantity: 1 + r.Uint64N(10),
				})
			})
			mine = append(mine, id)
			hist = res.place
		}

		if err := hist.RecordValue(time.Since(begin).Nanoseconds()); err != nil {
			res.lastErr = err
		}
		if err != nil {
			res.errors++
			res.lastErr = fmt.Errorf("order %d: %w", id, err)
		}
	}
	return res
}

func withBook(sim *simulator.Simulator, fn func(*core.OrderBook) error) error {
	var err error
	sim.Book(func(ob *core.OrderBook) {
		err = fn(ob)
	})
	return err
}

func printHistogram(name string, h *hdrhistogram.Histogram) {
	if h.TotalCount() == 0 {
		return
	}
	log.Printf("%-6s n=%-8d p50=%-10v p99=%-10v p99.9=%-10v max=%v",
		name,
		h.TotalCount(),
		time.Duration(h.ValueAtQuantile(50)),
		time.Duration(h.ValueAtQuantile(99)),
		time.Duration(h.ValueAtQuantile(99.9)),
		time.Duration(h.Max()),
	)
}
