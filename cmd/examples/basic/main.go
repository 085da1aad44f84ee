package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/erain9/lobsim/pkg/core"
	"github.com/fatih/color"
	"github.com/nikolaydubina/fpdecimal"
)

var (
	cyan  = color.New(color.FgCyan).SprintfFunc()
	red   = color.New(color.FgRed).SprintfFunc()
	green = color.New(color.FgGreen).SprintfFunc()
	bold  = color.New(color.Bold).SprintfFunc()
)

// A walk through the book's matching rules
func main() {
	ctx := context.Background()

	fmt.Println(bold("===== LIMIT ORDER BOOK WALKTHROUGH ====="))
	fmt.Println()

	// Step 1: a crossing limit order trades at the resting price and the
	// remainder rests
	step("STEP 1: BUY 12.0 x 25 into a SELL 10.0 x 20")
	book := core.NewOrderBook()
	must(book.PlaceLimitOrder(ctx, limit(1, 100, core.Sell, "10", 20, 1)))
	must(book.PlaceLimitOrder(ctx, limit(2, 200, core.Buy, "12", 25, 2)))
	printTrades(book.DrainTrades())
	printLogs(book.DrainOrderLogs())
	printDepth(book)

	// Step 2: a market order walks the book and reports its average price
	step("STEP 2: BUY MARKET x 30 against 10.0 x 20 and 13.25 x 15")
	book = core.NewOrderBook()
	must(book.PlaceLimitOrder(ctx, limit(1, 100, core.Sell, "10", 20, 1)))
	must(book.PlaceLimitOrder(ctx, limit(2, 101, core.Sell, "13.25", 15, 2)))
	filled, avg := book.MarketImpact(core.Buy, 30)
	fmt.Printf("Preview: would fill %d at average %s\n", filled, avg)
	must(book.PlaceMarketOrder(ctx, market(3, 200, core.Buy, 30, 3)))
	printTrades(book.DrainTrades())
	printLogs(book.DrainOrderLogs())
	printDepth(book)

	// Step 3: no liquidity means an UNFILLED log and no trade
	step("STEP 3: BUY MARKET x 40 into an empty book")
	book = core.NewOrderBook()
	must(book.PlaceMarketOrder(ctx, market(1, 200, core.Buy, 40, 1)))
	printTrades(book.DrainTrades())
	printLogs(book.DrainOrderLogs())

	// Step 4: same price fills in time order, and modifying loses priority
	step("STEP 4: FIFO at one price, then modify order 1")
	book = core.NewOrderBook()
	must(book.PlaceLimitOrder(ctx, limit(1, 100, core.Sell, "10", 5, 1)))
	must(book.PlaceLimitOrder(ctx, limit(2, 101, core.Sell, "10", 5, 2)))
	must(book.AdvanceTime(3))
	if _, err := book.ModifyOrder(ctx, 1, dec("10"), 5); err != nil {
		fail(err)
	}
	must(book.PlaceLimitOrder(ctx, limit(3, 200, core.Buy, "10", 5, 3)))
	printTrades(book.DrainTrades())
	fmt.Println(book)

	// Step 5: cancel is idempotent
	step("STEP 5: cancel order 1 twice")
	fmt.Printf("first cancel: %v, second cancel: %v\n", book.CancelOrder(ctx, 1), book.CancelOrder(ctx, 1))
	printLogs(book.DrainOrderLogs())
	printDepth(book)
}

func step(title string) {
	fmt.Println(cyan(title))
	fmt.Println(cyan("------------------------------------------------------------"))
}

func dec(s string) fpdecimal.Decimal {
	d, err := fpdecimal.FromString(s)
	if err != nil {
		fail(err)
	}
	return d
}

func limit(id core.OrderID, trader core.TraderID, side core.Side, price string, qty uint64, ts core.Timestamp) core.Order {
	o, err := core.NewLimitOrder(id, trader, side, dec(price), qty, ts)
	if err != nil {
		fail(err)
	}
	return o
}

func market(id core.OrderID, trader core.TraderID, side core.Side, qty uint64, ts core.Timestamp) core.Order {
	o, err := core.NewMarketOrder(id, trader, side, qty, ts)
	if err != nil {
		fail(err)
	}
	return o
}

func must(err error) {
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, red("error: %v", err))
	os.Exit(1)
}

func printTrades(trades []core.Trade) {
	if len(trades) == 0 {
		fmt.Println("No trades")
		return
	}
	for _, t := range trades {
		fmt.Println(green("%s", t))
	}
}

func printLogs(logs []core.OrderLog) {
	for _, l := range logs {
		fmt.Println(l)
	}
}

func printDepth(book *core.OrderBook) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)

	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", cyan("Price"), cyan("Quantity"), cyan("Orders"), cyan("Side"))
	asks := book.AskLevels(0)
	for i := len(asks) - 1; i >= 0; i-- {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t\n", asks[i].Price, asks[i].TotalQuantity, asks[i].OrderCount, red("ASK"))
	}
	for _, level := range book.BidLevels(0) {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t\n", level.Price, level.TotalQuantity, level.OrderCount, green("BID"))
	}
	w.Flush()

	l1 := book.Level1()
	fmt.Printf("best bid: %s (%v)  best ask: %s (%v)  spread: %s\n\n",
		l1.BidPrice, l1.HasBid, l1.AskPrice, l1.HasAsk, l1.Spread)
}
