package core

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitOrderCrossesAndRests(t *testing.T) {
	ob := NewOrderBook()

	placeLimit(t, ob, 1, 10, Sell, "10", 20)
	placeLimit(t, ob, 2, 20, Buy, "12", 25)

	trades := ob.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, TradeID(1), trades[0].TradeID)
	assert.Equal(t, dec("10"), trades[0].Price)
	assert.Equal(t, uint64(20), trades[0].Quantity)
	assert.Equal(t, OrderID(2), trades[0].BuyOrderID)
	assert.Equal(t, OrderID(1), trades[0].SellOrderID)
	assert.Equal(t, TraderID(20), trades[0].BuyerID)
	assert.Equal(t, TraderID(10), trades[0].SellerID)
	assert.Equal(t, Buy, trades[0].AggressorSide)

	bid, ok := ob.BestBid()
	require.True(t, ok)
	assert.Equal(t, dec("12"), bid)
	_, ok = ob.BestAsk()
	assert.False(t, ok)
	assert.Equal(t, uint64(5), ob.DepthAtPrice(dec("12"), Buy))

	logs := ob.OrderLogs()
	require.Len(t, logs, 4)
	assert.Equal(t, StatusPlaced, logs[0].Status)
	assert.Equal(t, detailLimitSellPlaced, logs[0].Details)

	assert.Equal(t, OrderID(2), logs[1].OrderID)
	assert.Equal(t, StatusPartiallyFilled, logs[1].Status)
	assert.Equal(t, uint64(20), logs[1].Quantity)
	assert.Equal(t, dec("10"), logs[1].Price)

	assert.Equal(t, OrderID(1), logs[2].OrderID)
	assert.Equal(t, StatusFilled, logs[2].Status)

	assert.Equal(t, StatusPlaced, logs[3].Status)
	assert.Equal(t, uint64(5), logs[3].Quantity)
	assert.Equal(t, dec("12"), logs[3].Price)
	assert.Equal(t, detailLimitBuyPlaced, logs[3].Details)

	_, ok = ob.Order(1)
	assert.False(t, ok)
	resting, ok := ob.Order(2)
	require.True(t, ok)
	assert.Equal(t, uint64(5), resting.Quantity)
}

func TestMarketOrderSweepAveragePrice(t *testing.T) {
	ob := NewOrderBook()

	placeLimit(t, ob, 1, 10, Sell, "10", 20)
	placeLimit(t, ob, 2, 11, Sell, "13.25", 15)
	placeMarket(t, ob, 3, 30, Buy, 30)

	trades := ob.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, dec("10"), trades[0].Price)
	assert.Equal(t, uint64(20), trades[0].Quantity)
	assert.Equal(t, dec("13.25"), trades[1].Price)
	assert.Equal(t, uint64(10), trades[1].Quantity)
	assert.Equal(t, TradeID(2), trades[1].TradeID)

	summary := lastLog(t, ob)
	assert.Equal(t, OrderID(3), summary.OrderID)
	assert.Equal(t, StatusFilled, summary.Status)
	assert.Equal(t, uint64(30), summary.Quantity)
	assert.Equal(t, dec("11.083"), summary.Price)
	assert.Equal(t, TypeMarket, summary.Type)
	assert.Equal(t, detailMarketBuyFilled, summary.Details)

	assert.Equal(t, uint64(5), ob.DepthAtPrice(dec("13.25"), Sell))
	assert.Equal(t, uint64(0), ob.DepthAtPrice(dec("10"), Sell))
	ask, ok := ob.BestAsk()
	require.True(t, ok)
	assert.Equal(t, dec("13.25"), ask)
}

func TestMarketOrderAveragePriceLargeQuantities(t *testing.T) {
	tests := []struct {
		name     string
		quantity uint64
	}{
		{"notional beyond int64", 1_000_000_000_000},
		{"quantity beyond int64", math.MaxInt64 + 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ob := NewOrderBook()
			placeLimit(t, ob, 1, 1, Sell, "10", tt.quantity)

			filled, avg := ob.MarketImpact(Buy, tt.quantity)
			assert.Equal(t, tt.quantity, filled)
			assert.Equal(t, dec("10"), avg)

			placeMarket(t, ob, 2, 2, Buy, tt.quantity)
			summary := lastLog(t, ob)
			assert.Equal(t, StatusFilled, summary.Status)
			assert.Equal(t, tt.quantity, summary.Quantity)
			assert.Equal(t, dec("10"), summary.Price)
		})
	}
}

func TestMarketOrderAveragePriceMixedLargeLevels(t *testing.T) {
	ob := NewOrderBook()
	placeLimit(t, ob, 1, 1, Sell, "10", 1_000_000_000_000)
	placeLimit(t, ob, 2, 2, Sell, "20", 1_000_000_000_000)

	placeMarket(t, ob, 3, 3, Buy, 2_000_000_000_000)
	summary := lastLog(t, ob)
	assert.Equal(t, uint64(2_000_000_000_000), summary.Quantity)
	assert.Equal(t, dec("15"), summary.Price)
}

func TestMarketOrderLogsMakerFills(t *testing.T) {
	ob := NewOrderBook()

	placeLimit(t, ob, 1, 10, Buy, "9", 2)
	placeLimit(t, ob, 2, 11, Buy, "6", 4)
	placeMarket(t, ob, 3, 30, Sell, 4)

	logs := ob.OrderLogs()
	require.Len(t, logs, 5)
	assert.Equal(t, OrderID(1), logs[2].OrderID)
	assert.Equal(t, StatusFilled, logs[2].Status)
	assert.Equal(t, OrderID(2), logs[3].OrderID)
	assert.Equal(t, StatusPartiallyFilled, logs[3].Status)
	assert.Equal(t, uint64(2), logs[3].Quantity)

	summary := logs[4]
	assert.Equal(t, detailMarketSellFilled, summary.Details)
	assert.Equal(t, dec("7.5"), summary.Price)
	assert.Equal(t, uint64(2), ob.DepthAtPrice(dec("6"), Buy))
}

func TestMarketOrderNoLiquidity(t *testing.T) {
	ob := NewOrderBook()

	placeMarket(t, ob, 1, 1, Buy, 40)

	assert.Empty(t, ob.Trades())
	logs := ob.OrderLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, StatusUnfilled, logs[0].Status)
	assert.Equal(t, uint64(0), logs[0].Quantity)
	assert.Equal(t, fpdecimal.Zero, logs[0].Price)
	assert.Equal(t, detailNoSellLiquidity, logs[0].Details)

	placeMarket(t, ob, 2, 1, Sell, 40)
	assert.Equal(t, detailNoBuyLiquidity, lastLog(t, ob).Details)
}

func TestMarketOrderPartialFillDiscardsRemainder(t *testing.T) {
	ob := NewOrderBook()

	placeLimit(t, ob, 1, 10, Sell, "10", 5)
	placeMarket(t, ob, 2, 20, Buy, 8)

	summary := lastLog(t, ob)
	assert.Equal(t, StatusPartiallyFilled, summary.Status)
	assert.Equal(t, uint64(5), summary.Quantity)
	assert.Equal(t, dec("10"), summary.Price)

	_, hasBid := ob.BestBid()
	_, hasAsk := ob.BestAsk()
	assert.False(t, hasBid, "market remainder must not rest")
	assert.False(t, hasAsk)
	_, ok := ob.Order(2)
	assert.False(t, ok)
}

func TestLimitOrderMakerPriceExecution(t *testing.T) {
	ob := NewOrderBook()

	placeLimit(t, ob, 1, 10, Buy, "15", 10)
	placeLimit(t, ob, 2, 20, Sell, "9", 4)

	trades := ob.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, dec("15"), trades[0].Price)
	assert.Equal(t, Sell, trades[0].AggressorSide)
	assert.Equal(t, uint64(6), ob.DepthAtPrice(dec("15"), Buy))
}

func TestLimitOrderWalksLevels(t *testing.T) {
	ob := NewOrderBook()

	placeLimit(t, ob, 1, 1, Sell, "10", 5)
	placeLimit(t, ob, 2, 1, Sell, "11", 5)
	placeLimit(t, ob, 3, 1, Sell, "12", 5)
	placeLimit(t, ob, 4, 2, Buy, "11", 12)

	trades := ob.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, dec("10"), trades[0].Price)
	assert.Equal(t, dec("11"), trades[1].Price)

	bid, _ := ob.BestBid()
	ask, _ := ob.BestAsk()
	assert.Equal(t, dec("11"), bid)
	assert.Equal(t, dec("12"), ask)
	assert.Equal(t, uint64(2), ob.DepthAtPrice(dec("11"), Buy))
}

func TestFIFOWithinLevel(t *testing.T) {
	ob := NewOrderBook()

	placeLimit(t, ob, 1, 1, Sell, "10", 5)
	require.NoError(t, ob.AdvanceTime(1))
	placeLimit(t, ob, 2, 2, Sell, "10", 5)
	require.NoError(t, ob.AdvanceTime(2))
	placeLimit(t, ob, 3, 3, Buy, "10", 7)

	trades := ob.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, OrderID(1), trades[0].SellOrderID)
	assert.Equal(t, uint64(5), trades[0].Quantity)
	assert.Equal(t, OrderID(2), trades[1].SellOrderID)
	assert.Equal(t, uint64(2), trades[1].Quantity)
}

func TestOutOfOrderTimestampsKeepTimePriority(t *testing.T) {
	ob := NewOrderBook(WithClock(100))
	ctx := context.Background()

	late, err := NewLimitOrder(1, 1, Sell, dec("10"), 5, 50)
	require.NoError(t, err)
	early, err := NewLimitOrder(2, 2, Sell, dec("10"), 5, 20)
	require.NoError(t, err)
	require.NoError(t, ob.PlaceLimitOrder(ctx, late))
	require.NoError(t, ob.PlaceLimitOrder(ctx, early))

	levels := ob.RestingOrders(Sell)
	require.Len(t, levels, 1)
	require.Len(t, levels[0].Orders, 2)
	assert.Equal(t, OrderID(2), levels[0].Orders[0].ID)

	placeLimit(t, ob, 3, 3, Buy, "10", 5)
	require.Len(t, ob.Trades(), 1)
	assert.Equal(t, OrderID(2), ob.Trades()[0].SellOrderID)
}

func TestCancelOrder(t *testing.T) {
	ob := NewOrderBook()
	ctx := context.Background()

	placeLimit(t, ob, 1, 42, Buy, "9.5", 10)
	placeLimit(t, ob, 2, 43, Buy, "9.5", 3)

	assert.True(t, ob.CancelOrder(ctx, 1))

	log := lastLog(t, ob)
	assert.Equal(t, OrderID(1), log.OrderID)
	assert.Equal(t, TraderID(42), log.TraderID)
	assert.Equal(t, StatusCanceled, log.Status)
	assert.Equal(t, dec("9.5"), log.Price)
	assert.Equal(t, uint64(0), log.Quantity)
	assert.Equal(t, Buy, log.Side)
	assert.Equal(t, detailBuyCanceled, log.Details)

	assert.Equal(t, uint64(3), ob.DepthAtPrice(dec("9.5"), Buy))

	logCount := len(ob.OrderLogs())
	assert.False(t, ob.CancelOrder(ctx, 1), "second cancel is a no-op")
	assert.False(t, ob.CancelOrder(ctx, 999), "unknown id is a no-op")
	assert.Len(t, ob.OrderLogs(), logCount)
	assert.Empty(t, ob.Trades())

	assert.True(t, ob.CancelOrder(ctx, 2))
	_, ok := ob.BestBid()
	assert.False(t, ok, "empty level is removed")
	assert.Empty(t, ob.BidLevels(0))
}

func TestCancelSellLogDetail(t *testing.T) {
	ob := NewOrderBook()
	placeLimit(t, ob, 1, 1, Sell, "10", 1)
	require.True(t, ob.CancelOrder(context.Background(), 1))
	assert.Equal(t, detailSellCanceled, lastLog(t, ob).Details)
	assert.Equal(t, Sell, lastLog(t, ob).Side)
}

func TestModifyLosesTimePriority(t *testing.T) {
	ob := NewOrderBook()
	ctx := context.Background()

	placeLimit(t, ob, 1, 1, Sell, "10", 5)
	require.NoError(t, ob.AdvanceTime(1))
	placeLimit(t, ob, 2, 2, Sell, "10", 5)
	require.NoError(t, ob.AdvanceTime(2))

	ok, err := ob.ModifyOrder(ctx, 1, dec("10"), 5)
	require.NoError(t, err)
	require.True(t, ok)

	modified, found := ob.Order(1)
	require.True(t, found)
	assert.Equal(t, Timestamp(2), modified.Timestamp)
	assert.Equal(t, TraderID(1), modified.TraderID)

	log := lastLog(t, ob)
	assert.Equal(t, StatusPlaced, log.Status)
	assert.Equal(t, detailOrderModified, log.Details)

	require.NoError(t, ob.AdvanceTime(3))
	placeLimit(t, ob, 3, 3, Buy, "10", 5)

	trades := ob.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, OrderID(2), trades[0].SellOrderID, "unmodified order keeps priority")
}

func TestModifyQueuesBehindFutureStampedOrders(t *testing.T) {
	ob := NewOrderBook()
	ctx := context.Background()

	// clock stays at 0 while callers stamp orders ahead of it
	for _, o := range []struct {
		id OrderID
		ts Timestamp
	}{{1, 1}, {2, 2}} {
		order, err := NewLimitOrder(o.id, TraderID(o.id), Sell, dec("10"), 5, o.ts)
		require.NoError(t, err)
		require.NoError(t, ob.PlaceLimitOrder(ctx, order))
	}

	ok, err := ob.ModifyOrder(ctx, 1, dec("10"), 5)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, ob.CheckInvariants())

	levels := ob.RestingOrders(Sell)
	require.Len(t, levels, 1)
	require.Len(t, levels[0].Orders, 2)
	assert.Equal(t, OrderID(2), levels[0].Orders[0].ID)
	assert.Equal(t, OrderID(1), levels[0].Orders[1].ID)

	placeLimit(t, ob, 3, 3, Buy, "10", 5)
	trades := ob.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, OrderID(2), trades[0].SellOrderID)
}

func TestModifyCanMatchImmediately(t *testing.T) {
	ob := NewOrderBook()
	ctx := context.Background()

	placeLimit(t, ob, 1, 1, Sell, "12", 5)
	placeLimit(t, ob, 2, 2, Buy, "10", 8)

	ok, err := ob.ModifyOrder(ctx, 2, dec("12"), 8)
	require.NoError(t, err)
	require.True(t, ok)

	trades := ob.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, OrderID(2), trades[0].BuyOrderID)
	assert.Equal(t, dec("12"), trades[0].Price)
	assert.Equal(t, uint64(3), ob.DepthAtPrice(dec("12"), Buy))
	assert.Equal(t, detailOrderModified, lastLog(t, ob).Details)
}

func TestModifyInvalidTermsLeavesBook(t *testing.T) {
	ob := NewOrderBook()
	ctx := context.Background()
	placeLimit(t, ob, 1, 1, Buy, "10", 5)
	before := ob.Snapshot(0)
	logs := len(ob.OrderLogs())

	ok, err := ob.ModifyOrder(ctx, 1, dec("10"), 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.False(t, ok)

	ok, err = ob.ModifyOrder(ctx, 1, fpdecimal.Zero, 5)
	assert.ErrorIs(t, err, ErrInvalidPrice)
	assert.False(t, ok)

	assert.Equal(t, before, ob.Snapshot(0))
	assert.Len(t, ob.OrderLogs(), logs)

	ok, err = ob.ModifyOrder(ctx, 77, dec("10"), 5)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestPlaceRejectsMalformedInput(t *testing.T) {
	ob := NewOrderBook()
	ctx := context.Background()

	placeLimit(t, ob, 1, 1, Buy, "10", 5)

	dup, err := NewLimitOrder(1, 2, Sell, dec("11"), 5, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, ob.PlaceLimitOrder(ctx, dup), ErrOrderExists)

	market, err := NewMarketOrder(2, 2, Sell, 5, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, ob.PlaceLimitOrder(ctx, market), ErrInvalidArgument)

	limit, err := NewLimitOrder(3, 2, Sell, dec("11"), 5, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, ob.PlaceMarketOrder(ctx, limit), ErrInvalidArgument)

	assert.ErrorIs(t, ob.PlaceLimitOrder(ctx, Order{ID: 4, Side: Buy, Type: TypeLimit, Price: dec("1")}), ErrInvalidQuantity)
	assert.ErrorIs(t, ob.PlaceLimitOrder(ctx, Order{ID: 5, Side: Buy, Type: TypeLimit, Quantity: 1}), ErrInvalidPrice)

	assert.Len(t, ob.OrderLogs(), 1)
	assert.Empty(t, ob.Trades())
}

func TestAdvanceTime(t *testing.T) {
	ob := NewOrderBook(WithClock(10))
	assert.Equal(t, Timestamp(10), ob.CurrentTime())

	require.NoError(t, ob.AdvanceTime(10))
	require.NoError(t, ob.AdvanceTime(15))
	assert.Equal(t, Timestamp(15), ob.CurrentTime())

	err := ob.AdvanceTime(14)
	assert.ErrorIs(t, err, ErrClockRegression)
	assert.Equal(t, Timestamp(15), ob.CurrentTime())

	placeLimit(t, ob, 1, 1, Buy, "10", 1)
	assert.Equal(t, Timestamp(15), lastLog(t, ob).Timestamp)
}

func TestTradeIDsAndDrain(t *testing.T) {
	ob := NewOrderBook()

	placeLimit(t, ob, 1, 1, Sell, "10", 1)
	placeLimit(t, ob, 2, 1, Sell, "10", 1)
	placeLimit(t, ob, 3, 2, Buy, "10", 1)

	logs := ob.DrainOrderLogs()
	assert.NotEmpty(t, logs)
	assert.Empty(t, ob.OrderLogs())

	trades := ob.DrainTrades()
	require.Len(t, trades, 1)
	assert.Empty(t, ob.Trades())

	placeLimit(t, ob, 4, 2, Buy, "10", 1)
	require.Len(t, ob.Trades(), 1)
	assert.Equal(t, TradeID(2), ob.Trades()[0].TradeID)
}

func TestLogAccessorsReturnCopies(t *testing.T) {
	ob := NewOrderBook()
	placeLimit(t, ob, 1, 1, Buy, "10", 1)

	logs := ob.OrderLogs()
	logs[0].Details = "tampered"
	assert.Equal(t, detailLimitBuyPlaced, ob.OrderLogs()[0].Details)
}

func TestOrderBookString(t *testing.T) {
	ob := NewOrderBook()
	placeLimit(t, ob, 1, 1, Sell, "11", 2)
	placeLimit(t, ob, 2, 1, Sell, "12", 3)
	placeLimit(t, ob, 3, 2, Buy, "10", 4)

	dump := ob.String()
	assert.True(t, strings.HasPrefix(dump, "Ask:"))
	assert.Contains(t, dump, "Bid:")
	worst := dec("12").String() + " -> 3"
	best := dec("11").String() + " -> 2"
	require.Contains(t, dump, worst)
	require.Contains(t, dump, best)
	assert.Less(t, strings.Index(dump, worst), strings.Index(dump, best), "asks print worst first")
	assert.Contains(t, dump, dec("10").String()+" -> 4")
}

func TestDebugLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	ob := NewOrderBook(WithLogger(logger))

	placeLimit(t, ob, 1, 1, Sell, "10", 2)
	placeLimit(t, ob, 2, 2, Buy, "10", 2)

	assert.Contains(t, buf.String(), `"message":"order placed"`)
	assert.Contains(t, buf.String(), `"message":"trade executed"`)
}
