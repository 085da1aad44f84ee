package core

import (
	"encoding/json"
	"testing"

	"github.com/nikolaydubina/fpdecimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedBook(t *testing.T) *OrderBook {
	t.Helper()
	ob := NewOrderBook(WithClock(7))
	placeLimit(t, ob, 1, 1, Buy, "9", 5)
	placeLimit(t, ob, 2, 2, Buy, "9", 3)
	placeLimit(t, ob, 3, 1, Buy, "8.5", 10)
	placeLimit(t, ob, 4, 3, Sell, "11", 4)
	placeLimit(t, ob, 5, 3, Sell, "12", 6)
	placeLimit(t, ob, 6, 2, Sell, "12", 1)
	return ob
}

func TestEmptyBookViews(t *testing.T) {
	ob := NewOrderBook()

	_, ok := ob.BestBid()
	assert.False(t, ok)
	_, ok = ob.Spread()
	assert.False(t, ok)
	_, ok = ob.MidPrice()
	assert.False(t, ok)

	l1 := ob.Level1()
	assert.False(t, l1.HasBid)
	assert.False(t, l1.HasAsk)
	assert.Equal(t, fpdecimal.Zero, l1.MidPrice)
	assert.Equal(t, fpdecimal.Zero, l1.Spread)

	snap := ob.Snapshot(3)
	assert.Empty(t, snap.Bids)
	assert.Empty(t, snap.Asks)
	assert.Equal(t, Timestamp(3), snap.Timestamp)
	assert.Zero(t, snap.TotalBidVolume)
}

func TestOneSidedBookHasNoMidOrSpread(t *testing.T) {
	ob := NewOrderBook()
	placeLimit(t, ob, 1, 1, Buy, "10", 1)

	l1 := ob.Level1()
	assert.True(t, l1.HasBid)
	assert.False(t, l1.HasAsk)
	assert.Equal(t, fpdecimal.Zero, l1.Spread)
	assert.Equal(t, fpdecimal.Zero, l1.MidPrice)
}

func TestLevel1(t *testing.T) {
	ob := seedBook(t)

	l1 := ob.Level1()
	assert.Equal(t, Timestamp(7), l1.Timestamp)
	assert.True(t, l1.HasBid)
	assert.Equal(t, dec("9"), l1.BidPrice)
	assert.Equal(t, uint64(8), l1.BidQuantity)
	assert.True(t, l1.HasAsk)
	assert.Equal(t, dec("11"), l1.AskPrice)
	assert.Equal(t, uint64(4), l1.AskQuantity)
	assert.Equal(t, dec("10"), l1.MidPrice)
	assert.Equal(t, dec("2"), l1.Spread)
}

func TestLevel2AndSnapshot(t *testing.T) {
	ob := seedBook(t)

	l2 := ob.Level2()
	assert.Equal(t, []PriceLevel{
		{Price: dec("9"), TotalQuantity: 8, OrderCount: 2},
		{Price: dec("8.5"), TotalQuantity: 10, OrderCount: 1},
	}, l2.Bids)
	assert.Equal(t, []PriceLevel{
		{Price: dec("11"), TotalQuantity: 4, OrderCount: 1},
		{Price: dec("12"), TotalQuantity: 7, OrderCount: 2},
	}, l2.Asks)

	snap := ob.Snapshot(99)
	assert.Equal(t, Timestamp(99), snap.Timestamp)
	assert.Equal(t, l2.Bids, snap.Bids)
	assert.Equal(t, l2.Asks, snap.Asks)
	assert.True(t, snap.HasBid)
	assert.True(t, snap.HasAsk)
	assert.Equal(t, dec("9"), snap.BestBid)
	assert.Equal(t, dec("11"), snap.BestAsk)
	assert.Equal(t, dec("10"), snap.MidPrice)
	assert.Equal(t, dec("2"), snap.Spread)
	assert.Equal(t, uint64(18), snap.TotalBidVolume)
	assert.Equal(t, uint64(11), snap.TotalAskVolume)

	assert.Equal(t, uint64(18), ob.TotalQuantity(Buy))
	assert.Equal(t, uint64(11), ob.TotalQuantity(Sell))
}

func TestDepthLevels(t *testing.T) {
	ob := seedBook(t)

	assert.Len(t, ob.BidLevels(0), 2)
	assert.Len(t, ob.BidLevels(1), 1)
	assert.Len(t, ob.AskLevels(5), 2)
	assert.Equal(t, dec("11"), ob.AskLevels(1)[0].Price)

	assert.Equal(t, uint64(8), ob.DepthAtPrice(dec("9"), Buy))
	assert.Equal(t, uint64(0), ob.DepthAtPrice(dec("9"), Sell))
	assert.Equal(t, uint64(0), ob.DepthAtPrice(dec("10"), Buy))
}

func TestRestingOrdersAndTraderOrders(t *testing.T) {
	ob := seedBook(t)

	bids := ob.RestingOrders(Buy)
	require.Len(t, bids, 2)
	assert.Equal(t, dec("9"), bids[0].Price)
	require.Len(t, bids[0].Orders, 2)
	assert.Equal(t, OrderID(1), bids[0].Orders[0].ID)
	assert.Equal(t, OrderID(2), bids[0].Orders[1].ID)

	orders := ob.TraderOrders(2)
	require.Len(t, orders, 2)
	assert.Equal(t, OrderID(2), orders[0].ID)
	assert.Equal(t, OrderID(6), orders[1].ID)

	assert.Empty(t, ob.TraderOrders(404))
}

func TestProjectionsDoNotMutate(t *testing.T) {
	ob := seedBook(t)
	before := ob.Snapshot(0)

	ob.Level1()
	ob.Level2()
	ob.RestingOrders(Sell)[0].Orders[0].Quantity = 999
	ob.MarketImpact(Buy, 100)

	assert.Equal(t, before, ob.Snapshot(0))
	assert.NoError(t, ob.CheckInvariants())
}

func TestMarketImpact(t *testing.T) {
	ob := seedBook(t)

	filled, avg := ob.MarketImpact(Buy, 6)
	assert.Equal(t, uint64(6), filled)
	assert.Equal(t, dec("11.333"), avg)

	filled, _ = ob.MarketImpact(Buy, 100)
	assert.Equal(t, uint64(11), filled)

	empty := NewOrderBook()
	filled, avg = empty.MarketImpact(Sell, 5)
	assert.Zero(t, filled)
	assert.Equal(t, fpdecimal.Zero, avg)
}

func TestSnapshotJSON(t *testing.T) {
	snap := seedBook(t).Snapshot(5)

	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded OrderBookSnapshot
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, snap, decoded)
}
