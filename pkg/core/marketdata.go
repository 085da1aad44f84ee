package core

import "github.com/nikolaydubina/fpdecimal"

// PriceLevel summarizes the resting liquidity at one price
type PriceLevel struct {
	Price         fpdecimal.Decimal `json:"price"`
	TotalQuantity uint64            `json:"totalQuantity"`
	OrderCount    uint32            `json:"orderCount"`
}

// Level1Data is top of book. Prices are zero when HasBid/HasAsk is false;
// MidPrice and Spread are zero unless both sides are present.
type Level1Data struct {
	Timestamp   Timestamp         `json:"timestamp"`
	HasBid      bool              `json:"hasBid"`
	BidPrice    fpdecimal.Decimal `json:"bidPrice"`
	BidQuantity uint64            `json:"bidQuantity"`
	HasAsk      bool              `json:"hasAsk"`
	AskPrice    fpdecimal.Decimal `json:"askPrice"`
	AskQuantity uint64            `json:"askQuantity"`
	MidPrice    fpdecimal.Decimal `json:"midPrice"`
	Spread      fpdecimal.Decimal `json:"spread"`
}

// Level2Data is full depth. Bids are sorted descending, asks ascending.
type Level2Data struct {
	Timestamp Timestamp    `json:"timestamp"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
}

// OrderBookSnapshot is Level 2 plus top of book and per-side volume
type OrderBookSnapshot struct {
	Timestamp      Timestamp         `json:"timestamp"`
	Bids           []PriceLevel      `json:"bids"`
	Asks           []PriceLevel      `json:"asks"`
	HasBid         bool              `json:"hasBid"`
	BestBid        fpdecimal.Decimal `json:"bestBid"`
	HasAsk         bool              `json:"hasAsk"`
	BestAsk        fpdecimal.Decimal `json:"bestAsk"`
	MidPrice       fpdecimal.Decimal `json:"midPrice"`
	Spread         fpdecimal.Decimal `json:"spread"`
	TotalBidVolume uint64            `json:"totalBidVolume"`
	TotalAskVolume uint64            `json:"totalAskVolume"`
}

// LevelOrders is one price level with its resting orders in FIFO order
type LevelOrders struct {
	Price  fpdecimal.Decimal `json:"price"`
	Orders []Order           `json:"orders"`
}

// BestBid returns the highest resting buy price
func (ob *OrderBook) BestBid() (fpdecimal.Decimal, bool) {
	return ob.store.bestPrice(Buy)
}

// BestAsk returns the lowest resting sell price
func (ob *OrderBook) BestAsk() (fpdecimal.Decimal, bool) {
	return ob.store.bestPrice(Sell)
}

// Spread returns best ask minus best bid. ok is false when either side is empty.
func (ob *OrderBook) Spread() (fpdecimal.Decimal, bool) {
	bid, hasBid := ob.BestBid()
	ask, hasAsk := ob.BestAsk()
	if !hasBid || !hasAsk {
		return fpdecimal.Zero, false
	}
	return ask.Sub(bid), true
}

// MidPrice returns the midpoint of best bid and best ask. ok is false when
// either side is empty.
func (ob *OrderBook) MidPrice() (fpdecimal.Decimal, bool) {
	bid, hasBid := ob.BestBid()
	ask, hasAsk := ob.BestAsk()
	if !hasBid || !hasAsk {
		return fpdecimal.Zero, false
	}
	return bid.Add(ask).Div(fpdecimal.FromInt(2)), true
}

// DepthAtPrice returns the aggregate quantity resting at exactly price on side
func (ob *OrderBook) DepthAtPrice(price fpdecimal.Decimal, side Side) uint64 {
	level, ok := ob.store.level(side, price)
	if !ok {
		return 0
	}
	return level.total
}

// Level1 returns top of book stamped with the book clock
func (ob *OrderBook) Level1() Level1Data {
	data := Level1Data{Timestamp: ob.now}

	if level, ok := ob.store.best(Buy); ok {
		data.HasBid = true
		data.BidPrice = level.price
		data.BidQuantity = level.total
	}
	if level, ok := ob.store.best(Sell); ok {
		data.HasAsk = true
		data.AskPrice = level.price
		data.AskQuantity = level.total
	}

	data.MidPrice, _ = ob.MidPrice()
	data.Spread, _ = ob.Spread()
	return data
}

// Level2 returns every occupied level of both sides stamped with the book clock
func (ob *OrderBook) Level2() Level2Data {
	return Level2Data{
		Timestamp: ob.now,
		Bids:      ob.store.summaries(Buy, 0),
		Asks:      ob.store.summaries(Sell, 0),
	}
}

// Snapshot returns the full book view stamped with ts
func (ob *OrderBook) Snapshot(ts Timestamp) OrderBookSnapshot {
	snap := OrderBookSnapshot{
		Timestamp: ts,
		Bids:      ob.store.summaries(Buy, 0),
		Asks:      ob.store.summaries(Sell, 0),
	}
	snap.BestBid, snap.HasBid = ob.BestBid()
	snap.BestAsk, snap.HasAsk = ob.BestAsk()
	snap.MidPrice, _ = ob.MidPrice()
	snap.Spread, _ = ob.Spread()

	for _, level := range snap.Bids {
		snap.TotalBidVolume += level.TotalQuantity
	}
	for _, level := range snap.Asks {
		snap.TotalAskVolume += level.TotalQuantity
	}
	return snap
}

// BidLevels returns at most depth bid levels, best first. depth 0 means all.
func (ob *OrderBook) BidLevels(depth int) []PriceLevel {
	return ob.store.summaries(Buy, depth)
}

// AskLevels returns at most depth ask levels, best first. depth 0 means all.
func (ob *OrderBook) AskLevels(depth int) []PriceLevel {
	return ob.store.summaries(Sell, depth)
}

// RestingOrders dumps one side grouped by price, best price first, FIFO
// order preserved inside each level
func (ob *OrderBook) RestingOrders(side Side) []LevelOrders {
	out := make([]LevelOrders, 0, ob.store.levelCount(side))
	ob.store.walk(side, func(level *priceLevel) bool {
		out = append(out, LevelOrders{Price: level.price, Orders: level.snapshot()})
		return true
	})
	return out
}

// TraderOrders returns every resting order owned by trader, bids first
func (ob *OrderBook) TraderOrders(trader TraderID) []Order {
	var out []Order
	for _, side := range []Side{Buy, Sell} {
		ob.store.walk(side, func(level *priceLevel) bool {
			for e := level.orders.Front(); e != nil; e = e.Next() {
				if o := e.Value.(*Order); o.TraderID == trader {
					out = append(out, *o)
				}
			}
			return true
		})
	}
	return out
}

// Order returns a copy of the resting order with the given id
func (ob *OrderBook) Order(id OrderID) (Order, bool) {
	o, ok := ob.store.get(id)
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// TotalQuantity returns the aggregate resting quantity on side
func (ob *OrderBook) TotalQuantity(side Side) uint64 {
	var total uint64
	ob.store.walk(side, func(level *priceLevel) bool {
		total += level.total
		return true
	})
	return total
}
