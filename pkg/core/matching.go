package core

import (
	"math/big"

	"github.com/nikolaydubina/fpdecimal"
)

// vwap accumulates a quantity-weighted average price. The notional is kept
// exact in scaled units, since price times quantity overflows int64 well
// within the range of valid orders.
type vwap struct {
	notional big.Int
	filled   uint64
}

func (w *vwap) add(price fpdecimal.Decimal, quantity uint64) {
	var step big.Int
	step.SetUint64(quantity)
	step.Mul(&step, big.NewInt(price.Scaled()))
	w.notional.Add(&w.notional, &step)
	w.filled += quantity
}

// average truncates toward zero at fpdecimal's three fraction digits. Zero
// when nothing filled.
func (w *vwap) average() fpdecimal.Decimal {
	if w.filled == 0 {
		return fpdecimal.Zero
	}
	var avg, filled big.Int
	filled.SetUint64(w.filled)
	avg.Quo(&w.notional, &filled)
	return fpdecimal.FromIntScaled(avg.Int64())
}

// crosses reports whether an incoming order on side at limit can trade
// against a resting level at bookPrice
func crosses(side Side, limit, bookPrice fpdecimal.Decimal) bool {
	if side == Buy {
		return limit.GreaterThanOrEqual(bookPrice)
	}
	return limit.LessThanOrEqual(bookPrice)
}

// admitLimit matches incoming while it crosses the opposite best level, then
// rests whatever is left. incoming.Quantity is decremented in place.
func (ob *OrderBook) admitLimit(incoming *Order) []Trade {
	var trades []Trade
	opposite := incoming.Side.Opposite()

	for incoming.Quantity > 0 {
		level, ok := ob.store.best(opposite)
		if !ok || !crosses(incoming.Side, incoming.Price, level.price) {
			break
		}

		resting := level.head()
		quantity := min(incoming.Quantity, resting.Quantity)
		price := resting.Price

		incoming.Quantity -= quantity
		ob.store.fill(resting, quantity)

		trades = append(trades, ob.recordTrade(incoming, resting, price, quantity))
		ob.appendLog(incoming, price, quantity, fillStatus(incoming.Quantity), detailTradeExecuted)
		ob.appendLog(resting, price, quantity, fillStatus(resting.Quantity), detailTradeExecuted)
	}

	if incoming.Quantity == 0 {
		return trades
	}

	resting := *incoming
	ob.store.insert(&resting)

	detail := detailLimitBuyPlaced
	if incoming.Side == Sell {
		detail = detailLimitSellPlaced
	}
	ob.appendLog(&resting, resting.Price, resting.Quantity, StatusPlaced, detail)

	ob.logger.Debug().
		Uint64("order_id", uint64(resting.ID)).
		Str("side", resting.Side.String()).
		Str("price", resting.Price.String()).
		Uint64("quantity", resting.Quantity).
		Msg("order placed")
	return trades
}

// sweep executes a market order against the opposite side until it is filled
// or the side is exhausted. The summary log carries the filled quantity and
// the quantity-weighted average execution price, truncated to three fraction
// digits.
func (ob *OrderBook) sweep(incoming *Order) (OrderLog, []Trade) {
	opposite := incoming.Side.Opposite()

	if ob.store.empty(opposite) {
		detail := detailNoSellLiquidity
		if incoming.Side == Sell {
			detail = detailNoBuyLiquidity
		}
		ob.appendLog(incoming, fpdecimal.Zero, 0, StatusUnfilled, detail)
		return ob.orderLogs[len(ob.orderLogs)-1], nil
	}

	var (
		trades    []Trade
		fills     vwap
		remaining = incoming.Quantity
	)

	for remaining > 0 {
		level, ok := ob.store.best(opposite)
		if !ok {
			break
		}

		resting := level.head()
		quantity := min(remaining, resting.Quantity)
		price := resting.Price

		remaining -= quantity
		fills.add(price, quantity)
		ob.store.fill(resting, quantity)

		trades = append(trades, ob.recordTrade(incoming, resting, price, quantity))
		ob.appendLog(resting, price, quantity, fillStatus(resting.Quantity), detailTradeExecuted)
	}

	detail := detailMarketBuyFilled
	if incoming.Side == Sell {
		detail = detailMarketSellFilled
	}
	ob.appendLog(incoming, fills.average(), fills.filled, Classify(incoming.Quantity, fills.filled), detail)

	return ob.orderLogs[len(ob.orderLogs)-1], trades
}

// MarketImpact previews a market order of quantity on side without touching
// the book: the quantity that would fill and its average execution price,
// computed the same way as a real sweep.
func (ob *OrderBook) MarketImpact(side Side, quantity uint64) (filled uint64, average fpdecimal.Decimal) {
	var fills vwap
	remaining := quantity

	ob.store.walk(side.Opposite(), func(level *priceLevel) bool {
		take := min(remaining, level.total)
		fills.add(level.price, take)
		remaining -= take
		return remaining > 0
	})

	return fills.filled, fills.average()
}
