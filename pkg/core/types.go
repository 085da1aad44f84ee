package core

import (
	"fmt"

	"github.com/nikolaydubina/fpdecimal"
)

// OrderStatus is the lifecycle state recorded in an OrderLog
type OrderStatus string

// Order statuses
const (
	StatusPlaced          OrderStatus = "PLACED"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusUnfilled        OrderStatus = "UNFILLED"
	StatusCanceled        OrderStatus = "CANCELED"
)

// Classify returns the fill status of an order that asked for requested and
// got filled.
func Classify(requested, filled uint64) OrderStatus {
	switch {
	case filled == 0:
		return StatusUnfilled
	case filled >= requested:
		return StatusFilled
	default:
		return StatusPartiallyFilled
	}
}

// fillStatus is the status of one side of a trade given what is left of it
func fillStatus(remaining uint64) OrderStatus {
	if remaining == 0 {
		return StatusFilled
	}
	return StatusPartiallyFilled
}

// Trade is one execution between a resting order and an incoming order.
// Price is always the resting order's price.
type Trade struct {
	TradeID       TradeID           `json:"tradeId"`
	BuyOrderID    OrderID           `json:"buyOrderId"`
	SellOrderID   OrderID           `json:"sellOrderId"`
	AggressorSide Side              `json:"aggressorSide"`
	BuyerID       TraderID          `json:"buyerId"`
	SellerID      TraderID          `json:"sellerId"`
	Price         fpdecimal.Decimal `json:"price"`
	Quantity      uint64            `json:"quantity"`
	Timestamp     Timestamp         `json:"timestamp"`
}

// String implements Stringer interface
func (t Trade) String() string {
	return fmt.Sprintf("trade #%d buy=#%d sell=#%d aggressor=%s %d@%s t=%d",
		t.TradeID, t.BuyOrderID, t.SellOrderID, t.AggressorSide, t.Quantity, t.Price, t.Timestamp)
}

// OrderLog is an audit record of one order lifecycle event. On the summary
// log of a market order, Price is the quantity-weighted average execution
// price truncated toward zero at three fraction digits.
type OrderLog struct {
	OrderID   OrderID           `json:"orderId"`
	TraderID  TraderID          `json:"traderId"`
	Price     fpdecimal.Decimal `json:"price"`
	Quantity  uint64            `json:"quantity"`
	Side      Side              `json:"side"`
	Type      OrderType         `json:"type"`
	Status    OrderStatus       `json:"status"`
	Timestamp Timestamp         `json:"timestamp"`
	Details   string            `json:"details"`
}

// String implements Stringer interface
func (l OrderLog) String() string {
	return fmt.Sprintf("Order ID: %d, Trader ID: %d, Price: %s, Quantity: %d, Side: %s, Type: %s, Status: %s, Details: %s",
		l.OrderID, l.TraderID, l.Price, l.Quantity, l.Side, l.Type, l.Status, l.Details)
}

// newTrade builds the trade record for incoming crossing resting
func newTrade(id TradeID, incoming, resting *Order, price fpdecimal.Decimal, quantity uint64, ts Timestamp) Trade {
	trade := Trade{
		TradeID:       id,
		AggressorSide: incoming.Side,
		Price:         price,
		Quantity:      quantity,
		Timestamp:     ts,
	}

	buy, sell := incoming, resting
	if incoming.Side == Sell {
		buy, sell = resting, incoming
	}
	trade.BuyOrderID, trade.BuyerID = buy.ID, buy.TraderID
	trade.SellOrderID, trade.SellerID = sell.ID, sell.TraderID

	return trade
}
