package core

import "errors"

// Errors
var (
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrInvalidPrice       = errors.New("invalid price")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOrderExists        = errors.New("order exists")
	ErrClockRegression    = errors.New("clock regression")
	ErrInvariantViolation = errors.New("order book invariant violated")
)

// Details attached to order logs
const (
	detailLimitBuyPlaced   = "Limit buy order placed"
	detailLimitSellPlaced  = "Limit sell order placed"
	detailTradeExecuted    = "Trade executed"
	detailMarketBuyFilled  = "Market buy order executed"
	detailMarketSellFilled = "Market sell order executed"
	detailNoSellLiquidity  = "No sell orders available"
	detailNoBuyLiquidity   = "No buy orders available"
	detailBuyCanceled      = "Buy order canceled"
	detailSellCanceled     = "Sell order canceled"
	detailOrderModified    = "Order modified"
)

// btreeDegree is the fan-out of the per-side price trees
const btreeDegree = 16
