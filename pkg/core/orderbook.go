package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/erain9/lobsim/pkg/otel"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// OrderBook is a single-instrument limit order book with price-time priority
// and maker-price execution. It is not safe for concurrent use; callers that
// share a book must serialize every call.
type OrderBook struct {
	store       *orderStore
	now         Timestamp
	nextTradeID TradeID

	orderLogs []OrderLog
	trades    []Trade

	checkInvariants bool
	logger          zerolog.Logger
	metrics         *otel.OrderBookMetrics
}

// Option configures an OrderBook
type Option func(*OrderBook)

// WithClock sets the initial simulation time
func WithClock(ts Timestamp) Option {
	return func(ob *OrderBook) {
		ob.now = ts
	}
}

// WithInvariantChecks toggles the consistency check run after every mutation
func WithInvariantChecks(enabled bool) Option {
	return func(ob *OrderBook) {
		ob.checkInvariants = enabled
	}
}

// WithLogger sets the logger used for debug events
func WithLogger(logger zerolog.Logger) Option {
	return func(ob *OrderBook) {
		ob.logger = logger
	}
}

// NewOrderBook creates an empty OrderBook
func NewOrderBook(opts ...Option) *OrderBook {
	ob := &OrderBook{
		store:           newOrderStore(),
		nextTradeID:     1,
		checkInvariants: true,
		logger:          zerolog.Nop(),
		metrics:         otel.GetOrderBookMetrics(),
	}
	for _, opt := range opts {
		opt(ob)
	}
	return ob
}

// PlaceLimitOrder matches order against the opposite side and rests any
// remainder at its limit price. Errors are returned only for malformed input.
func (ob *OrderBook) PlaceLimitOrder(ctx context.Context, order Order) error {
	if err := order.validate(); err != nil {
		return err
	}
	if !order.IsLimitOrder() {
		return fmt.Errorf("%w: expected limit order, got %s", ErrInvalidArgument, order.Type)
	}
	if ob.store.has(order.ID) {
		return fmt.Errorf("%w: %d", ErrOrderExists, order.ID)
	}

	ctx, span := otel.StartOrderSpan(ctx, otel.SpanPlaceLimitOrder, orderAttributes(order)...)
	defer span.End()

	requested := order.Quantity
	trades := ob.admitLimit(&order)
	ob.verify()

	ob.metrics.RecordOrder(ctx, string(TypeLimit), order.Side.String())
	ob.metrics.RecordTrades(ctx, string(TypeLimit), int64(len(trades)), int64(requested-order.Quantity))

	otel.AddAttributes(span,
		attribute.Int64(otel.AttributeExecutedQuantity, int64(requested-order.Quantity)),
		attribute.Int(otel.AttributeTradeCount, len(trades)),
	)
	span.SetStatus(codes.Ok, "limit order placed")
	return nil
}

// PlaceMarketOrder sweeps the opposite side from the best price outward.
// Unfilled quantity is discarded; market orders never rest.
func (ob *OrderBook) PlaceMarketOrder(ctx context.Context, order Order) error {
	if err := order.validate(); err != nil {
		return err
	}
	if !order.IsMarketOrder() {
		return fmt.Errorf("%w: expected market order, got %s", ErrInvalidArgument, order.Type)
	}

	ctx, span := otel.StartOrderSpan(ctx, otel.SpanPlaceMarketOrder, orderAttributes(order)...)
	defer span.End()

	summary, trades := ob.sweep(&order)
	ob.verify()

	ob.metrics.RecordOrder(ctx, string(TypeMarket), order.Side.String())
	ob.metrics.RecordTrades(ctx, string(TypeMarket), int64(len(trades)), int64(summary.Quantity))

	otel.AddAttributes(span,
		attribute.String(otel.AttributeOrderStatus, string(summary.Status)),
		attribute.Int64(otel.AttributeExecutedQuantity, int64(summary.Quantity)),
		attribute.Int(otel.AttributeTradeCount, len(trades)),
	)
	span.SetStatus(codes.Ok, "market order executed")
	return nil
}

// CancelOrder removes a resting order. Unknown ids are a no-op and return false.
func (ob *OrderBook) CancelOrder(ctx context.Context, id OrderID) bool {
	ctx, span := otel.StartOrderSpan(ctx, otel.SpanCancelOrder,
		attribute.Int64(otel.AttributeOrderID, int64(id)),
	)
	defer span.End()

	order, ok := ob.store.remove(id)
	if !ok {
		span.SetStatus(codes.Ok, "order not found")
		return false
	}

	detail := detailBuyCanceled
	if order.Side == Sell {
		detail = detailSellCanceled
	}
	ob.appendLog(order, order.Price, 0, StatusCanceled, detail)
	ob.verify()

	ob.metrics.RecordCancel(ctx)
	ob.logger.Debug().Uint64("order_id", uint64(id)).Str("side", order.Side.String()).Msg("order canceled")
	span.SetStatus(codes.Ok, "order canceled")
	return true
}

// ModifyOrder replaces a resting order with one carrying the same id and
// trader but new terms, so the order may match immediately. The replacement
// is stamped with the current clock, or with the timestamp of the last order
// at its new price if that is later, so it always queues behind every order
// already resting there. Returns false for unknown ids.
func (ob *OrderBook) ModifyOrder(ctx context.Context, id OrderID, newPrice fpdecimal.Decimal, newQuantity uint64) (bool, error) {
	if newQuantity == 0 {
		return false, ErrInvalidQuantity
	}
	if newPrice.LessThanOrEqual(fpdecimal.Zero) {
		return false, ErrInvalidPrice
	}

	_, span := otel.StartOrderSpan(ctx, otel.SpanModifyOrder,
		attribute.Int64(otel.AttributeOrderID, int64(id)),
		attribute.String(otel.AttributeOrderPrice, newPrice.String()),
		attribute.Int64(otel.AttributeOrderQuantity, int64(newQuantity)),
	)
	defer span.End()

	old, ok := ob.store.remove(id)
	if !ok {
		span.SetStatus(codes.Ok, "order not found")
		return false, nil
	}

	stamp := ob.now
	if tail, ok := ob.store.latest(old.Side, newPrice); ok && tail > stamp {
		stamp = tail
	}

	replacement := Order{
		ID:        old.ID,
		TraderID:  old.TraderID,
		Price:     newPrice,
		Quantity:  newQuantity,
		Side:      old.Side,
		Type:      TypeLimit,
		Timestamp: stamp,
	}
	ob.admitLimit(&replacement)
	ob.appendLog(&replacement, newPrice, newQuantity, StatusPlaced, detailOrderModified)
	ob.verify()

	ob.logger.Debug().
		Uint64("order_id", uint64(id)).
		Str("price", newPrice.String()).
		Uint64("quantity", newQuantity).
		Msg("order modified")
	span.SetStatus(codes.Ok, "order modified")
	return true, nil
}

// AdvanceTime moves the simulation clock to ts. The clock never goes back.
func (ob *OrderBook) AdvanceTime(ts Timestamp) error {
	if ts < ob.now {
		return fmt.Errorf("%w: %d < %d", ErrClockRegression, ts, ob.now)
	}
	ob.now = ts
	return nil
}

// CurrentTime returns the simulation clock
func (ob *OrderBook) CurrentTime() Timestamp {
	return ob.now
}

// InvariantChecks reports whether the book verifies itself after every mutation
func (ob *OrderBook) InvariantChecks() bool {
	return ob.checkInvariants
}

// OrderLogs returns a copy of the order log in insertion order
func (ob *OrderBook) OrderLogs() []OrderLog {
	return append([]OrderLog(nil), ob.orderLogs...)
}

// Trades returns a copy of the trade log in insertion order
func (ob *OrderBook) Trades() []Trade {
	return append([]Trade(nil), ob.trades...)
}

// DrainOrderLogs returns the order log and empties it
func (ob *OrderBook) DrainOrderLogs() []OrderLog {
	logs := ob.orderLogs
	ob.orderLogs = nil
	return logs
}

// DrainTrades returns the trade log and empties it. Trade ids keep counting.
func (ob *OrderBook) DrainTrades() []Trade {
	trades := ob.trades
	ob.trades = nil
	return trades
}

// String implements fmt.Stringer. Asks are printed worst to best so the
// spread sits in the middle of the dump.
func (ob *OrderBook) String() string {
	builder := strings.Builder{}

	builder.WriteString("Ask:")
	asks := ob.RestingOrders(Sell)
	for i := len(asks) - 1; i >= 0; i-- {
		writeLevel(&builder, asks[i])
	}
	builder.WriteString("\n")

	builder.WriteString("Bid:")
	for _, level := range ob.RestingOrders(Buy) {
		writeLevel(&builder, level)
	}
	builder.WriteString("\n")

	return builder.String()
}

func writeLevel(b *strings.Builder, level LevelOrders) {
	var total uint64
	for _, o := range level.Orders {
		total += o.Quantity
	}
	fmt.Fprintf(b, "\n%s -> %d", level.Price, total)
	for _, o := range level.Orders {
		fmt.Fprintf(b, "\n\t%s", o)
	}
}

func (ob *OrderBook) appendLog(o *Order, price fpdecimal.Decimal, quantity uint64, status OrderStatus, details string) {
	ob.orderLogs = append(ob.orderLogs, OrderLog{
		OrderID:   o.ID,
		TraderID:  o.TraderID,
		Price:     price,
		Quantity:  quantity,
		Side:      o.Side,
		Type:      o.Type,
		Status:    status,
		Timestamp: ob.now,
		Details:   details,
	})
}

func (ob *OrderBook) recordTrade(incoming, resting *Order, price fpdecimal.Decimal, quantity uint64) Trade {
	trade := newTrade(ob.nextTradeID, incoming, resting, price, quantity, ob.now)
	ob.nextTradeID++
	ob.trades = append(ob.trades, trade)

	ob.logger.Debug().
		Uint64("trade_id", uint64(trade.TradeID)).
		Uint64("buy_order_id", uint64(trade.BuyOrderID)).
		Uint64("sell_order_id", uint64(trade.SellOrderID)).
		Str("price", price.String()).
		Uint64("quantity", quantity).
		Msg("trade executed")
	return trade
}

func orderAttributes(o Order) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64(otel.AttributeOrderID, int64(o.ID)),
		attribute.Int64(otel.AttributeTraderID, int64(o.TraderID)),
		attribute.String(otel.AttributeOrderSide, o.Side.String()),
		attribute.String(otel.AttributeOrderType, string(o.Type)),
		attribute.Int64(otel.AttributeOrderQuantity, int64(o.Quantity)),
		attribute.String(otel.AttributeOrderPrice, o.Price.String()),
	}
}
