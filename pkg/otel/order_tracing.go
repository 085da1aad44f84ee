package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Span names
	SpanPlaceLimitOrder  = "place_limit_order"
	SpanPlaceMarketOrder = "place_market_order"
	SpanCancelOrder      = "cancel_order"
	SpanModifyOrder      = "modify_order"
	SpanSubmitPending    = "submit_pending_orders"
	SpanAgentStep        = "agent_step"
	SpanPublish          = "publish_events"

	// Attribute keys
	AttributeOrderID          = "order.id"
	AttributeTraderID         = "order.trader_id"
	AttributeOrderSide        = "order.side"
	AttributeOrderType        = "order.type"
	AttributeOrderQuantity    = "order.quantity"
	AttributeOrderPrice       = "order.price"
	AttributeOrderStatus      = "order.status"
	AttributeExecutedQuantity = "order.executed_quantity"
	AttributeTradeCount       = "trade.count"
	AttributeSimulationTime   = "simulation.time"
	AttributePendingCount     = "simulation.pending_orders"
	AttributeEventCount       = "publish.event_count"
)

// StartOrderSpan starts a span on the tracer that owns name. It never returns
// a nil span.
func StartOrderSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	var tracer trace.Tracer

	switch name {
	case SpanPlaceLimitOrder, SpanPlaceMarketOrder, SpanCancelOrder, SpanModifyOrder:
		tracer = MatchingEngineTracer()
	default:
		tracer = SimulatorTracer()
	}

	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// AddAttributes adds attributes to a span
func AddAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	span.SetAttributes(attrs...)
}
