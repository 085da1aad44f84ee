package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	orderBookMetrics     *OrderBookMetrics
	orderBookMetricsOnce sync.Once
)

// OrderBookMetrics holds the counters the matching engine reports
type OrderBookMetrics struct {
	ordersTotal  metric.Int64Counter
	tradesTotal  metric.Int64Counter
	tradedVolume metric.Int64Counter
	cancelsTotal metric.Int64Counter
}

// GetOrderBookMetrics returns the OrderBookMetrics singleton. Instruments that
// fail to register are left nil and silently skipped.
func GetOrderBookMetrics() *OrderBookMetrics {
	orderBookMetricsOnce.Do(func() {
		meter := GetMeterProvider().Meter(instrumentationName)
		m := &OrderBookMetrics{}

		m.ordersTotal, _ = meter.Int64Counter(
			"orderbook.orders.total",
			metric.WithDescription("Total number of orders accepted by the book"),
			metric.WithUnit("{order}"),
		)
		m.tradesTotal, _ = meter.Int64Counter(
			"orderbook.trades.total",
			metric.WithDescription("Total number of trades executed"),
			metric.WithUnit("{trade}"),
		)
		m.tradedVolume, _ = meter.Int64Counter(
			"orderbook.traded_volume.total",
			metric.WithDescription("Total quantity traded"),
			metric.WithUnit("{unit}"),
		)
		m.cancelsTotal, _ = meter.Int64Counter(
			"orderbook.cancels.total",
			metric.WithDescription("Total number of orders canceled"),
			metric.WithUnit("{order}"),
		)
		orderBookMetrics = m
	})
	return orderBookMetrics
}

// RecordOrder increments the accepted orders counter
func (m *OrderBookMetrics) RecordOrder(ctx context.Context, orderType, side string) {
	if m.ordersTotal == nil {
		return
	}
	m.ordersTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("order.type", orderType),
		attribute.String("order.side", side),
	))
}

// RecordTrades adds count trades totalling volume units
func (m *OrderBookMetrics) RecordTrades(ctx context.Context, orderType string, count int64, volume int64) {
	if count == 0 {
		return
	}
	attrs := metric.WithAttributes(attribute.String("order.type", orderType))
	if m.tradesTotal != nil {
		m.tradesTotal.Add(ctx, count, attrs)
	}
	if m.tradedVolume != nil {
		m.tradedVolume.Add(ctx, volume, attrs)
	}
}

// RecordCancel increments the cancel counter
func (m *OrderBookMetrics) RecordCancel(ctx context.Context) {
	if m.cancelsTotal == nil {
		return
	}
	m.cancelsTotal.Add(ctx, 1)
}
