package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName = "github.com/erain9/lobsim/pkg/otel"
)

var (
	simulatorMetrics     *SimulatorMetrics
	simulatorMetricsOnce sync.Once
)

// SimulatorMetrics holds the instruments for the simulation loop
type SimulatorMetrics struct {
	// Latency metrics
	stepLatency metric.Float64Histogram

	// Traffic metrics
	submittedTotal metric.Int64Counter
	rejectedTotal  metric.Int64Counter
	publishedTotal metric.Int64Counter

	// Error metrics
	publishErrors metric.Int64Counter
}

// NewSimulatorMetrics creates a new SimulatorMetrics instance
func NewSimulatorMetrics(meter metric.Meter) (*SimulatorMetrics, error) {
	stepLatency, err := meter.Float64Histogram(
		"simulator.step.duration",
		metric.WithDescription("Wall time (seconds) spent flushing one batch of pending orders"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	submittedTotal, err := meter.Int64Counter(
		"simulator.orders.submitted",
		metric.WithDescription("Total number of pending orders submitted to the book"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, err
	}

	rejectedTotal, err := meter.Int64Counter(
		"simulator.orders.rejected",
		metric.WithDescription("Total number of pending orders rejected by the book"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, err
	}

	publishedTotal, err := meter.Int64Counter(
		"simulator.events.published",
		metric.WithDescription("Total number of events handed to the message sender"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	publishErrors, err := meter.Int64Counter(
		"simulator.publish.errors",
		metric.WithDescription("Total number of failed publish attempts"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &SimulatorMetrics{
		stepLatency:    stepLatency,
		submittedTotal: submittedTotal,
		rejectedTotal:  rejectedTotal,
		publishedTotal: publishedTotal,
		publishErrors:  publishErrors,
	}, nil
}

// GetSimulatorMetrics returns a singleton instance of SimulatorMetrics built
// on the configured meter provider
func GetSimulatorMetrics() (*SimulatorMetrics, error) {
	var err error
	simulatorMetricsOnce.Do(func() {
		simulatorMetrics, err = NewSimulatorMetrics(GetMeterProvider().Meter(instrumentationName))
	})
	if err != nil {
		return nil, err
	}
	return simulatorMetrics, nil
}

// RecordStep records one flush of pending orders
func (m *SimulatorMetrics) RecordStep(ctx context.Context, symbol string, duration time.Duration, submitted, rejected int) {
	attrs := metric.WithAttributes(attribute.String("symbol", symbol))
	m.stepLatency.Record(ctx, duration.Seconds(), attrs)
	m.submittedTotal.Add(ctx, int64(submitted), attrs)
	m.rejectedTotal.Add(ctx, int64(rejected), attrs)
}

// RecordPublish records one publish attempt of count events
func (m *SimulatorMetrics) RecordPublish(ctx context.Context, sink string, count int, err error) {
	attrs := metric.WithAttributes(attribute.String("sink", sink))
	if err != nil {
		m.publishErrors.Add(ctx, 1, attrs)
		return
	}
	m.publishedTotal.Add(ctx, int64(count), attrs)
}
