package otel

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	ServiceSimulator      = "lob-simulator"
	ServiceMatchingEngine = "matching-engine"
)

var (
	mu                      sync.RWMutex
	simulatorTracer         trace.Tracer
	matchingEngineTracer    trace.Tracer
	simulatorTracerProvider *sdktrace.TracerProvider
	matchingTracerProvider  *sdktrace.TracerProvider
	meterProvider           *sdkmetric.MeterProvider
)

// Config holds the OpenTelemetry configuration
type Config struct {
	ServiceVersion   string
	Endpoint         string
	ConnectTimeout   time.Duration
	MetricInterval   time.Duration
	SampleRatio      float64
	CollectorEnabled bool
}

func (c *Config) setDefaults() {
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.1.0"
	}
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4317"
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.MetricInterval == 0 {
		c.MetricInterval = 5 * time.Second
	}
	if c.SampleRatio <= 0 {
		c.SampleRatio = 1
	}
}

// Init wires trace and metric exporters to an OTLP collector. With the
// collector disabled it is a no-op and spans go to the global (noop)
// provider. The returned function flushes and shuts everything down.
func Init(cfg Config) (func(), error) {
	cfg.setDefaults()

	if !cfg.CollectorEnabled {
		return func() {}, nil
	}

	var cleanup []func()
	shutdown := func(name string, fn func(context.Context) error) func() {
		return func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
			defer cancel()
			if err := fn(ctx); err != nil {
				log.Printf("Error shutting down %s: %v", name, err)
			}
		}
	}

	simulatorTP, err := initTracerProvider(cfg, initResource(ServiceSimulator, cfg.ServiceVersion))
	if err != nil {
		log.Printf("Warning: Failed to initialize simulator tracer provider: %v", err)
	} else {
		cleanup = append(cleanup, shutdown("simulator tracer provider", simulatorTP.Shutdown))
	}

	matchingTP, err := initTracerProvider(cfg, initResource(ServiceMatchingEngine, cfg.ServiceVersion))
	if err != nil {
		log.Printf("Warning: Failed to initialize matching engine tracer provider: %v", err)
	} else {
		cleanup = append(cleanup, shutdown("matching engine tracer provider", matchingTP.Shutdown))
	}

	mp, err := initMeterProvider(cfg, initResource(ServiceSimulator, cfg.ServiceVersion))
	if err != nil {
		log.Printf("Warning: Failed to initialize meter provider: %v. Continuing without metrics.", err)
	} else {
		cleanup = append(cleanup, shutdown("meter provider", mp.Shutdown))
	}

	mu.Lock()
	if simulatorTP != nil {
		simulatorTracerProvider = simulatorTP
		simulatorTracer = simulatorTP.Tracer(ServiceSimulator)
		otel.SetTracerProvider(simulatorTP)
	}
	if matchingTP != nil {
		matchingTracerProvider = matchingTP
		matchingEngineTracer = matchingTP.Tracer(ServiceMatchingEngine)
	}
	if mp != nil {
		meterProvider = mp
		otel.SetMeterProvider(mp)
	}
	mu.Unlock()

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return func() {
		for _, fn := range cleanup {
			fn()
		}
	}, nil
}

func initResource(serviceName, serviceVersion string) *sdkresource.Resource {
	extraResources, err := sdkresource.New(
		context.Background(),
		sdkresource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
		sdkresource.WithOS(),
		sdkresource.WithProcess(),
		sdkresource.WithHost(),
	)
	if err != nil {
		log.Printf("Failed to create resource: %v", err)
		return sdkresource.Default()
	}

	resource, err := sdkresource.Merge(sdkresource.Default(), extraResources)
	if err != nil {
		log.Printf("Failed to merge resources: %v", err)
		return sdkresource.Default()
	}
	return resource
}

func initTracerProvider(cfg Config, resource *sdkresource.Resource) (*sdktrace.TracerProvider, error) {
	conn, err := dialCollector(cfg)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracegrpc.New(context.Background(), otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource),
		sdktrace.WithSampler(sdktrace.ParentBased(
			sdktrace.TraceIDRatioBased(cfg.SampleRatio),
		)),
	), nil
}

func initMeterProvider(cfg Config, resource *sdkresource.Resource) (*sdkmetric.MeterProvider, error) {
	conn, err := dialCollector(cfg)
	if err != nil {
		return nil, err
	}

	exporter, err := otlpmetricgrpc.New(context.Background(), otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.MetricInterval))),
		sdkmetric.WithResource(resource),
	), nil
}

// SimulatorTracer returns the tracer for the simulation loop. Falls back to
// the global provider when Init has not configured one.
func SimulatorTracer() trace.Tracer {
	mu.RLock()
	defer mu.RUnlock()
	if simulatorTracer != nil {
		return simulatorTracer
	}
	return otel.GetTracerProvider().Tracer(ServiceSimulator)
}

// MatchingEngineTracer returns the tracer for order book operations
func MatchingEngineTracer() trace.Tracer {
	mu.RLock()
	defer mu.RUnlock()
	if matchingEngineTracer != nil {
		return matchingEngineTracer
	}
	return otel.GetTracerProvider().Tracer(ServiceMatchingEngine)
}

// GetTracerProvider returns the tracer provider registered for serviceName
func GetTracerProvider(serviceName string) trace.TracerProvider {
	mu.RLock()
	defer mu.RUnlock()
	switch serviceName {
	case ServiceSimulator:
		if simulatorTracerProvider != nil {
			return simulatorTracerProvider
		}
	case ServiceMatchingEngine:
		if matchingTracerProvider != nil {
			return matchingTracerProvider
		}
	}
	return otel.GetTracerProvider()
}

// GetMeterProvider returns the configured meter provider, or the global one
func GetMeterProvider() metric.MeterProvider {
	mu.RLock()
	defer mu.RUnlock()
	if meterProvider != nil {
		return meterProvider
	}
	return otel.GetMeterProvider()
}

// InitForTesting routes both tracers to tracer
func InitForTesting(tracer trace.Tracer) {
	mu.Lock()
	defer mu.Unlock()
	simulatorTracer = tracer
	matchingEngineTracer = tracer
}

// ResetForTesting drops any configured tracers
func ResetForTesting() {
	mu.Lock()
	defer mu.Unlock()
	simulatorTracer = nil
	matchingEngineTracer = nil
	simulatorTracerProvider = nil
	matchingTracerProvider = nil
	meterProvider = nil
}
