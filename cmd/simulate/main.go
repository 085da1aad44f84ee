package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erain9/lobsim/config"
	"github.com/erain9/lobsim/pkg/agent"
	"github.com/erain9/lobsim/pkg/core"
	"github.com/erain9/lobsim/pkg/db/queue"
	"github.com/erain9/lobsim/pkg/logging"
	mdredis "github.com/erain9/lobsim/pkg/marketdata/redis"
	"github.com/erain9/lobsim/pkg/messaging"
	"github.com/erain9/lobsim/pkg/messaging/kafka"
	"github.com/erain9/lobsim/pkg/otel"
	"github.com/erain9/lobsim/pkg/simulator"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"
	"go.uber.org/zap"
)

// id blocks handed to agents; ids below firstAgentOrderID seed the book
const (
	seedTrader          core.TraderID = 0
	firstAgentOrderID   core.OrderID  = 1000
	firstQuoterTraderID core.TraderID = 10000
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	agentCfg, err := agent.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load agent configuration: %v", err)
	}

	// Setup logging
	logger := logging.Setup(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Format == "pretty",
		Output: os.Stdout,
	})
	runID := logging.NewRunID()
	logger = logger.With().Str(string(logging.RunIDKey), runID).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithRunID(logger.WithContext(ctx), runID)

	// Initialize OpenTelemetry
	cleanup, err := otel.Init(otel.Config{
		ServiceVersion:   "0.1.0",
		Endpoint:         cfg.Telemetry.Endpoint,
		SampleRatio:      cfg.Telemetry.SampleRatio,
		CollectorEnabled: cfg.Telemetry.Enabled,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize OpenTelemetry")
	}
	defer cleanup()

	if cfg.Telemetry.Enabled && cfg.Telemetry.RuntimeMetrics {
		if err := otel.StartRuntimeMetrics(time.Second); err != nil {
			logger.Warn().Err(err).Msg("Runtime metrics unavailable")
		}
	}

	opts := []simulator.Option{simulator.WithLogger(logger)}

	sender, err := setupSender(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to set up message sender")
	}
	if sender != nil {
		opts = append(opts, simulator.WithMessageSender(sender))
		logger.Info().Str("driver", cfg.Kafka.Driver).Str("topic", cfg.Kafka.Topic).Msg("Publishing events to Kafka")
	}

	if cfg.Redis.Enabled {
		cache, closeCache, err := setupCache(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to set up Redis market data cache")
		}
		defer closeCache()
		opts = append(opts, simulator.WithMarketDataSink(cache))
		logger.Info().Str("addr", cfg.Redis.Addr).Str("prefix", cfg.Redis.Prefix).Msg("Mirroring market data to Redis")
	}

	// Initialize Kafka consumer (optional)
	// The consumer is for developer purpose which helps pretty print the
	// events as they land on the topic.
	if cfg.Kafka.Enabled && cfg.Kafka.Tail {
		consumer, err := kafka.SetupConsumer(ctx, kafka.ConsumerConfig{
			Brokers: []string{cfg.Kafka.BrokerAddr},
			Topic:   cfg.Kafka.Topic,
			GroupID: "lobsim-tail-" + runID,
		}, logging.Component(ctx, "consumer"))
		if err == nil && consumer != nil {
			defer consumer.Close()
		}
	}

	sim := simulator.New(simulator.Config{
		Symbol:              cfg.Simulation.Symbol,
		StartTime:           core.Timestamp(cfg.Simulation.StartTime),
		SkipInvariantChecks: !cfg.Simulation.CheckInvariants,
	}, opts...)
	defer func() {
		if err := sim.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close message sender")
		}
	}()

	if err := seedBook(ctx, sim, cfg.Simulation.InitialMid); err != nil {
		logger.Fatal().Err(err).Msg("Failed to seed the book")
	}

	runner := agent.NewRunner(sim, buildAgents(cfg, agentCfg, logger), cfg.Simulation.Seed, cfg.Simulation.StepSize, logger)

	logger.Info().
		Str("symbol", cfg.Simulation.Symbol).
		Int("steps", cfg.Simulation.Steps).
		Int64("seed", cfg.Simulation.Seed).
		Msg("Starting simulation")

	done := logging.Track(logger, "simulation")
	step := 0
	err = runner.Run(ctx, cfg.Simulation.Steps, func(ctx context.Context, result agent.StepResult) error {
		step++
		if err := sim.Publish(ctx); err != nil {
			logger.Warn().Err(err).Int("step", step).Msg("Publish failed; events will be retried")
		}
		if cfg.Simulation.SnapshotEvery > 0 && step%cfg.Simulation.SnapshotEvery == 0 {
			if err := sim.PublishSnapshot(ctx); err != nil {
				logger.Warn().Err(err).Int("step", step).Msg("Snapshot publish failed")
			}
		}
		logger.Debug().
			Uint64("time", uint64(result.Time)).
			Int("submitted", result.Submitted).
			Int("rejected", len(result.Rejections)).
			Int("canceled", result.Canceled).
			Msg("Step complete")
		return nil
	})
	if errors.Is(err, context.Canceled) {
		logger.Info().Int("step", step).Msg("Interrupted, shutting down")
		err = nil
	}
	done(err)

	// Flush whatever the last step produced
	if err := sim.Publish(context.Background()); err != nil {
		logger.Warn().Err(err).Msg("Final publish failed")
	}

	report(logger, sim)
	if err != nil {
		os.Exit(1)
	}
}

// setupSender returns the Kafka sender for the configured driver, or nil when
// Kafka is disabled
func setupSender(cfg *config.Config) (messaging.MessageSender, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}

	switch cfg.Kafka.Driver {
	case config.DriverSarama:
		sender, err := queue.NewQueueMessageSender([]string{cfg.Kafka.BrokerAddr}, cfg.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		return sender, nil
	case config.DriverKafkaGo:
		sender, err := kafka.NewKafkaMessageSender(cfg.Kafka.BrokerAddr, cfg.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		return sender, nil
	default:
		return nil, fmt.Errorf("unknown kafka driver %q", cfg.Kafka.Driver)
	}
}

func setupCache(ctx context.Context, cfg *config.Config) (*mdredis.Cache, func(), error) {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create zap logger: %w", err)
	}

	client := mdredis.NewClient(mdredis.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}

	cleanup := func() {
		_ = zapLogger.Sync()
		client.Close()
	}
	return mdredis.NewCache(client, cfg.Redis.Prefix+":"+cfg.Simulation.Symbol, cfg.Redis.TTL, zapLogger), cleanup, nil
}

// seedBook rests one bid and one ask 20% either side of mid so the agents
// have a market to quote around
func seedBook(ctx context.Context, sim *simulator.Simulator, mid float64) error {
	sim.StageLimitOrder(simulator.PendingOrder{
		OrderID:  1,
		TraderID: seedTrader,
		Side:     core.Buy,
		Price:    fpdecimal.FromFloat(mid * 0.8),
		Quantity: 100,
	})
	result, err := sim.SubmitPendingOrders(ctx)
	if err != nil {
		return err
	}

	sim.StageLimitOrder(simulator.PendingOrder{
		OrderID:  2,
		TraderID: seedTrader,
		Side:     core.Sell,
		Price:    fpdecimal.FromFloat(mid * 1.2),
		Quantity: 100,
	})
	more, err := sim.SubmitPendingOrders(ctx)
	if err != nil {
		return err
	}

	if rejected := append(result.Rejections, more.Rejections...); len(rejected) > 0 {
		return fmt.Errorf("seed order %d rejected: %w", rejected[0].OrderID, rejected[0].Err)
	}
	return nil
}

func buildAgents(cfg *config.Config, agentCfg *agent.Config, logger zerolog.Logger) []agent.Agent {
	var agents []agent.Agent
	next := firstAgentOrderID
	size := core.OrderID(agentCfg.IDRangeSize)

	for i := range cfg.Simulation.RandomAgents {
		ids := agent.NewIDRange(next, next+size)
		next += size
		agents = append(agents, agent.NewRandomAgent(
			fmt.Sprintf("random-%d", i+1),
			core.TraderID(i+1),
			ids,
			agentCfg.Random(cfg.Simulation.InitialMid),
		))
	}

	quoterTraders := core.TraderID(2 * agentCfg.NumLevels)
	for i := range cfg.Simulation.MarketMakers {
		ids := agent.NewIDRange(next, next+size)
		next += size
		agents = append(agents, agent.NewLayeredQuoter(
			fmt.Sprintf("mm-%d", i+1),
			firstQuoterTraderID+core.TraderID(i)*quoterTraders,
			ids,
			agentCfg.Quoter(cfg.Simulation.InitialMid),
			logger,
		))
	}
	return agents
}

func report(logger zerolog.Logger, sim *simulator.Simulator) {
	l1 := sim.Level1()
	logger.Info().
		Uint64("time", uint64(sim.CurrentTime())).
		Int("order_logs", len(sim.OrderLogs())).
		Int("trades", len(sim.Trades())).
		Bool("has_bid", l1.HasBid).
		Str("best_bid", l1.BidPrice.String()).
		Bool("has_ask", l1.HasAsk).
		Str("best_ask", l1.AskPrice.String()).
		Msg("Simulation completed")
}
