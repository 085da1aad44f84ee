package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Kafka client libraries the simulate command can publish with
const (
	DriverKafkaGo = "kafka-go"
	DriverSarama  = "sarama"
)

// Config represents the simulate command configuration
type Config struct {
	Simulation struct {
		Symbol          string  `yaml:"symbol"`
		StartTime       uint64  `yaml:"start_time"`
		Steps           int     `yaml:"steps"`
		StepSize        uint64  `yaml:"step_size"`
		Seed            int64   `yaml:"seed"`
		InitialMid      float64 `yaml:"initial_mid"`
		RandomAgents    int     `yaml:"random_agents"`
		MarketMakers    int     `yaml:"market_makers"`
		SnapshotEvery   int     `yaml:"snapshot_every"`
		CheckInvariants bool    `yaml:"check_invariants"`
	} `yaml:"simulation"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Kafka struct {
		Enabled    bool   `yaml:"enabled"`
		BrokerAddr string `yaml:"broker_addr"`
		Topic      string `yaml:"topic"`
		Driver     string `yaml:"driver"`
		Tail       bool   `yaml:"tail"`
	} `yaml:"kafka"`

	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Prefix   string        `yaml:"prefix"`
		TTL      time.Duration `yaml:"ttl"`
	} `yaml:"redis"`

	Telemetry struct {
		Enabled        bool    `yaml:"enabled"`
		Endpoint       string  `yaml:"endpoint"`
		SampleRatio    float64 `yaml:"sample_ratio"`
		RuntimeMetrics bool    `yaml:"runtime_metrics"`
	} `yaml:"telemetry"`
}

// Default returns the configuration used when no file or flag says otherwise
func Default() *Config {
	cfg := &Config{}
	cfg.Simulation.Symbol = "SIM"
	cfg.Simulation.Steps = 100
	cfg.Simulation.StepSize = 1
	cfg.Simulation.Seed = 1
	cfg.Simulation.InitialMid = 100
	cfg.Simulation.RandomAgents = 8
	cfg.Simulation.MarketMakers = 1
	cfg.Simulation.SnapshotEvery = 10
	cfg.Simulation.CheckInvariants = true
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "pretty"
	cfg.Kafka.BrokerAddr = "localhost:9092"
	cfg.Kafka.Topic = "lob-events"
	cfg.Kafka.Driver = DriverKafkaGo
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.Prefix = "lobsim"
	cfg.Telemetry.Endpoint = "localhost:4317"
	cfg.Telemetry.SampleRatio = 1
	return cfg
}

// LoadConfig builds the configuration from defaults, then the YAML file named
// by -config, then any flag given explicitly on the command line
func LoadConfig(args []string) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	configFile := fs.String("config", "", "Path to config file (YAML)")
	steps := fs.Int("steps", cfg.Simulation.Steps, "Number of simulation steps")
	seed := fs.Int64("seed", cfg.Simulation.Seed, "Random seed")
	symbol := fs.String("symbol", cfg.Simulation.Symbol, "Instrument symbol used in published events")
	logLevel := fs.String("log_level", cfg.Logging.Level, "Log level: debug, info, warn, error")
	logFormat := fs.String("log_format", cfg.Logging.Format, "Log format: json, pretty")
	kafkaEnabled := fs.Bool("kafka", cfg.Kafka.Enabled, "Publish events to Kafka")
	kafkaDriver := fs.String("kafka_driver", cfg.Kafka.Driver, "Kafka client: kafka-go or sarama")
	redisEnabled := fs.Bool("redis", cfg.Redis.Enabled, "Mirror market data into Redis")
	telemetry := fs.Bool("telemetry", cfg.Telemetry.Enabled, "Export traces and metrics over OTLP")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configFile != "" {
		yamlFile, err := os.ReadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(yamlFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		log.Printf("Loaded configuration from %s", *configFile)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "steps":
			cfg.Simulation.Steps = *steps
		case "seed":
			cfg.Simulation.Seed = *seed
		case "symbol":
			cfg.Simulation.Symbol = *symbol
		case "log_level":
			cfg.Logging.Level = *logLevel
		case "log_format":
			cfg.Logging.Format = *logFormat
		case "kafka":
			cfg.Kafka.Enabled = *kafkaEnabled
		case "kafka_driver":
			cfg.Kafka.Driver = *kafkaDriver
		case "redis":
			cfg.Redis.Enabled = *redisEnabled
		case "telemetry":
			cfg.Telemetry.Enabled = *telemetry
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the simulator cannot run with
func (c *Config) Validate() error {
	if c.Simulation.Steps <= 0 {
		return fmt.Errorf("simulation.steps must be positive, got %d", c.Simulation.Steps)
	}
	if c.Simulation.StepSize == 0 {
		return fmt.Errorf("simulation.step_size must be positive")
	}
	if c.Simulation.InitialMid <= 0 {
		return fmt.Errorf("simulation.initial_mid must be positive, got %v", c.Simulation.InitialMid)
	}
	if c.Simulation.Symbol == "" {
		return fmt.Errorf("simulation.symbol must not be empty")
	}
	if c.Kafka.Driver != DriverKafkaGo && c.Kafka.Driver != DriverSarama {
		return fmt.Errorf("kafka.driver must be %q or %q, got %q", DriverKafkaGo, DriverSarama, c.Kafka.Driver)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1], got %v", c.Telemetry.SampleRatio)
	}
	return nil
}
