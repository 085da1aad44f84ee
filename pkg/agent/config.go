package agent

import (
	"fmt"

	"github.com/nikolaydubina/fpdecimal"
	"github.com/spf13/viper"
)

// Config holds the agent parameters read from AGENT_* environment variables
type Config struct {
	// Random agent settings
	TradeProbability float64
	MaxOrders        int
	MaxQuantity      uint64
	PriceBandPercent float64
	MinPrice         string // Decimal string
	IDRangeSize      uint64

	// Market making parameters
	NumLevels         int
	BaseSpreadPercent float64
	PriceStepPercent  float64
	OrderSize         uint64
	QuoteEvery        int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("AGENT_TRADE_PROBABILITY", 0.35)
	v.SetDefault("AGENT_MAX_ORDERS", 5)
	v.SetDefault("AGENT_MAX_QUANTITY", 10)
	v.SetDefault("AGENT_PRICE_BAND_PERCENT", 5)
	v.SetDefault("AGENT_MIN_PRICE", "0.01")
	v.SetDefault("AGENT_ID_RANGE_SIZE", 7000)
	v.SetDefault("AGENT_MM_NUM_LEVELS", 3)
	v.SetDefault("AGENT_MM_BASE_SPREAD_PERCENT", 0.1)
	v.SetDefault("AGENT_MM_PRICE_STEP_PERCENT", 0.05)
	v.SetDefault("AGENT_MM_ORDER_SIZE", 10)
	v.SetDefault("AGENT_MM_QUOTE_EVERY", 5)

	// Allow environment variables
	v.AutomaticEnv()

	cfg := &Config{
		TradeProbability:  v.GetFloat64("AGENT_TRADE_PROBABILITY"),
		MaxOrders:         v.GetInt("AGENT_MAX_ORDERS"),
		MaxQuantity:       v.GetUint64("AGENT_MAX_QUANTITY"),
		PriceBandPercent:  v.GetFloat64("AGENT_PRICE_BAND_PERCENT"),
		MinPrice:          v.GetString("AGENT_MIN_PRICE"),
		IDRangeSize:       v.GetUint64("AGENT_ID_RANGE_SIZE"),
		NumLevels:         v.GetInt("AGENT_MM_NUM_LEVELS"),
		BaseSpreadPercent: v.GetFloat64("AGENT_MM_BASE_SPREAD_PERCENT"),
		PriceStepPercent:  v.GetFloat64("AGENT_MM_PRICE_STEP_PERCENT"),
		OrderSize:         v.GetUint64("AGENT_MM_ORDER_SIZE"),
		QuoteEvery:        v.GetInt("AGENT_MM_QUOTE_EVERY"),
	}

	// Validate configuration
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.TradeProbability < 0 || cfg.TradeProbability > 1 {
		return fmt.Errorf("AGENT_TRADE_PROBABILITY must be within [0, 1]")
	}
	if cfg.MaxOrders <= 0 {
		return fmt.Errorf("AGENT_MAX_ORDERS must be positive")
	}
	if cfg.MaxQuantity == 0 {
		return fmt.Errorf("AGENT_MAX_QUANTITY must be positive")
	}
	if cfg.PriceBandPercent < 0 || cfg.PriceBandPercent >= 100 {
		return fmt.Errorf("AGENT_PRICE_BAND_PERCENT must be within [0, 100)")
	}
	minPrice, err := fpdecimal.FromString(cfg.MinPrice)
	if err != nil {
		return fmt.Errorf("AGENT_MIN_PRICE: %w", err)
	}
	if minPrice.LessThanOrEqual(fpdecimal.Zero) {
		return fmt.Errorf("AGENT_MIN_PRICE must be positive")
	}
	if cfg.IDRangeSize == 0 {
		return fmt.Errorf("AGENT_ID_RANGE_SIZE must be positive")
	}
	if cfg.NumLevels <= 0 {
		return fmt.Errorf("AGENT_MM_NUM_LEVELS must be positive")
	}
	if cfg.BaseSpreadPercent <= 0 {
		return fmt.Errorf("AGENT_MM_BASE_SPREAD_PERCENT must be positive")
	}
	if cfg.PriceStepPercent <= 0 {
		return fmt.Errorf("AGENT_MM_PRICE_STEP_PERCENT must be positive")
	}
	if cfg.OrderSize == 0 {
		return fmt.Errorf("AGENT_MM_ORDER_SIZE must be positive")
	}
	if cfg.QuoteEvery <= 0 {
		return fmt.Errorf("AGENT_MM_QUOTE_EVERY must be positive")
	}
	return nil
}

// Random returns the RandomAgent settings with the given starting mid
func (c *Config) Random(initialMid float64) RandomConfig {
	minPrice, _ := fpdecimal.FromString(c.MinPrice)
	return RandomConfig{
		TradeProbability: c.TradeProbability,
		MaxOrders:        c.MaxOrders,
		MaxQuantity:      c.MaxQuantity,
		PriceBand:        c.PriceBandPercent / 100,
		MinPrice:         minPrice,
		InitialMid:       initialMid,
	}
}

// Quoter returns the LayeredQuoter settings with the given starting mid
func (c *Config) Quoter(initialMid float64) QuoterConfig {
	return QuoterConfig{
		NumLevels:         c.NumLevels,
		BaseSpreadPercent: c.BaseSpreadPercent,
		PriceStepPercent:  c.PriceStepPercent,
		OrderSize:         c.OrderSize,
		QuoteEvery:        c.QuoteEvery,
		InitialMid:        initialMid,
	}
}
