package agent

import (
	"math/rand/v2"

	"github.com/erain9/lobsim/pkg/core"
	"github.com/erain9/lobsim/pkg/simulator"
	"github.com/nikolaydubina/fpdecimal"
)

// tick is the minimum distance the random agent keeps from its own quotes
var tick = fpdecimal.FromFloat(0.01)

// RandomConfig parameterizes a RandomAgent
type RandomConfig struct {
	TradeProbability float64
	MaxOrders        int
	MaxQuantity      uint64
	PriceBand        float64 // fraction of mid, e.g. 0.05
	MinPrice         fpdecimal.Decimal
	InitialMid       float64
}

// DefaultRandomConfig trades 35% of steps, 1..5 orders of 1..10 within 5% of mid
func DefaultRandomConfig() RandomConfig {
	return RandomConfig{
		TradeProbability: 0.35,
		MaxOrders:        5,
		MaxQuantity:      10,
		PriceBand:        0.05,
		MinPrice:         tick,
		InitialMid:       0.01,
	}
}

// RandomAgent places random limit orders around the mid price. It never
// crosses its own resting quotes.
type RandomAgent struct {
	name   string
	trader core.TraderID
	ids    *IDRange
	cfg    RandomConfig

	mid     float64
	resting []core.Order
}

// NewRandomAgent creates a RandomAgent submitting as trader with order ids from ids
func NewRandomAgent(name string, trader core.TraderID, ids *IDRange, cfg RandomConfig) *RandomAgent {
	return &RandomAgent{
		name:   name,
		trader: trader,
		ids:    ids,
		cfg:    cfg,
		mid:    max(cfg.InitialMid, cfg.MinPrice.Float64()),
	}
}

// Name implements Agent
func (a *RandomAgent) Name() string {
	return a.name
}

// Traders implements Agent
func (a *RandomAgent) Traders() []core.TraderID {
	return []core.TraderID{a.trader}
}

// Update implements Agent. The mid is only replaced when both sides are quoted.
func (a *RandomAgent) Update(view MarketView) {
	if view.Level1.HasBid && view.Level1.HasAsk {
		if mid := view.Level1.MidPrice.Float64(); mid > 0 {
			a.mid = mid
		}
	}
	a.mid = max(a.mid, a.cfg.MinPrice.Float64())
	a.resting = view.Resting
}

// Mid returns the reference price the agent quotes around
func (a *RandomAgent) Mid() float64 {
	return a.mid
}

// Decide implements Agent
func (a *RandomAgent) Decide(rng *rand.Rand) (Decision, error) {
	var d Decision
	if rng.Float64() >= a.cfg.TradeProbability {
		return d, nil
	}

	bestBid, hasBid, bestAsk, hasAsk := ownBest(a.resting)
	count := 1 + rng.IntN(a.cfg.MaxOrders)

	for range count {
		id, err := a.ids.Next()
		if err != nil {
			return d, err
		}

		side := core.Buy
		if rng.IntN(2) == 1 {
			side = core.Sell
		}
		quantity := 1 + rng.Uint64N(a.cfg.MaxQuantity)
		offset := (rng.Float64()*2 - 1) * a.cfg.PriceBand
		price := maxDecimal(a.cfg.MinPrice, fpdecimal.FromFloat(a.mid*(1+offset)))

		if side == core.Sell && hasBid {
			price = maxDecimal(price, bestBid.Add(tick))
		} else if side == core.Buy && hasAsk {
			price = minDecimal(price, bestAsk.Sub(tick))
		}
		price = maxDecimal(price, a.cfg.MinPrice)

		d.Orders = append(d.Orders, simulator.PendingOrder{
			OrderID:  id,
			TraderID: a.trader,
			Side:     side,
			Price:    price,
			Quantity: quantity,
		})

		if side == core.Buy && (!hasBid || price.GreaterThan(bestBid)) {
			bestBid, hasBid = price, true
		}
		if side == core.Sell && (!hasAsk || price.LessThan(bestAsk)) {
			bestAsk, hasAsk = price, true
		}
	}
	return d, nil
}

func maxDecimal(a, b fpdecimal.Decimal) fpdecimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

func minDecimal(a, b fpdecimal.Decimal) fpdecimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
