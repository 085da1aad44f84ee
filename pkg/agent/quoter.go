package agent

import (
	"math/rand/v2"

	"github.com/erain9/lobsim/pkg/core"
	"github.com/erain9/lobsim/pkg/simulator"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"
)

// QuoterConfig parameterizes a LayeredQuoter
type QuoterConfig struct {
	NumLevels         int
	BaseSpreadPercent float64
	PriceStepPercent  float64
	OrderSize         uint64
	QuoteEvery        int // steps between requotes
	InitialMid        float64
}

// LayeredQuoter is a symmetric market maker: NumLevels bids and asks spaced
// PriceStepPercent apart around the mid, the innermost pair BaseSpreadPercent
// wide. Each rung quotes under its own trader id so a whole ladder can be
// staged in one batch. Every requote cancels the previous ladder first.
type LayeredQuoter struct {
	name       string
	baseTrader core.TraderID
	ids        *IDRange
	cfg        QuoterConfig
	logger     zerolog.Logger

	mid     float64
	steps   int
	resting []core.Order
}

// NewLayeredQuoter creates a LayeredQuoter using trader ids
// [baseTrader, baseTrader+2*NumLevels)
func NewLayeredQuoter(name string, baseTrader core.TraderID, ids *IDRange, cfg QuoterConfig, logger zerolog.Logger) *LayeredQuoter {
	return &LayeredQuoter{
		name:       name,
		baseTrader: baseTrader,
		ids:        ids,
		cfg:        cfg,
		logger:     logger.With().Str("component", "LayeredQuoter").Str("agent", name).Logger(),
		mid:        cfg.InitialMid,
	}
}

// Name implements Agent
func (q *LayeredQuoter) Name() string {
	return q.name
}

// Traders implements Agent
func (q *LayeredQuoter) Traders() []core.TraderID {
	traders := make([]core.TraderID, 0, q.cfg.NumLevels*2)
	for i := range q.cfg.NumLevels * 2 {
		traders = append(traders, q.baseTrader+core.TraderID(i))
	}
	return traders
}

// Update implements Agent
func (q *LayeredQuoter) Update(view MarketView) {
	if view.Level1.HasBid && view.Level1.HasAsk {
		q.mid = view.Level1.MidPrice.Float64()
	}
	q.resting = view.Resting
}

// Decide implements Agent. Between requotes it does nothing.
func (q *LayeredQuoter) Decide(_ *rand.Rand) (Decision, error) {
	var d Decision

	q.steps++
	if q.cfg.QuoteEvery > 1 && (q.steps-1)%q.cfg.QuoteEvery != 0 {
		return d, nil
	}

	for _, o := range q.resting {
		d.Cancels = append(d.Cancels, o.ID)
	}
	if q.mid <= 0 {
		return d, nil
	}

	orders, err := q.Ladder(q.mid)
	d.Orders = orders
	return d, err
}

// Ladder computes the quotes around mid, innermost rung first, bid before ask
func (q *LayeredQuoter) Ladder(mid float64) ([]simulator.PendingOrder, error) {
	baseHalfSpread := mid * (q.cfg.BaseSpreadPercent / 2 / 100)
	priceStep := mid * (q.cfg.PriceStepPercent / 100)

	orders := make([]simulator.PendingOrder, 0, q.cfg.NumLevels*2)
	for i := 1; i <= q.cfg.NumLevels; i++ {
		bidPrice := fpdecimal.FromFloat(mid - baseHalfSpread - float64(i-1)*priceStep)
		askPrice := fpdecimal.FromFloat(mid + baseHalfSpread + float64(i-1)*priceStep)
		rung := core.TraderID(2 * (i - 1))

		if bidPrice.GreaterThan(fpdecimal.Zero) {
			id, err := q.ids.Next()
			if err != nil {
				return orders, err
			}
			orders = append(orders, simulator.PendingOrder{
				OrderID:  id,
				TraderID: q.baseTrader + rung,
				Side:     core.Buy,
				Price:    bidPrice,
				Quantity: q.cfg.OrderSize,
			})
		}

		id, err := q.ids.Next()
		if err != nil {
			return orders, err
		}
		orders = append(orders, simulator.PendingOrder{
			OrderID:  id,
			TraderID: q.baseTrader + rung + 1,
			Side:     core.Sell,
			Price:    askPrice,
			Quantity: q.cfg.OrderSize,
		})

		q.logger.Debug().
			Int("level", i).
			Str("bid_price", bidPrice.String()).
			Str("ask_price", askPrice.String()).
			Uint64("quantity", q.cfg.OrderSize).
			Msg("calculated quote pair")
	}
	return orders, nil
}
