package agent

import (
	"errors"
	"math/rand/v2"

	"github.com/erain9/lobsim/pkg/core"
	"github.com/erain9/lobsim/pkg/simulator"
	"github.com/nikolaydubina/fpdecimal"
)

// ErrIDRangeExhausted is returned when an agent has used every order id it owns
var ErrIDRangeExhausted = errors.New("order id range exhausted")

// MarketView is what an agent sees before deciding: top of book and its own
// resting orders
type MarketView struct {
	Time    core.Timestamp
	Level1  core.Level1Data
	Resting []core.Order
}

// Decision is what an agent wants done this step. Cancels run before any
// order is staged.
type Decision struct {
	Cancels []core.OrderID
	Orders  []simulator.PendingOrder
}

// Agent is a trading strategy driven by the Runner
type Agent interface {
	Name() string
	// Traders lists the trader ids the agent submits under
	Traders() []core.TraderID
	Update(view MarketView)
	Decide(rng *rand.Rand) (Decision, error)
}

// IDRange hands out order ids from [start, end) in increasing order
type IDRange struct {
	next core.OrderID
	end  core.OrderID
}

// NewIDRange creates an IDRange over [start, end)
func NewIDRange(start, end core.OrderID) *IDRange {
	return &IDRange{next: start, end: end}
}

// Next returns an unused id
func (r *IDRange) Next() (core.OrderID, error) {
	if r.next >= r.end {
		return 0, ErrIDRangeExhausted
	}
	id := r.next
	r.next++
	return id, nil
}

// Remaining returns how many ids are left
func (r *IDRange) Remaining() uint64 {
	if r.next >= r.end {
		return 0
	}
	return uint64(r.end - r.next)
}

// ownBest returns the best bid and best ask among orders
func ownBest(orders []core.Order) (bid fpdecimal.Decimal, hasBid bool, ask fpdecimal.Decimal, hasAsk bool) {
	for _, o := range orders {
		switch o.Side {
		case core.Buy:
			if !hasBid || o.Price.GreaterThan(bid) {
				bid, hasBid = o.Price, true
			}
		case core.Sell:
			if !hasAsk || o.Price.LessThan(ask) {
				ask, hasAsk = o.Price, true
			}
		}
	}
	return bid, hasBid, ask, hasAsk
}
