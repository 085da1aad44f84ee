package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/erain9/lobsim/pkg/core"
	"github.com/erain9/lobsim/pkg/otel"
	"github.com/erain9/lobsim/pkg/simulator"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// StepResult summarizes one Runner step
type StepResult struct {
	Time       core.Timestamp
	Canceled   int
	Submitted  int
	Rejections []simulator.Rejection
}

// Runner drives agents against a simulator one step at a time
type Runner struct {
	sim      *simulator.Simulator
	agents   []Agent
	rng      *rand.Rand
	stepSize uint64
	logger   zerolog.Logger

	exhausted map[string]bool
}

// NewRunner creates a Runner. seed makes agent decisions reproducible.
func NewRunner(sim *simulator.Simulator, agents []Agent, seed int64, stepSize uint64, logger zerolog.Logger) *Runner {
	return &Runner{
		sim:       sim,
		agents:    agents,
		rng:       rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)),
		stepSize:  stepSize,
		logger:    logger.With().Str("component", "runner").Logger(),
		exhausted: make(map[string]bool),
	}
}

// Step lets every agent look at the book and decide, applies cancels, flushes
// the orders and advances the clock by the step size. The simulator stages
// one order per trader, so orders are flushed in rounds: round k holds each
// trader's k-th order.
func (r *Runner) Step(ctx context.Context) (StepResult, error) {
	ctx, span := otel.StartOrderSpan(ctx, otel.SpanAgentStep,
		attribute.Int64(otel.AttributeSimulationTime, int64(r.sim.CurrentTime())),
	)
	defer span.End()

	result := StepResult{Time: r.sim.CurrentTime()}
	level1 := r.sim.Level1()

	var (
		cancels []core.OrderID
		queued  = make(map[core.TraderID][]simulator.PendingOrder)
	)
	for _, a := range r.agents {
		var resting []core.Order
		for _, trader := range a.Traders() {
			resting = append(resting, r.sim.TraderOrders(trader)...)
		}
		a.Update(MarketView{Time: result.Time, Level1: level1, Resting: resting})

		d, err := a.Decide(r.rng)
		if err != nil {
			if !errors.Is(err, ErrIDRangeExhausted) {
				span.RecordError(err)
				span.SetStatus(codes.Error, "agent failed")
				return result, fmt.Errorf("agent %s: %w", a.Name(), err)
			}
			if !r.exhausted[a.Name()] {
				r.logger.Warn().Str("agent", a.Name()).Msg("agent ran out of order ids")
				r.exhausted[a.Name()] = true
			}
		}

		cancels = append(cancels, d.Cancels...)
		for _, o := range d.Orders {
			queued[o.TraderID] = append(queued[o.TraderID], o)
		}
	}

	for _, id := range cancels {
		if r.sim.CancelOrder(ctx, id) {
			result.Canceled++
		}
	}

	traders := make([]core.TraderID, 0, len(queued))
	for trader := range queued {
		traders = append(traders, trader)
	}
	slices.Sort(traders)

	for round := 0; ; round++ {
		staged := 0
		for _, trader := range traders {
			if round < len(queued[trader]) {
				r.sim.StageLimitOrder(queued[trader][round])
				staged++
			}
		}
		if staged == 0 {
			break
		}

		submitted, err := r.sim.SubmitPendingOrders(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "submit failed")
			return result, err
		}
		result.Submitted += submitted.Submitted
		result.Rejections = append(result.Rejections, submitted.Rejections...)
	}

	if err := r.sim.AdvanceTime(r.stepSize); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "clock advance failed")
		return result, err
	}

	otel.AddAttributes(span,
		attribute.Int("agent.cancels", result.Canceled),
		attribute.Int("agent.submitted", result.Submitted),
		attribute.Int("agent.rejected", len(result.Rejections)),
	)
	span.SetStatus(codes.Ok, "step complete")
	return result, nil
}

// Run executes steps steps, calling after (if non-nil) following each one.
// It stops early when ctx is done.
func (r *Runner) Run(ctx context.Context, steps int, after func(context.Context, StepResult) error) error {
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := r.Step(ctx)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if after != nil {
			if err := after(ctx, result); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		}
	}
	return nil
}
