package simulator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/erain9/lobsim/pkg/core"
	"github.com/erain9/lobsim/pkg/messaging"
	"github.com/erain9/lobsim/pkg/otel"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrClockOverflow is returned when advancing the clock would wrap it
var ErrClockOverflow = errors.New("simulation clock overflow")

// PendingOrder is a limit order staged for the next flush
type PendingOrder struct {
	OrderID  core.OrderID
	TraderID core.TraderID
	Side     core.Side
	Price    fpdecimal.Decimal
	Quantity uint64
}

// PendingMarketOrder is a market order staged for the next flush
type PendingMarketOrder struct {
	OrderID  core.OrderID
	TraderID core.TraderID
	Side     core.Side
	Quantity uint64
}

// Rejection is a staged order the book refused
type Rejection struct {
	OrderID  core.OrderID
	TraderID core.TraderID
	Err      error
}

// SubmitResult summarizes one flush of the staging area
type SubmitResult struct {
	Submitted  int
	Rejections []Rejection
}

// MarketDataSink receives top of book after every publish and snapshots on demand
type MarketDataSink interface {
	PublishLevel1(ctx context.Context, data core.Level1Data) error
	PublishSnapshot(ctx context.Context, snap core.OrderBookSnapshot) error
}

// Config configures a Simulator
type Config struct {
	Symbol    string
	StartTime core.Timestamp
	// SkipInvariantChecks turns off the book consistency check that
	// otherwise runs after every mutation
	SkipInvariantChecks bool
}

// Simulator is the session layer in front of one order book. Orders are
// staged per trader and flushed in a batch; everything else is forwarded to
// the book under a single lock.
type Simulator struct {
	mu sync.Mutex

	cfg     Config
	book    *core.OrderBook
	now     core.Timestamp
	pending map[core.TraderID]core.Order

	// history drained from the book; unsent holds events a failed publish
	// will retry
	orderLogs []core.OrderLog
	trades    []core.Trade
	sequencer *messaging.Sequencer
	unsent    []messaging.Event

	sender  messaging.MessageSender
	sink    MarketDataSink
	logger  zerolog.Logger
	metrics *otel.SimulatorMetrics
}

// Option configures a Simulator
type Option func(*Simulator)

// WithMessageSender sets where Publish sends order log and trade events
func WithMessageSender(sender messaging.MessageSender) Option {
	return func(s *Simulator) {
		s.sender = sender
	}
}

// WithMarketDataSink sets where Publish mirrors top of book
func WithMarketDataSink(sink MarketDataSink) Option {
	return func(s *Simulator) {
		s.sink = sink
	}
}

// WithLogger sets the simulator logger. The book gets the same logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Simulator) {
		s.logger = logger
	}
}

// New creates a Simulator with an empty book whose clock starts at cfg.StartTime
func New(cfg Config, opts ...Option) *Simulator {
	s := &Simulator{
		cfg:       cfg,
		now:       cfg.StartTime,
		pending:   make(map[core.TraderID]core.Order),
		sequencer: messaging.NewSequencer(cfg.Symbol),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.book = core.NewOrderBook(
		core.WithClock(cfg.StartTime),
		core.WithInvariantChecks(!cfg.SkipInvariantChecks),
		core.WithLogger(s.logger.With().Str("component", "orderbook").Logger()),
	)

	metrics, err := otel.GetSimulatorMetrics()
	if err != nil {
		s.logger.Warn().Err(err).Msg("simulator metrics unavailable")
	}
	s.metrics = metrics
	return s
}

// StageLimitOrder stages a limit order for the next flush, stamped with the
// current simulation time. A trader has at most one staged order; a later
// stage replaces the earlier one and StageLimitOrder reports true.
func (s *Simulator) StageLimitOrder(p PendingOrder) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stage(core.Order{
		ID:        p.OrderID,
		TraderID:  p.TraderID,
		Price:     p.Price,
		Quantity:  p.Quantity,
		Side:      p.Side,
		Type:      core.TypeLimit,
		Timestamp: s.now,
	})
}

// StageMarketOrder stages a market order for the next flush. See StageLimitOrder.
func (s *Simulator) StageMarketOrder(p PendingMarketOrder) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stage(core.Order{
		ID:        p.OrderID,
		TraderID:  p.TraderID,
		Price:     fpdecimal.Zero,
		Quantity:  p.Quantity,
		Side:      p.Side,
		Type:      core.TypeMarket,
		Timestamp: s.now,
	})
}

func (s *Simulator) stage(o core.Order) bool {
	_, replaced := s.pending[o.TraderID]
	s.pending[o.TraderID] = o
	return replaced
}

// PendingCount returns the number of staged orders
func (s *Simulator) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// SubmitPendingOrders flushes every staged order into the book in ascending
// trader id order and clears the staging area. Orders the book rejects are
// reported in the result; only a done context is an error, and then nothing
// is flushed.
func (s *Simulator) SubmitPendingOrders(ctx context.Context) (SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return SubmitResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := otel.StartOrderSpan(ctx, otel.SpanSubmitPending,
		attribute.Int(otel.AttributePendingCount, len(s.pending)),
		attribute.Int64(otel.AttributeSimulationTime, int64(s.now)),
	)
	defer span.End()

	start := time.Now()
	traders := make([]core.TraderID, 0, len(s.pending))
	for id := range s.pending {
		traders = append(traders, id)
	}
	slices.Sort(traders)

	var result SubmitResult
	for _, trader := range traders {
		order := s.pending[trader]

		var err error
		if order.IsMarketOrder() {
			err = s.book.PlaceMarketOrder(ctx, order)
		} else {
			err = s.book.PlaceLimitOrder(ctx, order)
		}

		if err != nil {
			result.Rejections = append(result.Rejections, Rejection{OrderID: order.ID, TraderID: trader, Err: err})
			s.logger.Debug().Err(err).
				Uint64("order_id", uint64(order.ID)).
				Uint64("trader_id", uint64(trader)).
				Msg("staged order rejected")
			continue
		}
		result.Submitted++
	}
	clear(s.pending)

	if s.metrics != nil {
		s.metrics.RecordStep(ctx, s.cfg.Symbol, time.Since(start), result.Submitted, len(result.Rejections))
	}
	s.logger.Info().
		Uint64("time", uint64(s.now)).
		Int("submitted", result.Submitted).
		Int("rejected", len(result.Rejections)).
		Msg("pending orders flushed")

	span.SetStatus(codes.Ok, "pending orders submitted")
	return result, nil
}

// CancelOrder forwards to the book
func (s *Simulator) CancelOrder(ctx context.Context, id core.OrderID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.CancelOrder(ctx, id)
}

// ModifyOrder forwards to the book
func (s *Simulator) ModifyOrder(ctx context.Context, id core.OrderID, newPrice fpdecimal.Decimal, newQuantity uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.ModifyOrder(ctx, id, newPrice, newQuantity)
}

// AdvanceTime moves the simulation clock forward by dt
func (s *Simulator) AdvanceTime(dt uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dt > math.MaxUint64-uint64(s.now) {
		return fmt.Errorf("%w: %d + %d", ErrClockOverflow, s.now, dt)
	}
	next := s.now + core.Timestamp(dt)
	if err := s.book.AdvanceTime(next); err != nil {
		return err
	}
	s.now = next
	return nil
}

// CurrentTime returns the simulation clock
func (s *Simulator) CurrentTime() core.Timestamp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Level1 returns top of book
func (s *Simulator) Level1() core.Level1Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.Level1()
}

// Level2 returns full depth
func (s *Simulator) Level2() core.Level2Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.Level2()
}

// Snapshot returns the book view stamped with the simulation time
func (s *Simulator) Snapshot() core.OrderBookSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.Snapshot(s.now)
}

// TraderOrders returns the resting orders of trader
func (s *Simulator) TraderOrders(trader core.TraderID) []core.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.TraderOrders(trader)
}

// Book runs fn with the book under the simulator lock. fn must not keep the
// book after returning.
func (s *Simulator) Book(fn func(*core.OrderBook)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.book)
}

// OrderLogs returns every order log the book has produced
func (s *Simulator) OrderLogs() []core.OrderLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collect()
	return slices.Clone(s.orderLogs)
}

// Trades returns every trade the book has produced
func (s *Simulator) Trades() []core.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collect()
	return slices.Clone(s.trades)
}

// collect moves new book logs into the history and queues them for publishing
func (s *Simulator) collect() {
	logs := s.book.DrainOrderLogs()
	trades := s.book.DrainTrades()
	if len(logs) == 0 && len(trades) == 0 {
		return
	}

	s.orderLogs = append(s.orderLogs, logs...)
	s.trades = append(s.trades, trades...)
	if s.sender != nil {
		s.unsent = append(s.unsent, s.sequencer.Events(logs, trades)...)
	}
}

// Publish sends the events produced since the last successful publish to the
// message sender and top of book to the market data sink. Events that fail
// to send are retried by the next Publish with their original sequence numbers.
func (s *Simulator) Publish(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collect()

	ctx, span := otel.StartOrderSpan(ctx, otel.SpanPublish,
		attribute.Int(otel.AttributeEventCount, len(s.unsent)),
		attribute.Int64(otel.AttributeSimulationTime, int64(s.now)),
	)
	defer span.End()

	var errs []error
	if s.sender != nil && len(s.unsent) > 0 {
		err := s.sender.SendEvents(ctx, s.unsent)
		s.recordPublish(ctx, "events", len(s.unsent), err)
		if err != nil {
			errs = append(errs, fmt.Errorf("send events: %w", err))
		} else {
			s.unsent = nil
		}
	}

	if s.sink != nil {
		err := s.sink.PublishLevel1(ctx, s.book.Level1())
		s.recordPublish(ctx, "level1", 1, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish level1: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return err
	}
	span.SetStatus(codes.Ok, "published")
	return nil
}

// PublishSnapshot writes the current snapshot to the market data sink
func (s *Simulator) PublishSnapshot(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sink == nil {
		return nil
	}
	err := s.sink.PublishSnapshot(ctx, s.book.Snapshot(s.now))
	s.recordPublish(ctx, "snapshot", 1, err)
	if err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

func (s *Simulator) recordPublish(ctx context.Context, sink string, count int, err error) {
	if s.metrics != nil {
		s.metrics.RecordPublish(ctx, sink, count, err)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("sink", sink).Int("count", count).Msg("publish failed")
	}
}

// Close releases the message sender
func (s *Simulator) Close() error {
	if s.sender == nil {
		return nil
	}
	return s.sender.Close()
}
