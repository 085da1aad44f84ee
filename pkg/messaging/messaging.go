package messaging

import (
	"context"
	"encoding/json"

	"github.com/erain9/lobsim/pkg/core"
	"github.com/google/uuid"
)

// MessageSender publishes book events to an external sink. Implementations
// must deliver a batch in order.
type MessageSender interface {
	SendEvents(ctx context.Context, events []Event) error
	Close() error
}

// EventType names the payload carried by an Event
type EventType string

// Event types
const (
	EventOrderLog EventType = "order_log"
	EventTrade    EventType = "trade"
)

// Event is the envelope written to the message bus. Exactly one of OrderLog
// and Trade is set, matching Type.
type Event struct {
	ID       string           `json:"id"`
	Symbol   string           `json:"symbol"`
	Type     EventType        `json:"type"`
	Sequence uint64           `json:"sequence"`
	OrderLog *OrderLogMessage `json:"orderLog,omitempty"`
	Trade    *TradeMessage    `json:"trade,omitempty"`
}

// OrderLogMessage is the wire form of core.OrderLog
type OrderLogMessage struct {
	OrderID   uint64 `json:"orderId"`
	TraderID  uint64 `json:"traderId"`
	Price     string `json:"price"`
	Quantity  uint64 `json:"quantity"`
	Side      string `json:"side"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Timestamp uint64 `json:"timestamp"`
	Details   string `json:"details"`
}

// TradeMessage is the wire form of core.Trade
type TradeMessage struct {
	TradeID       uint64 `json:"tradeId"`
	BuyOrderID    uint64 `json:"buyOrderId"`
	SellOrderID   uint64 `json:"sellOrderId"`
	AggressorSide string `json:"aggressorSide"`
	BuyerID       uint64 `json:"buyerId"`
	SellerID      uint64 `json:"sellerId"`
	Price         string `json:"price"`
	Quantity      uint64 `json:"quantity"`
	Timestamp     uint64 `json:"timestamp"`
}

// NewOrderLogEvent wraps an order log in an envelope
func NewOrderLogEvent(symbol string, seq uint64, l core.OrderLog) Event {
	return Event{
		ID:       uuid.NewString(),
		Symbol:   symbol,
		Type:     EventOrderLog,
		Sequence: seq,
		OrderLog: &OrderLogMessage{
			OrderID:   uint64(l.OrderID),
			TraderID:  uint64(l.TraderID),
			Price:     l.Price.String(),
			Quantity:  l.Quantity,
			Side:      l.Side.String(),
			Type:      string(l.Type),
			Status:    string(l.Status),
			Timestamp: uint64(l.Timestamp),
			Details:   l.Details,
		},
	}
}

// NewTradeEvent wraps a trade in an envelope
func NewTradeEvent(symbol string, seq uint64, t core.Trade) Event {
	return Event{
		ID:       uuid.NewString(),
		Symbol:   symbol,
		Type:     EventTrade,
		Sequence: seq,
		Trade: &TradeMessage{
			TradeID:       uint64(t.TradeID),
			BuyOrderID:    uint64(t.BuyOrderID),
			SellOrderID:   uint64(t.SellOrderID),
			AggressorSide: t.AggressorSide.String(),
			BuyerID:       uint64(t.BuyerID),
			SellerID:      uint64(t.SellerID),
			Price:         t.Price.String(),
			Quantity:      t.Quantity,
			Timestamp:     uint64(t.Timestamp),
		},
	}
}

// Sequencer numbers events for one symbol. Sequences start at 1 and never
// repeat for the lifetime of the Sequencer.
type Sequencer struct {
	Symbol string
	next   uint64
}

// NewSequencer creates a Sequencer for symbol
func NewSequencer(symbol string) *Sequencer {
	return &Sequencer{Symbol: symbol, next: 1}
}

// Events converts a drained batch into envelopes: order logs first, then
// trades, each in insertion order
func (s *Sequencer) Events(logs []core.OrderLog, trades []core.Trade) []Event {
	events := make([]Event, 0, len(logs)+len(trades))
	for _, l := range logs {
		events = append(events, NewOrderLogEvent(s.Symbol, s.next, l))
		s.next++
	}
	for _, t := range trades {
		events = append(events, NewTradeEvent(s.Symbol, s.next, t))
		s.next++
	}
	return events
}

// Encode marshals an event to JSON
func Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}

// Decode unmarshals an event from JSON
func Decode(data []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(data, &e)
	return e, err
}
