package core

import (
	"fmt"

	"github.com/nikolaydubina/fpdecimal"
)

// OrderID identifies an order for its whole life in the book
type OrderID uint64

// TraderID identifies the actor that owns an order
type TraderID uint64

// TradeID identifies an execution; ids start at 1
type TradeID uint64

// Timestamp is simulation time. The book never reads a wall clock.
type Timestamp uint64

// Side represents buy or sell side of the order
type Side int

// Order sides
const (
	Buy Side = iota
	Sell
)

// String returns side as string
func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the side an order of this side trades against
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// IsValid reports whether s is Buy or Sell
func (s Side) IsValid() bool {
	return s == Buy || s == Sell
}

// MarshalText implements encoding.TextMarshaler
func (s Side) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("%w: side %d", ErrInvalidArgument, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Side) UnmarshalText(text []byte) error {
	switch string(text) {
	case "BUY":
		*s = Buy
	case "SELL":
		*s = Sell
	default:
		return fmt.Errorf("%w: side %q", ErrInvalidArgument, string(text))
	}
	return nil
}

// OrderType represents type of the order
type OrderType string

// Order types
const (
	TypeLimit  OrderType = "LIMIT"
	TypeMarket OrderType = "MARKET"
)

// Order is an intent to trade. Quantity is the remaining quantity and only
// decreases while the order rests in the book.
type Order struct {
	ID        OrderID           `json:"orderId"`
	TraderID  TraderID          `json:"traderId"`
	Price     fpdecimal.Decimal `json:"price"`
	Quantity  uint64            `json:"quantity"`
	Side      Side              `json:"side"`
	Type      OrderType         `json:"type"`
	Timestamp Timestamp         `json:"timestamp"`
}

// NewLimitOrder creates a validated limit order
func NewLimitOrder(id OrderID, trader TraderID, side Side, price fpdecimal.Decimal, quantity uint64, ts Timestamp) (Order, error) {
	order := Order{
		ID:        id,
		TraderID:  trader,
		Price:     price,
		Quantity:  quantity,
		Side:      side,
		Type:      TypeLimit,
		Timestamp: ts,
	}
	if err := order.validate(); err != nil {
		return Order{}, err
	}
	return order, nil
}

// NewMarketOrder creates a validated market order. Market orders carry no price.
func NewMarketOrder(id OrderID, trader TraderID, side Side, quantity uint64, ts Timestamp) (Order, error) {
	order := Order{
		ID:        id,
		TraderID:  trader,
		Price:     fpdecimal.Zero,
		Quantity:  quantity,
		Side:      side,
		Type:      TypeMarket,
		Timestamp: ts,
	}
	if err := order.validate(); err != nil {
		return Order{}, err
	}
	return order, nil
}

// IsLimitOrder returns true if Order is LIMIT
func (o Order) IsLimitOrder() bool {
	return o.Type == TypeLimit
}

// IsMarketOrder returns true if Order is MARKET
func (o Order) IsMarketOrder() bool {
	return o.Type == TypeMarket
}

// String implements Stringer interface
func (o Order) String() string {
	return fmt.Sprintf("#%d trader=%d %s %s %d@%s t=%d", o.ID, o.TraderID, o.Type, o.Side, o.Quantity, o.Price, o.Timestamp)
}

func (o Order) validate() error {
	if !o.Side.IsValid() {
		return fmt.Errorf("%w: side %d", ErrInvalidArgument, int(o.Side))
	}
	if o.Quantity == 0 {
		return ErrInvalidQuantity
	}

	switch o.Type {
	case TypeLimit:
		if o.Price.LessThanOrEqual(fpdecimal.Zero) {
			return ErrInvalidPrice
		}
	case TypeMarket:
	default:
		return fmt.Errorf("%w: order type %q", ErrInvalidArgument, o.Type)
	}
	return nil
}
