package core

import (
	"errors"
	"fmt"

	"github.com/nikolaydubina/fpdecimal"
)

// CheckInvariants validates the whole book: every level is non-empty and
// holds only orders at its own price with positive quantity in timestamp
// order, level totals match their orders, the index names exactly the
// resting orders, and the book is not crossed.
func (ob *OrderBook) CheckInvariants() error {
	var errs []error
	seen := 0

	for _, side := range []Side{Buy, Sell} {
		ob.store.walk(side, func(level *priceLevel) bool {
			errs = append(errs, ob.checkLevel(side, level, &seen)...)
			return true
		})
	}

	if seen != len(ob.store.index) {
		errs = append(errs, fmt.Errorf("index holds %d orders, book holds %d", len(ob.store.index), seen))
	}

	bid, hasBid := ob.BestBid()
	ask, hasAsk := ob.BestAsk()
	if hasBid && hasAsk && bid.GreaterThanOrEqual(ask) {
		errs = append(errs, fmt.Errorf("crossed book: best bid %s >= best ask %s", bid, ask))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvariantViolation, err)
	}
	return nil
}

func (ob *OrderBook) checkLevel(side Side, level *priceLevel, seen *int) []error {
	var errs []error

	if level.price.LessThanOrEqual(fpdecimal.Zero) {
		errs = append(errs, fmt.Errorf("%s level at non-positive price %s", side, level.price))
	}
	if level.orders.Len() == 0 {
		errs = append(errs, fmt.Errorf("empty %s level at %s", side, level.price))
	}

	var (
		total uint64
		last  Timestamp
	)
	for e := level.orders.Front(); e != nil; e = e.Next() {
		o := e.Value.(*Order)
		*seen++
		total += o.Quantity

		if o.Quantity == 0 {
			errs = append(errs, fmt.Errorf("order %d rests with zero quantity", o.ID))
		}
		if o.Side != side || o.Price != level.price {
			errs = append(errs, fmt.Errorf("order %d (%s %s) filed under %s %s", o.ID, o.Side, o.Price, side, level.price))
		}
		if e != level.orders.Front() && o.Timestamp < last {
			errs = append(errs, fmt.Errorf("order %d out of time priority at %s", o.ID, level.price))
		}
		last = o.Timestamp

		entry, ok := ob.store.index[o.ID]
		if !ok || entry.elem != e || entry.side != side || entry.price != level.price {
			errs = append(errs, fmt.Errorf("order %d missing or stale in index", o.ID))
		}
	}

	if total != level.total {
		errs = append(errs, fmt.Errorf("%s level %s total %d, orders sum to %d", side, level.price, level.total, total))
	}
	return errs
}

// verify panics when invariant checks are enabled and the book is
// inconsistent. A violation means matching left the book corrupt.
func (ob *OrderBook) verify() {
	if !ob.checkInvariants {
		return
	}
	if err := ob.CheckInvariants(); err != nil {
		ob.logger.Error().Err(err).Msg("order book invariant violated")
		panic(err)
	}
}
