package core

import (
	"container/list"

	"github.com/google/btree"
	"github.com/nikolaydubina/fpdecimal"
)

// priceLevel is the FIFO queue of resting orders at one price
type priceLevel struct {
	price  fpdecimal.Decimal
	orders *list.List // *Order, arrival order
	total  uint64
}

func newPriceLevel(price fpdecimal.Decimal) *priceLevel {
	return &priceLevel{
		price:  price,
		orders: list.New(),
	}
}

// head returns the order that matches next at this price
func (l *priceLevel) head() *Order {
	front := l.orders.Front()
	if front == nil {
		return nil
	}
	return front.Value.(*Order)
}

// insert keeps the queue sorted by timestamp. Equal timestamps keep
// insertion order, so the common case is an append.
func (l *priceLevel) insert(o *Order) *list.Element {
	l.total += o.Quantity
	for e := l.orders.Back(); e != nil; e = e.Prev() {
		if e.Value.(*Order).Timestamp <= o.Timestamp {
			return l.orders.InsertAfter(o, e)
		}
	}
	return l.orders.PushFront(o)
}

func (l *priceLevel) remove(e *list.Element) *Order {
	o := l.orders.Remove(e).(*Order)
	l.total -= o.Quantity
	return o
}

func (l *priceLevel) summary() PriceLevel {
	return PriceLevel{
		Price:         l.price,
		TotalQuantity: l.total,
		OrderCount:    uint32(l.orders.Len()),
	}
}

func (l *priceLevel) snapshot() []Order {
	out := make([]Order, 0, l.orders.Len())
	for e := l.orders.Front(); e != nil; e = e.Next() {
		out = append(out, *e.Value.(*Order))
	}
	return out
}

// bookSide holds the levels of one side ordered best first: descending
// prices for bids, ascending for asks.
type bookSide struct {
	side   Side
	levels *btree.BTreeG[*priceLevel]
}

func newBookSide(side Side) *bookSide {
	less := func(a, b *priceLevel) bool { return a.price.LessThan(b.price) }
	if side == Buy {
		less = func(a, b *priceLevel) bool { return a.price.GreaterThan(b.price) }
	}
	return &bookSide{
		side:   side,
		levels: btree.NewG(btreeDegree, less),
	}
}

// indexEntry locates a resting order: its price and side pick the queue,
// elem is its position inside that queue.
type indexEntry struct {
	price fpdecimal.Decimal
	side  Side
	elem  *list.Element
}

// orderStore keeps both sides and the order index consistent. Every
// mutation of resting orders goes through insert, remove or fill.
type orderStore struct {
	bids  *bookSide
	asks  *bookSide
	index map[OrderID]indexEntry
}

func newOrderStore() *orderStore {
	return &orderStore{
		bids:  newBookSide(Buy),
		asks:  newBookSide(Sell),
		index: make(map[OrderID]indexEntry),
	}
}

func (s *orderStore) sideOf(side Side) *bookSide {
	if side == Buy {
		return s.bids
	}
	return s.asks
}

// insert rests o at its limit price, creating the level if needed
func (s *orderStore) insert(o *Order) {
	bs := s.sideOf(o.Side)
	level, ok := bs.levels.Get(&priceLevel{price: o.Price})
	if !ok {
		level = newPriceLevel(o.Price)
		bs.levels.ReplaceOrInsert(level)
	}

	elem := level.insert(o)
	s.index[o.ID] = indexEntry{price: o.Price, side: o.Side, elem: elem}
}

// remove takes the order out of its queue, the index and, when the queue
// empties, the side
func (s *orderStore) remove(id OrderID) (*Order, bool) {
	entry, ok := s.index[id]
	if !ok {
		return nil, false
	}

	bs := s.sideOf(entry.side)
	level, ok := bs.levels.Get(&priceLevel{price: entry.price})
	if !ok {
		return nil, false
	}

	o := level.remove(entry.elem)
	if level.orders.Len() == 0 {
		bs.levels.Delete(level)
	}
	delete(s.index, id)
	return o, true
}

// fill decrements a resting order by quantity and drops it once empty.
// The quantity update always happens before the removal decision.
func (s *orderStore) fill(o *Order, quantity uint64) {
	entry := s.index[o.ID]
	if level, ok := s.sideOf(entry.side).levels.Get(&priceLevel{price: entry.price}); ok {
		level.total -= quantity
	}
	o.Quantity -= quantity

	if o.Quantity == 0 {
		s.remove(o.ID)
	}
}

func (s *orderStore) get(id OrderID) (*Order, bool) {
	entry, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return entry.elem.Value.(*Order), true
}

func (s *orderStore) has(id OrderID) bool {
	_, ok := s.index[id]
	return ok
}

func (s *orderStore) best(side Side) (*priceLevel, bool) {
	return s.sideOf(side).levels.Min()
}

func (s *orderStore) bestPrice(side Side) (fpdecimal.Decimal, bool) {
	level, ok := s.best(side)
	if !ok {
		return fpdecimal.Zero, false
	}
	return level.price, true
}

func (s *orderStore) level(side Side, price fpdecimal.Decimal) (*priceLevel, bool) {
	return s.sideOf(side).levels.Get(&priceLevel{price: price})
}

// latest returns the timestamp of the last order queued at price on side
func (s *orderStore) latest(side Side, price fpdecimal.Decimal) (Timestamp, bool) {
	level, ok := s.level(side, price)
	if !ok {
		return 0, false
	}
	return level.orders.Back().Value.(*Order).Timestamp, true
}

func (s *orderStore) levelCount(side Side) int {
	return s.sideOf(side).levels.Len()
}

func (s *orderStore) empty(side Side) bool {
	return s.levelCount(side) == 0
}

// walk visits the levels of side from best to worst until fn returns false
func (s *orderStore) walk(side Side, fn func(*priceLevel) bool) {
	s.sideOf(side).levels.Ascend(fn)
}

// summaries returns up to depth level summaries, best first. depth <= 0 means all.
func (s *orderStore) summaries(side Side, depth int) []PriceLevel {
	n := s.levelCount(side)
	if depth > 0 && depth < n {
		n = depth
	}

	out := make([]PriceLevel, 0, n)
	s.walk(side, func(level *priceLevel) bool {
		out = append(out, level.summary())
		return len(out) < n
	})
	return out
}
