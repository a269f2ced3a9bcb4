package orderbook

import "fmt"

type locator struct {
	side  Side
	price int64
}

// Matcher owns both sides of a single instrument's book. It is not safe for
// concurrent use: all Submit and Cancel calls must come from one goroutine.
type Matcher struct {
	bids *SideBook
	asks *SideBook

	// resting order id -> where it rests
	index map[uint64]locator

	lastID uint64
	seen   bool
}

func NewMatcher() *Matcher {
	return &Matcher{
		bids:  newSideBook(Bid),
		asks:  newSideBook(Ask),
		index: make(map[uint64]locator),
	}
}

func (m *Matcher) book(s Side) *SideBook {
	if s == Bid {
		return m.bids
	}
	return m.asks
}

// Submit matches o against the opposite side and rests or discards what is
// left according to its time in force. Ids must be strictly increasing.
func (m *Matcher) Submit(o Order) (Report, error) {
	if err := o.Validate(); err != nil {
		return Report{}, err
	}
	if m.seen && o.ID <= m.lastID {
		return Report{}, fmt.Errorf("%w: got %d, last %d", ErrStaleID, o.ID, m.lastID)
	}
	m.lastID, m.seen = o.ID, true

	r := Report{OrderID: o.ID}
	if o.Remaining == 0 {
		return r, nil
	}

	opp := o.Side.Opposite()
	m.book(opp).MatchAgainst(&o, r.changes(opp), &r.Trades, &r.Finished)
	for _, id := range r.Finished {
		delete(m.index, id)
	}

	switch {
	case o.Remaining == 0:
		r.State = StateFilled
		r.Finished = append(r.Finished, o.ID)
	case o.TIF == GTC:
		m.book(o.Side).AddOrder(o, r.changes(o.Side))
		m.index[o.ID] = locator{side: o.Side, price: o.Price}
		r.State = StateResting
	default:
		r.State = StateDiscarded
		r.Finished = append(r.Finished, o.ID)
	}
	return r, nil
}

// Cancel removes a resting order. Unknown or already finished ids give an
// empty report.
func (m *Matcher) Cancel(id uint64) Report {
	r := Report{OrderID: id}
	loc, ok := m.index[id]
	if !ok {
		return r
	}
	if _, removed := m.book(loc.side).RemoveOrder(id, loc.price, r.changes(loc.side)); !removed {
		panic(fmt.Sprintf("orderbook: indexed order %d missing from %s level %d", id, loc.side, loc.price))
	}
	delete(m.index, id)
	r.State = StateCancelled
	r.Finished = append(r.Finished, id)
	return r
}

func (m *Matcher) Snapshot() Snapshot {
	return Snapshot{Bids: m.bids.Levels(), Asks: m.asks.Levels()}
}

// Lookup returns a resting order by id.
func (m *Matcher) Lookup(id uint64) (Order, bool) {
	loc, ok := m.index[id]
	if !ok {
		return Order{}, false
	}
	lvl, ok := m.book(loc.side).Level(loc.price)
	if !ok {
		return Order{}, false
	}
	return lvl.find(id)
}

func (m *Matcher) BestBid() (int64, bool) { return m.bids.Best() }
func (m *Matcher) BestAsk() (int64, bool) { return m.asks.Best() }

// Depth returns the number of price levels on each side.
func (m *Matcher) Depth() (bids, asks int) { return m.bids.Len(), m.asks.Len() }

// Resting returns the number of resting orders.
func (m *Matcher) Resting() int { return len(m.index) }

func (m *Matcher) checkInvariants() {
	for _, b := range []*SideBook{m.bids, m.asks} {
		for price, lvl := range b.levels {
			b.mustLive(lvl, price)
			lvl.checkInvariant()
		}
		if b.prices.Len() != len(b.levels) {
			panic(fmt.Sprintf("orderbook: %s heap has %d prices for %d levels", b.side, b.prices.Len(), len(b.levels)))
		}
	}
	if bid, ok := m.bids.Best(); ok {
		if ask, ok := m.asks.Best(); ok && bid >= ask {
			panic(fmt.Sprintf("orderbook: crossed book bid %d ask %d", bid, ask))
		}
	}
}
