package orderbook

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type idGen struct{ next uint64 }

func (g *idGen) order(side Side, price, qty int64, tif TimeInForce) Order {
	g.next++
	return NewOrder(g.next, side, price, qty, tif)
}

func submit(t *testing.T, m *Matcher, o Order) Report {
	t.Helper()
	r, err := m.Submit(o)
	require.NoError(t, err)
	m.checkInvariants()
	return r
}

func TestMatcher_Scenarios(t *testing.T) {
	m := NewMatcher()
	ids := &idGen{}

	// 1. resting bid, empty ask side
	r := submit(t, m, ids.order(Bid, 100, 10, GTC))
	assert.Empty(t, r.Trades)
	assert.Equal(t, StateResting, r.State)
	assert.Equal(t, []LevelChange{{Price: 100, Qty: 10}}, r.Bids)
	assert.Empty(t, r.Asks)
	assert.Equal(t, []Level{{Price: 100, Qty: 10}}, m.Snapshot().Bids)

	// 2. ask partially consumes the bid
	r = submit(t, m, ids.order(Ask, 100, 4, GTC))
	assert.Equal(t, []Trade{{Price: 100, Qty: 4, MakerID: 1, TakerID: 2, TakerSide: Ask}}, r.Trades)
	assert.Equal(t, []LevelChange{{Price: 100, Qty: 6}}, r.Bids)
	assert.Empty(t, r.Asks)
	assert.Equal(t, StateFilled, r.State)
	assert.Empty(t, m.Snapshot().Asks)

	// 3. IOC sweeps the level and drops the rest
	r = submit(t, m, ids.order(Ask, 95, 20, IOC))
	assert.Equal(t, []Trade{{Price: 100, Qty: 6, MakerID: 1, TakerID: 3, TakerSide: Ask}}, r.Trades)
	assert.Equal(t, []LevelChange{{Price: 100, Qty: 0}}, r.Bids)
	assert.Empty(t, r.Asks)
	assert.Equal(t, StateDiscarded, r.State)
	assert.ElementsMatch(t, []uint64{1, 3}, r.Finished)
	assert.Equal(t, Snapshot{Bids: []Level{}, Asks: []Level{}}, m.Snapshot())
}

func TestMatcher_TimePriority(t *testing.T) {
	m := NewMatcher()
	ids := &idGen{}

	x := ids.order(Bid, 100, 5, GTC)
	y := ids.order(Bid, 100, 5, GTC)
	submit(t, m, x)
	submit(t, m, y)

	r := submit(t, m, ids.order(Ask, 100, 7, GTC))
	require.Len(t, r.Trades, 2)
	assert.Equal(t, Trade{Price: 100, Qty: 5, MakerID: x.ID, TakerID: 3, TakerSide: Ask}, r.Trades[0])
	assert.Equal(t, Trade{Price: 100, Qty: 2, MakerID: y.ID, TakerID: 3, TakerSide: Ask}, r.Trades[1])
	assert.Equal(t, []LevelChange{{Price: 100, Qty: 3}}, r.Bids)
	assert.Equal(t, []uint64{x.ID, 3}, r.Finished)

	_, ok := m.Lookup(x.ID)
	assert.False(t, ok)
	rest, ok := m.Lookup(y.ID)
	require.True(t, ok)
	assert.Equal(t, int64(3), rest.Remaining)
	assert.Equal(t, int64(2), rest.Filled())
}

func TestMatcher_PricePriorityAndTradePrice(t *testing.T) {
	m := NewMatcher()
	ids := &idGen{}

	submit(t, m, ids.order(Ask, 103, 5, GTC))
	submit(t, m, ids.order(Ask, 101, 5, GTC))
	submit(t, m, ids.order(Ask, 102, 5, GTC))
	submit(t, m, ids.order(Ask, 110, 5, GTC))

	// willing to pay 105: takes 101, 102, 103 in that order at the makers' prices
	r := submit(t, m, ids.order(Bid, 105, 12, GTC))
	require.Len(t, r.Trades, 3)
	assert.Equal(t, int64(101), r.Trades[0].Price)
	assert.Equal(t, int64(102), r.Trades[1].Price)
	assert.Equal(t, int64(103), r.Trades[2].Price)
	assert.Equal(t, int64(2), r.Trades[2].Qty)
	assert.Equal(t, []LevelChange{{101, 0}, {102, 0}, {103, 3}}, r.Asks)
	assert.Empty(t, r.Bids)

	ask, ok := m.BestAsk()
	require.True(t, ok)
	assert.Equal(t, int64(103), ask)
	_, ok = m.BestBid()
	assert.False(t, ok)
}

func TestMatcher_StopsAtNonCrossingPrice(t *testing.T) {
	m := NewMatcher()
	ids := &idGen{}

	submit(t, m, ids.order(Bid, 99, 5, GTC))
	submit(t, m, ids.order(Bid, 97, 5, GTC))

	r := submit(t, m, ids.order(Ask, 98, 20, GTC))
	require.Len(t, r.Trades, 1)
	assert.Equal(t, int64(99), r.Trades[0].Price)
	assert.Equal(t, []LevelChange{{99, 0}}, r.Bids)
	assert.Equal(t, []LevelChange{{98, 15}}, r.Asks)
	assert.Equal(t, StateResting, r.State)

	snap := m.Snapshot()
	assert.Equal(t, []Level{{97, 5}}, snap.Bids)
	assert.Equal(t, []Level{{98, 15}}, snap.Asks)
}

func TestMatcher_Cancel(t *testing.T) {
	m := NewMatcher()
	ids := &idGen{}

	t.Run("unknown id is a no-op", func(t *testing.T) {
		r := m.Cancel(42)
		assert.True(t, r.Empty())
		assert.Equal(t, StateNone, r.State)
		assert.Empty(t, r.Finished)
	})

	a := ids.order(Ask, 100, 5, GTC)
	b := ids.order(Ask, 100, 3, GTC)
	submit(t, m, a)
	submit(t, m, b)

	t.Run("resting order", func(t *testing.T) {
		r := m.Cancel(a.ID)
		assert.Equal(t, StateCancelled, r.State)
		assert.Empty(t, r.Trades)
		assert.Equal(t, []LevelChange{{100, 3}}, r.Asks)
		assert.Equal(t, []uint64{a.ID}, r.Finished)
		m.checkInvariants()
	})

	t.Run("second cancel is a no-op", func(t *testing.T) {
		assert.True(t, m.Cancel(a.ID).Empty())
	})

	t.Run("last order drops the level", func(t *testing.T) {
		r := m.Cancel(b.ID)
		assert.Equal(t, []LevelChange{{100, 0}}, r.Asks)
		assert.Empty(t, m.Snapshot().Asks)
	})

	t.Run("filled order is a no-op", func(t *testing.T) {
		c := ids.order(Bid, 50, 2, GTC)
		submit(t, m, c)
		submit(t, m, ids.order(Ask, 50, 2, IOC))
		assert.True(t, m.Cancel(c.ID).Empty())
	})
}

func TestMatcher_PartialFillIsNotFinished(t *testing.T) {
	m := NewMatcher()
	ids := &idGen{}

	maker := ids.order(Bid, 100, 10, GTC)
	submit(t, m, maker)
	r := submit(t, m, ids.order(Ask, 100, 3, IOC))
	assert.NotContains(t, r.Finished, maker.ID)
	assert.Contains(t, r.Finished, r.OrderID)
}

func TestMatcher_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		order Order
		err   error
	}{
		{"negative price", NewOrder(1, Bid, -1, 5, GTC), ErrInvalidOrder},
		{"negative qty", NewOrder(1, Bid, 100, -5, GTC), ErrInvalidOrder},
		{"remaining above qty", Order{ID: 1, Side: Ask, Price: 1, Qty: 1, Remaining: 2}, ErrInvalidOrder},
		{"bad side", Order{ID: 1, Side: 7, Price: 1, Qty: 1, Remaining: 1}, ErrInvalidOrder},
		{"bad tif", Order{ID: 1, Side: Bid, Price: 1, Qty: 1, Remaining: 1, TIF: 9}, ErrInvalidOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMatcher().Submit(tt.order)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	t.Run("stale id", func(t *testing.T) {
		m := NewMatcher()
		submit(t, m, NewOrder(5, Bid, 100, 1, GTC))
		_, err := m.Submit(NewOrder(5, Bid, 100, 1, GTC))
		assert.ErrorIs(t, err, ErrStaleID)
		_, err = m.Submit(NewOrder(4, Bid, 100, 1, GTC))
		assert.ErrorIs(t, err, ErrStaleID)
	})

	t.Run("zero quantity is a no-op", func(t *testing.T) {
		m := NewMatcher()
		r := submit(t, m, NewOrder(1, Bid, 100, 0, GTC))
		assert.True(t, r.Empty())
		assert.Equal(t, StateNone, r.State)
	})
}

// Random flow: after every step each level's aggregate equals the sum of its
// orders, the book is uncrossed, IOC orders never rest and every trade is
// priced at a resting order's price.
func TestMatcher_RandomFlowInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	m := NewMatcher()
	ids := &idGen{}
	var live []uint64

	for i := 0; i < 5000; i++ {
		if len(live) > 0 && rng.Intn(5) == 0 {
			k := rng.Intn(len(live))
			m.Cancel(live[k])
			live = append(live[:k], live[k+1:]...)
			m.checkInvariants()
			continue
		}

		side := Bid
		if rng.Intn(2) == 1 {
			side = Ask
		}
		tif := GTC
		if rng.Intn(4) == 0 {
			tif = IOC
		}
		o := ids.order(side, int64(90+rng.Intn(21)), int64(1+rng.Intn(20)), tif)

		restingPrices := map[int64]bool{}
		for _, l := range m.book(side.Opposite()).Levels() {
			restingPrices[l.Price] = true
		}

		r := submit(t, m, o)
		for _, tr := range r.Trades {
			require.True(t, restingPrices[tr.Price], "trade at %d not a resting price", tr.Price)
			require.True(t, o.crosses(tr.Price))
		}
		if tif == IOC {
			_, ok := m.Lookup(o.ID)
			require.False(t, ok, "IOC order %d rests", o.ID)
		}
		if r.State == StateResting {
			live = append(live, o.ID)
		}
	}
}
