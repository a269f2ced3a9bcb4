package orderbook

import (
	"container/heap"
	"fmt"
	"sort"
)

// SideBook holds the price levels of one side. Bids are ordered highest
// price first, asks lowest price first; the ordering lives entirely in the
// heap and is never adjusted by hand.
type SideBook struct {
	side   Side
	levels map[int64]*PriceLevel
	prices priceHeap
}

func newSideBook(side Side) *SideBook {
	var h priceHeap
	if side == Bid {
		h = &MaxPriceHeap{}
	} else {
		h = &MinPriceHeap{}
	}
	heap.Init(h)
	return &SideBook{
		side:   side,
		levels: make(map[int64]*PriceLevel),
		prices: h,
	}
}

func (b *SideBook) Side() Side { return b.side }

// Len returns the number of price levels.
func (b *SideBook) Len() int { return len(b.levels) }

// Best returns the best price on this side.
func (b *SideBook) Best() (int64, bool) {
	if b.prices.Len() == 0 {
		return 0, false
	}
	return b.prices.Peek(), true
}

// MatchAgainst fills taker against this side, best price first, stopping at
// the first level the taker is not willing to trade at.
func (b *SideBook) MatchAgainst(taker *Order, changes *[]LevelChange, trades *[]Trade, finished *[]uint64) {
	for taker.Remaining > 0 {
		price, ok := b.Best()
		if !ok || !taker.crosses(price) {
			return
		}
		lvl := b.levels[price]
		b.mustLive(lvl, price)

		if delta := lvl.Match(taker, trades, finished); delta != 0 {
			*changes = append(*changes, LevelChange{Price: price, Qty: lvl.Qty})
		}
		if lvl.Qty == 0 {
			b.dropLevel(price)
		}
	}
}

// AddOrder rests o at its price, creating the level if needed.
func (b *SideBook) AddOrder(o Order, changes *[]LevelChange) {
	lvl, ok := b.levels[o.Price]
	if !ok {
		lvl = newPriceLevel(o.Price)
		b.levels[o.Price] = lvl
		heap.Push(b.prices, o.Price)
	}
	qty := lvl.Add(o)
	*changes = append(*changes, LevelChange{Price: o.Price, Qty: qty})
}

// RemoveOrder takes order id out of the level at price. A missing level or
// order is not an error.
func (b *SideBook) RemoveOrder(id uint64, price int64, changes *[]LevelChange) (Order, bool) {
	lvl, ok := b.levels[price]
	if !ok {
		return Order{}, false
	}
	o, qty, err := lvl.Remove(id)
	if err != nil {
		return Order{}, false
	}
	*changes = append(*changes, LevelChange{Price: price, Qty: qty})
	if qty == 0 {
		b.dropLevel(price)
	}
	return o, true
}

// Levels returns every level in priority order.
func (b *SideBook) Levels() []Level {
	out := make([]Level, 0, len(b.levels))
	for price, lvl := range b.levels {
		b.mustLive(lvl, price)
		out = append(out, Level{Price: price, Qty: lvl.Qty})
	}
	if b.side == Bid {
		sort.Slice(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	}
	return out
}

// Level returns the level at price, if any.
func (b *SideBook) Level(price int64) (*PriceLevel, bool) {
	lvl, ok := b.levels[price]
	return lvl, ok
}

func (b *SideBook) dropLevel(price int64) {
	lvl := b.levels[price]
	if lvl.Qty != 0 || !lvl.Empty() {
		panic(fmt.Sprintf("orderbook: dropping %s level %d with qty %d and %d orders", b.side, price, lvl.Qty, lvl.Len()))
	}
	delete(b.levels, price)
	if i := b.prices.indexOf(price); i >= 0 {
		heap.Remove(b.prices, i)
	}
}

// mustLive panics on a level that should have been removed already.
func (b *SideBook) mustLive(lvl *PriceLevel, price int64) {
	if lvl == nil {
		panic(fmt.Sprintf("orderbook: %s heap has price %d with no level", b.side, price))
	}
	if lvl.Qty <= 0 {
		panic(fmt.Sprintf("orderbook: %s level %d present with qty %d", b.side, price, lvl.Qty))
	}
}
