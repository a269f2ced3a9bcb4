package orderbook

import "fmt"

// PriceLevel is the FIFO queue of resting orders at one price.
// Orders are stored by value in arrival (id) order.
type PriceLevel struct {
	Price  int64
	Qty    int64 // Σ Remaining of orders
	orders []Order
}

func newPriceLevel(price int64) *PriceLevel {
	return &PriceLevel{Price: price}
}

// Add appends o to the tail and returns the new aggregate quantity.
func (p *PriceLevel) Add(o Order) int64 {
	p.orders = append(p.orders, o)
	p.Qty += o.Remaining
	return p.Qty
}

// Remove takes the order with the given id out of the queue. The aggregate
// drops by whatever the order still had remaining.
func (p *PriceLevel) Remove(id uint64) (Order, int64, error) {
	for i := range p.orders {
		if p.orders[i].ID != id {
			continue
		}
		o := p.orders[i]
		p.orders = append(p.orders[:i], p.orders[i+1:]...)
		p.Qty -= o.Remaining
		return o, p.Qty, nil
	}
	return Order{}, p.Qty, fmt.Errorf("%w: id %d at price %d", ErrOrderNotFound, id, p.Price)
}

// Match fills taker against resting orders oldest first until either side
// runs out. It returns the (non-positive) change in aggregate quantity.
func (p *PriceLevel) Match(taker *Order, trades *[]Trade, finished *[]uint64) int64 {
	before := p.Qty
	n := 0
	for n < len(p.orders) && taker.Remaining > 0 {
		maker := &p.orders[n]
		qty := min(taker.Remaining, maker.Remaining)

		maker.match(qty)
		taker.match(qty)
		p.Qty -= qty

		*trades = append(*trades, Trade{
			Price:     p.Price,
			Qty:       qty,
			MakerID:   maker.ID,
			TakerID:   taker.ID,
			TakerSide: taker.Side,
		})

		if maker.Remaining == 0 {
			*finished = append(*finished, maker.ID)
			n++
		}
	}
	p.orders = p.orders[n:]
	return p.Qty - before
}

func (p *PriceLevel) Len() int { return len(p.orders) }

func (p *PriceLevel) Empty() bool { return len(p.orders) == 0 }

// Orders returns a copy of the queue, oldest first.
func (p *PriceLevel) Orders() []Order {
	out := make([]Order, len(p.orders))
	copy(out, p.orders)
	return out
}

func (p *PriceLevel) find(id uint64) (Order, bool) {
	for _, o := range p.orders {
		if o.ID == id {
			return o, true
		}
	}
	return Order{}, false
}

// checkInvariant panics if the aggregate and the queue disagree.
func (p *PriceLevel) checkInvariant() {
	var sum int64
	for _, o := range p.orders {
		sum += o.Remaining
	}
	if sum != p.Qty {
		panic(fmt.Sprintf("orderbook: level %d aggregate %d != Σ remaining %d", p.Price, p.Qty, sum))
	}
}
