package orderbook

import (
	"fmt"
	"strings"
)

type Side int8

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return "unknown"
	}
}

// Opposite returns the side an incoming order on s matches against.
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// ParseSide accepts "buy"/"bid" and "sell"/"ask" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "buy", "bid":
		return Bid, nil
	case "sell", "ask":
		return Ask, nil
	}
	return 0, fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, s)
}

type TimeInForce int8

const (
	GTC TimeInForce = iota // remainder rests in the book
	IOC                    // remainder is discarded
)

func (t TimeInForce) String() string {
	switch t {
	case GTC:
		return "GTC"
	case IOC:
		return "IOC"
	default:
		return "unknown"
	}
}

func ParseTimeInForce(s string) (TimeInForce, error) {
	switch strings.ToUpper(s) {
	case "GTC", "":
		return GTC, nil
	case "IOC":
		return IOC, nil
	}
	return 0, fmt.Errorf("%w: unknown time in force %q", ErrInvalidOrder, s)
}

// Order is a value. The matcher copies it in on Submit; while resting it is
// held by exactly one PriceLevel and referenced elsewhere only by ID.
type Order struct {
	ID        uint64 // assigned by the caller, defines time priority
	Side      Side
	Price     int64 // integer ticks
	Qty       int64 // original quantity
	Remaining int64
	TIF       TimeInForce
}

func NewOrder(id uint64, side Side, price, qty int64, tif TimeInForce) Order {
	return Order{ID: id, Side: side, Price: price, Qty: qty, Remaining: qty, TIF: tif}
}

func (o Order) Filled() int64 { return o.Qty - o.Remaining }

// Done reports whether nothing is left to match.
func (o Order) Done() bool { return o.Remaining == 0 }

func (o Order) Validate() error {
	if o.Side != Bid && o.Side != Ask {
		return fmt.Errorf("%w: order %d has side %d", ErrInvalidOrder, o.ID, o.Side)
	}
	if o.TIF != GTC && o.TIF != IOC {
		return fmt.Errorf("%w: order %d has time in force %d", ErrInvalidOrder, o.ID, o.TIF)
	}
	if o.Price < 0 {
		return fmt.Errorf("%w: order %d has negative price %d", ErrInvalidOrder, o.ID, o.Price)
	}
	if o.Qty < 0 || o.Remaining < 0 {
		return fmt.Errorf("%w: order %d has negative quantity", ErrInvalidOrder, o.ID)
	}
	if o.Remaining > o.Qty {
		return fmt.Errorf("%w: order %d remaining %d exceeds quantity %d", ErrInvalidOrder, o.ID, o.Remaining, o.Qty)
	}
	return nil
}

// crosses reports whether an incoming order is willing to trade at a resting price.
func (o *Order) crosses(restingPrice int64) bool {
	if o.Side == Bid {
		return o.Price >= restingPrice
	}
	return o.Price <= restingPrice
}

func (o *Order) match(qty int64) {
	if qty <= 0 || qty > o.Remaining {
		panic(fmt.Sprintf("orderbook: match of %d against order %d with %d remaining", qty, o.ID, o.Remaining))
	}
	o.Remaining -= qty
}
