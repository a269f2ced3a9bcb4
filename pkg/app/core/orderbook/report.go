package orderbook

// Trade is one match between an incoming order and a resting one.
// Price is always the resting order's price.
type Trade struct {
	Price     int64
	Qty       int64
	MakerID   uint64
	TakerID   uint64
	TakerSide Side
}

// LevelChange carries the aggregate quantity at a price after a mutation.
// Qty == 0 means the level no longer exists.
type LevelChange struct {
	Price int64
	Qty   int64
}

type Level struct {
	Price int64
	Qty   int64
}

// Snapshot lists every non-empty level, best price first on both sides.
type Snapshot struct {
	Bids []Level
	Asks []Level
}

type OrderState int8

const (
	StateNone      OrderState = iota // nothing happened (unknown cancel, zero-quantity submit)
	StateResting                     // GTC remainder added to the book
	StateFilled                      // remaining quantity reached zero
	StateDiscarded                   // IOC remainder dropped
	StateCancelled                   // resting order removed on request
)

func (s OrderState) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateResting:
		return "resting"
	case StateFilled:
		return "filled"
	case StateDiscarded:
		return "discarded"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Report is everything a single Submit or Cancel did to the book.
type Report struct {
	OrderID uint64
	State   OrderState
	Trades  []Trade
	Bids    []LevelChange
	Asks    []LevelChange

	// Finished holds ids of orders that are no longer live: fully filled,
	// cancelled, or an IOC whose remainder was dropped. Partial fills are
	// never listed.
	Finished []uint64
}

func (r Report) Empty() bool {
	return len(r.Trades) == 0 && len(r.Bids) == 0 && len(r.Asks) == 0
}

func (r *Report) changes(s Side) *[]LevelChange {
	if s == Bid {
		return &r.Bids
	}
	return &r.Asks
}
