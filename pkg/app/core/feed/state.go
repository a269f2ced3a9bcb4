package feed

import (
	"fmt"
	"sort"

	"github.com/uhyunpark/hyperbook/pkg/app/core/orderbook"
)

// Key is a side-prefixed price.
type Key struct {
	Tag   Tag
	Price int64
}

func (k Key) String() string { return fmt.Sprintf("%c%d", k.Tag, k.Price) }

// State is the level view a consumer rebuilds from records.
type State map[Key]int64

func NewState() State { return make(State) }

// DecodeInto replays msg into st. Later records for a key overwrite earlier
// ones; a removal record deletes the key.
func DecodeInto(st State, msg Message) {
	for _, r := range msg.Records {
		if r.Remove {
			delete(st, r.Key())
			continue
		}
		st[r.Key()] = r.Qty
	}
}

// Levels returns the levels of one side in priority order.
func (st State) Levels(tag Tag) []orderbook.Level {
	out := make([]orderbook.Level, 0)
	for k, q := range st {
		if k.Tag == tag {
			out = append(out, orderbook.Level{Price: k.Price, Qty: q})
		}
	}
	sortLevels(tag, out)
	return out
}

// Snapshot converts the state back into a book snapshot.
func (st State) Snapshot() orderbook.Snapshot {
	return orderbook.Snapshot{Bids: st.Levels(TagBid), Asks: st.Levels(TagAsk)}
}

func (st State) Equal(other State) bool {
	if len(st) != len(other) {
		return false
	}
	for k, q := range st {
		if oq, ok := other[k]; !ok || oq != q {
			return false
		}
	}
	return true
}

func (st State) Clone() State {
	out := make(State, len(st))
	for k, q := range st {
		out[k] = q
	}
	return out
}

func sortLevels(tag Tag, ls []orderbook.Level) {
	if tag == TagBid {
		sort.Slice(ls, func(i, j int) bool { return ls[i].Price > ls[j].Price })
		return
	}
	sort.Slice(ls, func(i, j int) bool { return ls[i].Price < ls[j].Price })
}
