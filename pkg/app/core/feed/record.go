// Package feed turns book changes into wire records, replays them into level
// state, and collapses backlogs of records for slow consumers.
package feed

import (
	"errors"
	"fmt"

	"github.com/uhyunpark/hyperbook/pkg/app/core/orderbook"
)

var (
	ErrNotDelta    = errors.New("feed: only deltas can be merged")
	ErrNotSnapshot = errors.New("feed: rebase needs a snapshot")
	ErrMalformed   = errors.New("feed: malformed message")
)

// Tag identifies the side a record belongs to.
type Tag byte

const (
	TagBid Tag = 'B'
	TagAsk Tag = 'A'
)

func (t Tag) valid() bool { return t == TagBid || t == TagAsk }

type Kind byte

const (
	KindDelta    Kind = 'D'
	KindSnapshot Kind = 'S'
)

func (k Kind) String() string {
	switch k {
	case KindDelta:
		return "delta"
	case KindSnapshot:
		return "snapshot"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// Record sets the quantity at a price, or removes the level when Remove is set.
type Record struct {
	Tag    Tag
	Price  int64
	Qty    int64
	Remove bool
}

func (r Record) Key() Key { return Key{Tag: r.Tag, Price: r.Price} }

type Message struct {
	Kind    Kind
	Records []Record
}

func (m Message) IsDelta() bool    { return m.Kind == KindDelta }
func (m Message) IsSnapshot() bool { return m.Kind == KindSnapshot }
func (m Message) Len() int         { return len(m.Records) }

// EncodeDelta emits bid changes then ask changes in the order they happened.
// A change to zero becomes a removal record.
func EncodeDelta(bids, asks []orderbook.LevelChange) Message {
	recs := make([]Record, 0, len(bids)+len(asks))
	recs = appendChanges(recs, TagBid, bids)
	recs = appendChanges(recs, TagAsk, asks)
	return Message{Kind: KindDelta, Records: recs}
}

func appendChanges(recs []Record, tag Tag, changes []orderbook.LevelChange) []Record {
	for _, c := range changes {
		if c.Qty == 0 {
			recs = append(recs, Record{Tag: tag, Price: c.Price, Remove: true})
			continue
		}
		recs = append(recs, Record{Tag: tag, Price: c.Price, Qty: c.Qty})
	}
	return recs
}

// EncodeSnapshot lists every level of both sides in priority order.
func EncodeSnapshot(s orderbook.Snapshot) Message {
	recs := make([]Record, 0, len(s.Bids)+len(s.Asks))
	for _, l := range s.Bids {
		recs = append(recs, Record{Tag: TagBid, Price: l.Price, Qty: l.Qty})
	}
	for _, l := range s.Asks {
		recs = append(recs, Record{Tag: TagAsk, Price: l.Price, Qty: l.Qty})
	}
	return Message{Kind: KindSnapshot, Records: recs}
}
