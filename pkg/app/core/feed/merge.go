package feed

import (
	"fmt"
	"sort"
)

type slot struct {
	qty     int64
	removed bool
}

// scratch is a State that remembers removals so they survive re-encoding.
type scratch map[Key]slot

func (s scratch) apply(m Message) {
	for _, r := range m.Records {
		s[r.Key()] = slot{qty: r.Qty, removed: r.Remove}
	}
}

func (s scratch) encode() Message {
	keys := make([]Key, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Tag != b.Tag {
			return a.Tag == TagBid
		}
		if a.Tag == TagBid {
			return a.Price > b.Price
		}
		return a.Price < b.Price
	})

	recs := make([]Record, 0, len(keys))
	for _, k := range keys {
		sl := s[k]
		if sl.removed {
			recs = append(recs, Record{Tag: k.Tag, Price: k.Price, Remove: true})
			continue
		}
		recs = append(recs, Record{Tag: k.Tag, Price: k.Price, Qty: sl.qty})
	}
	return Message{Kind: KindDelta, Records: recs}
}

// MergeDeltas returns one delta equivalent to applying a then b. Both must be
// deltas for the same book.
func MergeDeltas(a, b Message) (Message, error) {
	if !a.IsDelta() || !b.IsDelta() {
		return Message{}, fmt.Errorf("%w: got %s and %s", ErrNotDelta, a.Kind, b.Kind)
	}
	s := make(scratch, len(a.Records)+len(b.Records))
	s.apply(a)
	s.apply(b)
	return s.encode(), nil
}

// Fold merges any number of deltas in order.
func Fold(msgs ...Message) (Message, error) {
	s := make(scratch)
	for i, m := range msgs {
		if !m.IsDelta() {
			return Message{}, fmt.Errorf("%w: message %d is a %s", ErrNotDelta, i, m.Kind)
		}
		s.apply(m)
	}
	return s.encode(), nil
}

// Rebase applies deltas on top of a snapshot and returns the resulting
// snapshot.
func Rebase(snap Message, deltas ...Message) (Message, error) {
	if !snap.IsSnapshot() {
		return Message{}, fmt.Errorf("%w: got %s", ErrNotSnapshot, snap.Kind)
	}
	st := NewState()
	DecodeInto(st, snap)
	for i, d := range deltas {
		if !d.IsDelta() {
			return Message{}, fmt.Errorf("%w: message %d is a %s", ErrNotDelta, i, d.Kind)
		}
		DecodeInto(st, d)
	}
	return EncodeSnapshot(st.Snapshot()), nil
}
