// Package sequence hands out ids for orders and tape entries.
package sequence

import "sync/atomic"

// Sequencer issues strictly increasing ids. The zero value starts at 1.
type Sequencer struct {
	last atomic.Uint64
}

// New returns a sequencer whose first id is start+1. Pass the last id that
// was persisted to resume after a restart.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(start)
	return s
}

// Next returns the next id.
func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current returns the last issued id, or the start value if none was issued.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}

// Reset moves the sequencer so the next id is v+1. Ids must never be
// reused, so callers only move it forward.
func (s *Sequencer) Reset(v uint64) {
	s.last.Store(v)
}
