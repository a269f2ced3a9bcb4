package feed

import "sync"

// Backlog queues messages for one consumer. Once more than limit messages
// are waiting it collapses them into one equivalent message, so a slow
// consumer costs bounded memory and never stalls the producer.
//
// In replace mode the newest message wins outright; every message is
// expected to be a snapshot. Otherwise pending deltas are merged, and a
// pending snapshot absorbs the deltas queued after it.
type Backlog struct {
	mu        sync.Mutex
	pending   []Message
	limit     int
	replace   bool
	conflated uint64

	ready chan struct{}
}

func NewBacklog(limit int, replace bool) *Backlog {
	if limit < 1 {
		limit = 1
	}
	return &Backlog{
		limit:   limit,
		replace: replace,
		ready:   make(chan struct{}, 1),
	}
}

// Push enqueues m and reports whether the queue was collapsed.
func (b *Backlog) Push(m Message) (bool, error) {
	b.mu.Lock()
	b.pending = append(b.pending, m)
	var (
		conflated bool
		err       error
	)
	if len(b.pending) > b.limit {
		conflated, err = b.collapse()
	}
	b.mu.Unlock()

	select {
	case b.ready <- struct{}{}:
	default:
	}
	return conflated, err
}

// Pop returns the oldest pending message.
func (b *Backlog) Pop() (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return Message{}, false
	}
	m := b.pending[0]
	b.pending[0] = Message{}
	b.pending = b.pending[1:]
	return m, true
}

// Ready is signalled after every Push. Consumers drain with Pop until it
// reports false, then wait on Ready again.
func (b *Backlog) Ready() <-chan struct{} { return b.ready }

func (b *Backlog) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Conflated returns how many times the queue has been collapsed.
func (b *Backlog) Conflated() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conflated
}

// collapse must be called with mu held.
func (b *Backlog) collapse() (bool, error) {
	var (
		out Message
		err error
	)
	last := len(b.pending) - 1
	switch {
	case b.replace:
		out = b.pending[last]
	default:
		snap := -1
		for i := last; i >= 0; i-- {
			if b.pending[i].IsSnapshot() {
				snap = i
				break
			}
		}
		if snap >= 0 {
			out, err = Rebase(b.pending[snap], b.pending[snap+1:]...)
		} else {
			out, err = Fold(b.pending...)
		}
	}
	if err != nil {
		return false, err
	}
	b.pending[0] = out
	clear(b.pending[1:])
	b.pending = b.pending[:1]
	b.conflated++
	return true, nil
}
