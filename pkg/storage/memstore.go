package storage

import (
	"sort"
	"sync"
)

// InMemoryTradeStore keeps the tape in memory. Used when no database path
// is configured and in tests.
type InMemoryTradeStore struct {
	mu     sync.Mutex
	trades map[string][]TradeRecord // symbol -> ordered by Seq
}

func NewInMemoryTradeStore() *InMemoryTradeStore {
	return &InMemoryTradeStore{
		trades: make(map[string][]TradeRecord),
	}
}

func (s *InMemoryTradeStore) SaveTrades(trades []TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range trades {
		if t.Symbol == "" {
			return ErrEmptySymbol
		}
	}
	for _, t := range trades {
		tape := s.trades[t.Symbol]
		i := sort.Search(len(tape), func(i int) bool { return tape[i].Seq >= t.Seq })
		if i < len(tape) && tape[i].Seq == t.Seq {
			tape[i] = t
			continue
		}
		tape = append(tape, TradeRecord{})
		copy(tape[i+1:], tape[i:])
		tape[i] = t
		s.trades[t.Symbol] = tape
	}
	return nil
}

func (s *InMemoryTradeStore) LoadRecentTrades(symbol string, limit int) ([]TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tape := s.trades[symbol]
	out := make([]TradeRecord, 0, min(limit, len(tape)))
	for i := len(tape) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, tape[i])
	}
	return out, nil
}

func (s *InMemoryTradeStore) LastSeq(symbol string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tape := s.trades[symbol]
	if len(tape) == 0 {
		return 0, nil
	}
	return tape[len(tape)-1].Seq, nil
}

func (s *InMemoryTradeStore) Close() error { return nil }

var _ TradeStore = (*InMemoryTradeStore)(nil)
