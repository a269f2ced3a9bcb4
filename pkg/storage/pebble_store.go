package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/cockroachdb/pebble"
)

type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}
func (s *PebbleStore) Close() error { return s.db.Close() }

// SaveTrade persists a trade to Pebble
func (s *PebbleStore) SaveTrade(trade TradeRecord) error {
	return s.SaveTrades([]TradeRecord{trade})
}

// SaveTrades writes a batch of trades atomically
func (s *PebbleStore) SaveTrades(trades []TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}
	b := s.db.NewBatch()
	defer b.Close()

	for _, t := range trades {
		if t.Symbol == "" {
			return ErrEmptySymbol
		}
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal trade: %w", err)
		}
		if err := b.Set(tradeKey(t.Symbol, t.Seq), data, nil); err != nil {
			return fmt.Errorf("failed to stage trade: %w", err)
		}
	}
	if err := b.Commit(pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save trades: %w", err)
	}
	return nil
}

// LoadRecentTrades loads the most recent N trades for a symbol, newest first
func (s *PebbleStore) LoadRecentTrades(symbol string, limit int) ([]TradeRecord, error) {
	prefix := tradePrefix(symbol)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	trades := make([]TradeRecord, 0)
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		var trade TradeRecord
		if err := json.Unmarshal(iter.Value(), &trade); err != nil {
			continue // Skip invalid entries
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

// LastSeq returns the sequence of the newest stored trade, or 0 when the
// tape is empty.
func (s *PebbleStore) LastSeq(symbol string) (uint64, error) {
	prefix := tradePrefix(symbol)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, nil
	}
	key := iter.Key()
	seq, err := strconv.ParseUint(string(key[len(prefix):]), 10, 64)
	if err != nil {
		return 0, errors.Join(fmt.Errorf("corrupt trade key %q", key), err)
	}
	return seq, nil
}

var _ TradeStore = (*PebbleStore)(nil)
