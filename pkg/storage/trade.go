package storage

import "errors"

var ErrEmptySymbol = errors.New("storage: trade has no symbol")

// TradeRecord is one execution on the tape.
type TradeRecord struct {
	Seq       uint64 `json:"seq"`
	ID        string `json:"id"`
	Symbol    string `json:"symbol"`
	Price     int64  `json:"price"`
	Qty       int64  `json:"qty"`
	MakerID   uint64 `json:"maker_order_id"`
	TakerID   uint64 `json:"taker_order_id"`
	TakerSide string `json:"taker_side"`
	Timestamp int64  `json:"timestamp"` // unix millis
}

// TradeStore persists the trade tape. Trades of one symbol are ordered by Seq.
type TradeStore interface {
	SaveTrades(trades []TradeRecord) error
	LoadRecentTrades(symbol string, limit int) ([]TradeRecord, error)
	LastSeq(symbol string) (uint64, error)
	Close() error
}
