package market

import (
	"errors"
	"fmt"
)

var (
	ErrMarketNotActive = errors.New("market not active")
	ErrInvalidParams   = errors.New("invalid market params")
	ErrOrderRejected   = errors.New("order rejected by market")
	ErrBadTransition   = errors.New("invalid status transition")
)

// Status defines the trading status of a market
type Status int8

const (
	Active  Status = iota // Trading enabled
	Paused                // Trading halted, book kept
	Settled               // Market closed for good
)

func (s Status) String() string {
	switch s {
	case Active:
		return "Active"
	case Paused:
		return "Paused"
	case Settled:
		return "Settled"
	default:
		return "Unknown"
	}
}

// ParseStatus accepts the names returned by String, case-sensitively.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "Active":
		return Active, nil
	case "Paused":
		return Paused, nil
	case "Settled":
		return Settled, nil
	}
	return 0, fmt.Errorf("unknown market status %q", s)
}

// Market holds the trading parameters of the single instrument.
type Market struct {
	Symbol string // "HYPL-USDC"
	Base   string // "HYPL"
	Quote  string // "USDC"
	Status Status

	// Prices are integer ticks and must be a multiple of TickSize.
	TickSize int64
	// Quantities are integer units and must be a multiple of LotSize.
	LotSize int64

	MinOrderSize int64
	MaxOrderSize int64
}

// Params are the tunable fields of a Market.
type Params struct {
	TickSize     int64
	LotSize      int64
	MinOrderSize int64
	MaxOrderSize int64
}

// DefaultParams accepts any positive integer quantity up to one million.
func DefaultParams() Params {
	return Params{
		TickSize:     1,
		LotSize:      1,
		MinOrderSize: 1,
		MaxOrderSize: 1_000_000,
	}
}

// NewMarket creates an active market with validation
func NewMarket(symbol, base, quote string, p Params) (*Market, error) {
	m := &Market{
		Symbol:       symbol,
		Base:         base,
		Quote:        quote,
		Status:       Active,
		TickSize:     p.TickSize,
		LotSize:      p.LotSize,
		MinOrderSize: p.MinOrderSize,
		MaxOrderSize: p.MaxOrderSize,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// NewMarketWithDefaults derives base and quote from a "BASE-QUOTE" symbol.
func NewMarketWithDefaults(symbol string) (*Market, error) {
	base, quote := SplitSymbol(symbol)
	return NewMarket(symbol, base, quote, DefaultParams())
}

// SplitSymbol splits "BASE-QUOTE" or "BASE/QUOTE". Quote is empty when
// there is no separator.
func SplitSymbol(symbol string) (string, string) {
	for i := 0; i < len(symbol); i++ {
		if symbol[i] == '-' || symbol[i] == '/' {
			return symbol[:i], symbol[i+1:]
		}
	}
	return symbol, ""
}

// Validate checks market parameter sanity
func (m *Market) Validate() error {
	switch {
	case m.Symbol == "":
		return fmt.Errorf("%w: symbol cannot be empty", ErrInvalidParams)
	case m.TickSize <= 0:
		return fmt.Errorf("%w: tick size must be positive", ErrInvalidParams)
	case m.LotSize <= 0:
		return fmt.Errorf("%w: lot size must be positive", ErrInvalidParams)
	case m.MinOrderSize <= 0:
		return fmt.Errorf("%w: min order size must be positive", ErrInvalidParams)
	case m.MaxOrderSize < m.MinOrderSize:
		return fmt.Errorf("%w: min order size cannot exceed max order size", ErrInvalidParams)
	}
	return nil
}

// ValidateOrder performs all order validations
func (m *Market) ValidateOrder(price, qty int64) error {
	if m.Status != Active {
		return fmt.Errorf("%w: %s is %s", ErrMarketNotActive, m.Symbol, m.Status)
	}
	if price < 0 {
		return fmt.Errorf("%w: price %d is negative", ErrOrderRejected, price)
	}
	if price%m.TickSize != 0 {
		return fmt.Errorf("%w: price %d is not a multiple of tick %d", ErrOrderRejected, price, m.TickSize)
	}
	if qty%m.LotSize != 0 {
		return fmt.Errorf("%w: quantity %d is not a multiple of lot %d", ErrOrderRejected, qty, m.LotSize)
	}
	if qty < m.MinOrderSize {
		return fmt.Errorf("%w: order size %d below minimum %d", ErrOrderRejected, qty, m.MinOrderSize)
	}
	if qty > m.MaxOrderSize {
		return fmt.Errorf("%w: order size %d exceeds maximum %d", ErrOrderRejected, qty, m.MaxOrderSize)
	}
	return nil
}

// SetStatus changes the trading status. Settled is terminal.
// Callers must serialize it with ValidateOrder.
func (m *Market) SetStatus(to Status) error {
	if m.Status == Settled && to != Settled {
		return fmt.Errorf("%w: %s is settled", ErrBadTransition, m.Symbol)
	}
	m.Status = to
	return nil
}
