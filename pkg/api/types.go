package api

import "github.com/uhyunpark/hyperbook/pkg/app/core/feed"

// API response types for REST endpoints and WebSocket messages

// ==============================
// REST Response Types
// ==============================

// MarketInfo represents the market's configuration and status
type MarketInfo struct {
	Symbol       string `json:"symbol"`     // e.g., "HYPL-USDC"
	BaseAsset    string `json:"baseAsset"`  // e.g., "HYPL"
	QuoteAsset   string `json:"quoteAsset"` // e.g., "USDC"
	Status       string `json:"status"`     // "Active", "Paused", "Settled"
	TickSize     int64  `json:"tickSize"`   // Prices must be a multiple of this
	LotSize      int64  `json:"lotSize"`    // Sizes must be a multiple of this
	MinOrderSize int64  `json:"minOrderSize"`
	MaxOrderSize int64  `json:"maxOrderSize"`
	Topic        string `json:"topic"` // WebSocket channel of the book
}

// OrderbookSnapshot represents current orderbook state
type OrderbookSnapshot struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`      // Sorted high to low
	Asks      []PriceLevel `json:"asks"`      // Sorted low to high
	Timestamp int64        `json:"timestamp"` // Unix milliseconds
}

// PriceLevel represents [price, size] tuple
type PriceLevel struct {
	Price int64 `json:"price"` // Price in ticks
	Size  int64 `json:"size"`  // Aggregate resting quantity
}

// TradeInfo represents an executed trade
type TradeInfo struct {
	ID           string `json:"id"`
	Seq          uint64 `json:"seq"`
	Symbol       string `json:"symbol"`
	Price        int64  `json:"price"`
	Size         int64  `json:"size"`
	Side         string `json:"side"` // taker side, "buy" or "sell"
	MakerOrderID uint64 `json:"makerOrderId"`
	TakerOrderID uint64 `json:"takerOrderId"`
	Timestamp    int64  `json:"timestamp"` // Unix milliseconds
}

// OrderInfo represents a resting order
type OrderInfo struct {
	ID        uint64 `json:"id"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"` // "buy" or "sell"
	Type      string `json:"type"` // "GTC" or "IOC"
	Price     int64  `json:"price"`
	Size      int64  `json:"size"`
	Filled    int64  `json:"filled"`
	Remaining int64  `json:"remaining"`
}

// SubmitOrderResponse is the response from order submission
type SubmitOrderResponse struct {
	OrderID   uint64      `json:"orderId"`
	Status    string      `json:"status"` // "resting", "filled", "discarded"
	Filled    int64       `json:"filled"`
	Remaining int64       `json:"remaining"` // resting for GTC, discarded for IOC
	Trades    []TradeInfo `json:"trades"`
}

// CancelOrderResponse reports what a cancel did. Status "none" means the
// order was unknown or already finished.
type CancelOrderResponse struct {
	OrderID uint64 `json:"orderId"`
	Status  string `json:"status"` // "cancelled" or "none"
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"` // per-field validation failures
}

// ==============================
// REST Request Types
// ==============================

// Order submissions decode straight into engine.SubmitRequest.

// CancelOrderRequest is the payload for POST /api/v1/orders/cancel
type CancelOrderRequest struct {
	OrderID uint64 `json:"orderId" validate:"required"`
}

// MarketStatusRequest is the payload for POST /api/v1/market/status
type MarketStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=Active Paused Settled"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["book:HYPL-USDC"]
}

// WSBookMessage carries one book change. The first message after a
// subscribe is always a snapshot.
type WSBookMessage struct {
	Type    string       `json:"type"` // "book"
	Channel string       `json:"channel"`
	Kind    string       `json:"kind"`    // "snapshot" or "delta"
	Payload feed.Message `json:"payload"` // wire form, e.g. "D|B100:6|A101"
}

// WSControlMessage acknowledges requests or reports errors
type WSControlMessage struct {
	Type    string `json:"type"` // "unsubscribed" or "error"
	Channel string `json:"channel,omitempty"`
	Message string `json:"message,omitempty"`
}
