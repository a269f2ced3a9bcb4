package orderbook

import "errors"

var (
	ErrInvalidOrder  = errors.New("invalid order")
	ErrStaleID       = errors.New("order id not greater than last accepted id")
	ErrOrderNotFound = errors.New("order not found")
)
