package storage

import "fmt"

// Key schema:
//
//	trade:{symbol}:{seq}  → TradeRecord (JSON)
//
// seq is zero-padded to 20 digits so keys sort in tape order.
const prefixTrade = "trade:"

// tradeKey returns the key for a trade
// Format: "trade:{symbol}:{seq}"
func tradeKey(symbol string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixTrade, symbol, seq))
}

// tradePrefix returns the prefix for all trades of a symbol
// Format: "trade:{symbol}:"
func tradePrefix(symbol string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTrade, symbol))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
