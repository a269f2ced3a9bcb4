package orderbook

import "container/heap"

// priceHeap tracks the prices of live levels with the best price on top.
type priceHeap interface {
	heap.Interface
	Peek() int64
	indexOf(price int64) int
}

// MaxPriceHeap implements heap.Interface for bid prices (highest price on top)
type MaxPriceHeap []int64

func (h MaxPriceHeap) Len() int           { return len(h) }
func (h MaxPriceHeap) Less(i, j int) bool { return h[i] > h[j] }
func (h MaxPriceHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *MaxPriceHeap) Push(x any) {
	*h = append(*h, x.(int64))
}

func (h *MaxPriceHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// Peek returns the top element without removing it
func (h MaxPriceHeap) Peek() int64 {
	if len(h) == 0 {
		return 0
	}
	return h[0]
}

func (h MaxPriceHeap) indexOf(price int64) int {
	for i, p := range h {
		if p == price {
			return i
		}
	}
	return -1
}

// MinPriceHeap implements heap.Interface for ask prices (lowest price on top)
type MinPriceHeap []int64

func (h MinPriceHeap) Len() int           { return len(h) }
func (h MinPriceHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h MinPriceHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *MinPriceHeap) Push(x any) {
	*h = append(*h, x.(int64))
}

func (h *MinPriceHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// Peek returns the top element without removing it
func (h MinPriceHeap) Peek() int64 {
	if len(h) == 0 {
		return 0
	}
	return h[0]
}

func (h MinPriceHeap) indexOf(price int64) int {
	for i, p := range h {
		if p == price {
			return i
		}
	}
	return -1
}
