package feeder

import (
	"math/rand"
	"time"

	"github.com/uhyunpark/hyperbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperbook/pkg/app/engine"
)

// maxTracked bounds how many resting ids the generator remembers for cancels
const maxTracked = 1024

// Action is one generated request: a submit, or a cancel when Cancel != 0.
type Action struct {
	Submit engine.SubmitRequest
	Cancel uint64
}

func (a Action) IsCancel() bool { return a.Cancel != 0 }

// Generator creates random order flow around a drifting mid price
type Generator struct {
	cfg  Config
	mid  int64
	live []uint64 // ids reported resting, oldest first
	rng  *rand.Rand

	orders  int
	cancels int
}

// NewGenerator creates a new generator. A zero seed uses the clock.
func NewGenerator(cfg Config, seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	cfg = cfg.withDefaults()
	return &Generator{
		cfg: cfg,
		mid: cfg.MidPrice,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// GenerateOrder creates a random order request
func (g *Generator) GenerateOrder() engine.SubmitRequest {
	// Mid drifts by at most one tick per order
	g.mid += int64(g.rng.Intn(3)-1) * g.cfg.TickSize
	if g.mid < g.cfg.TickSize*int64(g.cfg.SpreadTicks+1) {
		g.mid = g.cfg.TickSize * int64(g.cfg.SpreadTicks+1)
	}

	// Random order type: 70% GTC, 30% IOC
	orderType := "GTC"
	if g.rng.Intn(100) >= 70 {
		orderType = "IOC"
	}

	// Random side: 50% BUY, 50% SELL
	side := "buy"
	if g.rng.Intn(2) == 1 {
		side = "sell"
	}

	// Buyers lean below mid and sellers above, with overlap so some cross
	offset := int64(g.rng.Intn(2*g.cfg.SpreadTicks+1)-g.cfg.SpreadTicks) * g.cfg.TickSize
	if side == "buy" {
		offset -= g.cfg.TickSize
	} else {
		offset += g.cfg.TickSize
	}
	price := g.mid + offset
	if price < 0 {
		price = 0
	}

	qty := int64(g.rng.Intn(g.cfg.MaxLots)+1) * g.cfg.LotSize

	g.orders++
	return engine.SubmitRequest{Side: side, Type: orderType, Price: price, Qty: qty}
}

// GenerateCancel picks a remembered resting order to cancel
func (g *Generator) GenerateCancel() (uint64, bool) {
	if len(g.live) == 0 {
		return 0, false
	}
	i := g.rng.Intn(len(g.live))
	id := g.live[i]
	g.live[i] = g.live[len(g.live)-1]
	g.live = g.live[:len(g.live)-1]
	g.cancels++
	return id, true
}

// GenerateMix creates a random action with the configured cancel ratio
func (g *Generator) GenerateMix() Action {
	if g.rng.Intn(100) < g.cfg.CancelPercent {
		if id, ok := g.GenerateCancel(); ok {
			return Action{Cancel: id}
		}
	}
	return Action{Submit: g.GenerateOrder()}
}

// GenerateBatch creates multiple random actions
func (g *Generator) GenerateBatch(count int) []Action {
	batch := make([]Action, count)
	for i := range batch {
		batch[i] = g.GenerateMix()
	}
	return batch
}

// Observe remembers a resting order so a later action may cancel it
func (g *Generator) Observe(res engine.Result) {
	if res.Report.State != orderbook.StateResting {
		return
	}
	if len(g.live) == maxTracked {
		copy(g.live, g.live[1:])
		g.live = g.live[:maxTracked-1]
	}
	g.live = append(g.live, res.Report.OrderID)
}

// Stats for load testing analysis
type Stats struct {
	TotalOrders   int
	TotalCancels  int
	OrdersPerSec  float64
	CancelsPerSec float64
}

// GetStats returns current generation statistics
func (g *Generator) GetStats(elapsed time.Duration) Stats {
	seconds := elapsed.Seconds()
	if seconds == 0 {
		seconds = 1
	}
	return Stats{
		TotalOrders:   g.orders,
		TotalCancels:  g.cancels,
		OrdersPerSec:  float64(g.orders) / seconds,
		CancelsPerSec: float64(g.cancels) / seconds,
	}
}
