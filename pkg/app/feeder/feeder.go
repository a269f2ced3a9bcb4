// Package feeder drives synthetic order flow into an engine for load tests
// and demos.
package feeder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/hyperbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperbook/pkg/app/engine"
)

// Config controls order generation rate and shape
type Config struct {
	BatchSize     int           // Actions per tick
	Interval      time.Duration // How often to generate batches
	CancelPercent int           // Share of actions that cancel a resting order
	MidPrice      int64         // Starting mid price in ticks
	SpreadTicks   int           // Prices fall within this many ticks of mid
	TickSize      int64
	LotSize       int64
	MaxLots       int // Quantities are 1..MaxLots lots
}

// DefaultConfig returns reasonable defaults for testing
func DefaultConfig() Config {
	return Config{
		BatchSize:     10,                     // 10 actions per batch
		Interval:      100 * time.Millisecond, // Every 100ms
		CancelPercent: 10,
		MidPrice:      50_000,
		SpreadTicks:   25,
		TickSize:      1,
		LotSize:       1,
		MaxLots:       100,
	}
}

// HighLoadConfig returns config for stress testing
func HighLoadConfig() Config {
	cfg := DefaultConfig()
	cfg.BatchSize = 150
	cfg.Interval = 10 * time.Millisecond // ~15k actions/sec
	cfg.CancelPercent = 20
	return cfg
}

// ConfigFor resolves a preset by name
func ConfigFor(mode string) (Config, error) {
	switch mode {
	case "", "default":
		return DefaultConfig(), nil
	case "high":
		return HighLoadConfig(), nil
	}
	return Config{}, fmt.Errorf("unknown feeder mode %q", mode)
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.MidPrice <= 0 {
		c.MidPrice = d.MidPrice
	}
	if c.SpreadTicks <= 0 {
		c.SpreadTicks = d.SpreadTicks
	}
	if c.TickSize <= 0 {
		c.TickSize = d.TickSize
	}
	if c.LotSize <= 0 {
		c.LotSize = d.LotSize
	}
	if c.MaxLots <= 0 {
		c.MaxLots = d.MaxLots
	}
	return c
}

// Sink receives generated actions. *engine.Engine implements it.
type Sink interface {
	Submit(ctx context.Context, req engine.SubmitRequest) (engine.Result, error)
	Cancel(ctx context.Context, id uint64) (orderbook.Report, error)
}

// Start runs a background goroutine that feeds actions into sink until the
// returned cancel function is called or ctx ends.
func Start(ctx context.Context, sink Sink, cfg Config, log *zap.SugaredLogger) context.CancelFunc {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	cfg = cfg.withDefaults()
	gen := NewGenerator(cfg, 0)

	feedCtx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		startTime := time.Now()
		lastReport := startTime
		var total, rejected int

		log.Infow("feeder_started", "batch", cfg.BatchSize, "interval", cfg.Interval, "mid", cfg.MidPrice)

		for {
			select {
			case <-feedCtx.Done():
				elapsed := time.Since(startTime)
				log.Infow("feeder_stopped",
					"actions", total,
					"rejected", rejected,
					"elapsed", elapsed.Round(time.Second),
				)
				return

			case <-ticker.C:
				for _, a := range gen.GenerateBatch(cfg.BatchSize) {
					err := apply(feedCtx, sink, gen, a)
					if errors.Is(err, context.Canceled) || errors.Is(err, engine.ErrClosed) {
						break
					}
					if err != nil {
						rejected++
					}
					total++
				}

				// Log stats every 10 seconds
				if time.Since(lastReport) >= 10*time.Second {
					lastReport = time.Now()
					stats := gen.GetStats(time.Since(startTime))
					log.Infow("feeder_stats",
						"orders", stats.TotalOrders,
						"cancels", stats.TotalCancels,
						"orders_per_sec", stats.OrdersPerSec,
						"rejected", rejected,
					)
				}
			}
		}
	}()

	return cancel
}

func apply(ctx context.Context, sink Sink, gen *Generator, a Action) error {
	if a.IsCancel() {
		_, err := sink.Cancel(ctx, a.Cancel)
		return err
	}
	res, err := sink.Submit(ctx, a.Submit)
	if err != nil {
		return err
	}
	gen.Observe(res)
	return nil
}
