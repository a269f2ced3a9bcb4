package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/hyperbook/params"
	"github.com/uhyunpark/hyperbook/pkg/api"
	"github.com/uhyunpark/hyperbook/pkg/app/core/market"
	"github.com/uhyunpark/hyperbook/pkg/app/core/topic"
	"github.com/uhyunpark/hyperbook/pkg/app/engine"
	"github.com/uhyunpark/hyperbook/pkg/app/feeder"
	"github.com/uhyunpark/hyperbook/pkg/publish/kafka"
	"github.com/uhyunpark/hyperbook/pkg/sequence"
	"github.com/uhyunpark/hyperbook/pkg/storage"
	"github.com/uhyunpark/hyperbook/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	// Setup logging (write to both console and file)
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Node.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.Verbose)
	} else {
		logger, err = util.NewLogger(cfg.Node.Verbose)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "verbose", cfg.Node.Verbose)

	if err := run(cfg, sugar); err != nil {
		sugar.Fatalw("node_failed", "err", err)
	}
}

func run(cfg params.Config, sugar *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Market ----
	p := market.DefaultParams()
	p.TickSize = cfg.Market.TickSize
	p.LotSize = cfg.Market.LotSize
	p.MinOrderSize = cfg.Market.LotSize
	p.MaxOrderSize = cfg.Market.MaxOrderSize
	base, quote := market.SplitSymbol(cfg.Market.Symbol)
	mkt, err := market.NewMarket(cfg.Market.Symbol, base, quote, p)
	if err != nil {
		return err
	}

	// ---- Trade tape ----
	var store storage.TradeStore
	if cfg.Node.TradeDBPath != "" {
		ps, err := storage.NewPebbleStore(cfg.Node.TradeDBPath)
		if err != nil {
			return err
		}
		store = ps
	} else {
		store = storage.NewInMemoryTradeStore()
	}
	defer store.Close()

	lastSeq, err := store.LastSeq(mkt.Symbol)
	if err != nil {
		return err
	}
	sugar.Infow("trade_tape_opened", "path", cfg.Node.TradeDBPath, "last_seq", lastSeq)

	// ---- Publication ----
	hub := api.NewHub(sugar, cfg.Feed.BacklogLimit, cfg.Feed.Replace)
	go hub.Run(ctx)

	publishers := topic.Fanout{hub}
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewSyncProducer(cfg.Kafka.Brokers)
		if err != nil {
			return err
		}
		kp := kafka.NewPublisher(producer, cfg.Kafka.Topic, sugar, cfg.Feed.BacklogLimit, cfg.Feed.Replace)
		kafkaDone := make(chan struct{})
		go func() {
			defer close(kafkaDone)
			_ = kp.Run(ctx)
		}()
		defer func() {
			<-kafkaDone
			if err := kp.Close(); err != nil {
				sugar.Warnw("kafka_close_failed", "err", err)
			}
		}()
		publishers = append(publishers, kp)
		sugar.Infow("kafka_enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	// ---- Engine ----
	eng, err := engine.New(engine.Config{
		QueueSize:  cfg.Engine.QueueSize,
		TapeBuffer: cfg.Engine.TapeBuffer,
		Replace:    cfg.Feed.Replace,
	}, engine.Deps{
		Market:        mkt,
		Sequencer:     sequence.New(0),
		TapeSequencer: sequence.New(lastSeq),
		Publisher:     publishers,
		Store:         store,
		Logger:        sugar,
	})
	if err != nil {
		return err
	}

	engDone := make(chan error, 1)
	go func() { engDone <- eng.Run(ctx) }()

	// ---- Feeder (optional) ----
	// Enable with: ENABLE_FEEDER=true FEEDER_MODE=default|high
	if cfg.Feeder.Enabled {
		fcfg, err := feeder.ConfigFor(cfg.Feeder.Mode)
		if err != nil {
			return err
		}
		fcfg.TickSize = mkt.TickSize
		fcfg.LotSize = mkt.LotSize
		sugar.Infow("feeder_enabled", "mode", cfg.Feeder.Mode, "batch", fcfg.BatchSize, "interval", fcfg.Interval)
		cancelFeeder := feeder.Start(ctx, eng, fcfg, sugar)
		defer cancelFeeder()
	} else {
		sugar.Info("feeder_disabled")
	}

	sugar.Infow("node_starting",
		"symbol", mkt.Symbol,
		"topic", eng.Topic(),
		"replace_mode", cfg.Feed.Replace,
		"backlog_limit", cfg.Feed.BacklogLimit)

	// ---- API Server ----
	apiServer := api.NewServer(eng, store, hub, sugar)
	apiDone := make(chan error, 1)
	go func() { apiDone <- apiServer.Start(ctx, cfg.Node.APIAddr) }()

	// Progress logging loop
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case err := <-apiDone:
			if ctx.Err() == nil {
				stop()
				<-engDone
				return err
			}
		case <-ctx.Done():
			// Let the engine drain its tape before the store closes
			if err := <-engDone; err != nil {
				return err
			}
			sugar.Infow("node_stopped", "stats", eng.Stats())
			return nil
		case <-ticker.C:
			sugar.Infow("engine_progress",
				"stats", eng.Stats(),
				"ws_clients", hub.ClientCount())
		}
	}
}
