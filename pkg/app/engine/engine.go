// Package engine runs the matcher of one instrument on a single goroutine.
// Every mutation and every read of the book is a command executed there, so
// ids reach the matcher in the order they were issued and publication sees
// changes in the order they happened.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperbook/pkg/app/core/feed"
	"github.com/uhyunpark/hyperbook/pkg/app/core/market"
	"github.com/uhyunpark/hyperbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperbook/pkg/app/core/topic"
	"github.com/uhyunpark/hyperbook/pkg/sequence"
	"github.com/uhyunpark/hyperbook/pkg/storage"
	"github.com/uhyunpark/hyperbook/pkg/util"
)

var (
	ErrClosed         = errors.New("engine closed")
	ErrAlreadyRunning = errors.New("engine already running")
)

type Config struct {
	QueueSize  int  // pending commands before callers block
	TapeBuffer int  // pending trade batches before the tape drops
	Replace    bool // publish snapshots instead of deltas
}

func DefaultConfig() Config {
	return Config{
		QueueSize:  1024,
		TapeBuffer: 4096,
	}
}

// Deps are the collaborators of an Engine. Store, TapeSequencer, Clock and
// Logger are optional.
type Deps struct {
	Market        *market.Market
	Sequencer     *sequence.Sequencer
	TapeSequencer *sequence.Sequencer
	Publisher     topic.Publisher
	Store         storage.TradeStore
	Clock         util.Clock
	Logger        *zap.SugaredLogger
}

// Result is the outcome of one submission.
type Result struct {
	Report    orderbook.Report
	Trades    []storage.TradeRecord
	Filled    int64
	Remaining int64 // resting for GTC, discarded for IOC
}

// Stats are cumulative counters since start.
type Stats struct {
	Accepted      uint64 `json:"accepted"`
	Rejected      uint64 `json:"rejected"`
	Cancelled     uint64 `json:"cancelled"`
	Trades        uint64 `json:"trades"`
	TapeDropped   uint64 `json:"tape_dropped"`
	TapeFailed    uint64 `json:"tape_failed"`
	Published     uint64 `json:"published"`
	RestingOrders int    `json:"resting_orders"`
}

type Engine struct {
	cfg     Config
	mkt     *market.Market
	seq     *sequence.Sequencer
	tapeSeq *sequence.Sequencer
	matcher *orderbook.Matcher
	topic   *topic.TopicData
	store   storage.TradeStore
	clock   util.Clock
	log     *zap.SugaredLogger

	cmds    chan func()
	tape    chan []storage.TradeRecord
	done    chan struct{}
	running atomic.Bool

	accepted    atomic.Uint64
	rejected    atomic.Uint64
	cancelled   atomic.Uint64
	trades      atomic.Uint64
	tapeDropped atomic.Uint64
	tapeFailed  atomic.Uint64
	resting     atomic.Int64
}

func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Market == nil {
		return nil, errors.New("engine: market is required")
	}
	if deps.Sequencer == nil {
		return nil, errors.New("engine: sequencer is required")
	}
	if deps.Publisher == nil {
		deps.Publisher = topic.Fanout(nil)
	}
	if deps.TapeSequencer == nil {
		deps.TapeSequencer = sequence.New(0)
	}
	if deps.Clock == nil {
		deps.Clock = util.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	if cfg.QueueSize < 0 || cfg.TapeBuffer < 0 {
		return nil, fmt.Errorf("engine: negative buffer size in %+v", cfg)
	}

	m := orderbook.NewMatcher()
	e := &Engine{
		cfg:     cfg,
		mkt:     deps.Market,
		seq:     deps.Sequencer,
		tapeSeq: deps.TapeSequencer,
		matcher: m,
		store:   deps.Store,
		clock:   deps.Clock,
		log:     deps.Logger,
		cmds:    make(chan func(), cfg.QueueSize),
		tape:    make(chan []storage.TradeRecord, cfg.TapeBuffer),
		done:    make(chan struct{}),
	}
	e.topic = topic.New(TopicName(deps.Market.Symbol), m, deps.Publisher,
		topic.WithReplace(cfg.Replace),
		topic.WithLogger(deps.Logger),
	)
	return e, nil
}

// TopicName is the channel a market's book is published on.
func TopicName(symbol string) string { return "book:" + symbol }

func (e *Engine) Topic() string  { return e.topic.Name() }
func (e *Engine) Symbol() string { return e.mkt.Symbol }

// Run executes commands until ctx is done. Trades still queued for the tape
// are flushed before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	tapeDone := make(chan struct{})
	go func() {
		defer close(tapeDone)
		e.runTape()
	}()

	e.log.Infow("engine_started",
		"symbol", e.mkt.Symbol,
		"topic", e.topic.Name(),
		"replace", e.cfg.Replace,
		"persist", e.store != nil,
	)

	defer func() {
		close(e.done)
		close(e.tape)
		<-tapeDone
		e.log.Infow("engine_stopped", "symbol", e.mkt.Symbol)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-e.cmds:
			fn()
		}
	}
}

// do runs fn on the matching goroutine and waits for it. If ctx ends after
// fn was queued, fn still runs but its outcome is lost to the caller.
func (e *Engine) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	cmd := func() {
		defer close(finished)
		fn()
	}

	select {
	case e.cmds <- cmd:
	case <-e.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-e.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit validates req, assigns the next id and matches it.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (Result, error) {
	if err := req.Validate(); err != nil {
		e.rejected.Add(1)
		return Result{}, err
	}

	var (
		res  Result
		serr error
	)
	err := e.do(ctx, func() { res, serr = e.submit(req) })
	if err != nil {
		return Result{}, err
	}
	if serr != nil {
		e.rejected.Add(1)
		return Result{}, serr
	}
	e.accepted.Add(1)
	return res, nil
}

func (e *Engine) submit(req SubmitRequest) (Result, error) {
	if err := e.mkt.ValidateOrder(req.Price, req.Qty); err != nil {
		return Result{}, err
	}
	o, err := req.toOrder(e.seq.Next())
	if err != nil {
		return Result{}, err
	}
	rep, err := e.matcher.Submit(o)
	if err != nil {
		return Result{}, err
	}
	e.topic.OnChanges(rep)
	e.resting.Store(int64(e.matcher.Resting()))

	res := Result{Report: rep, Trades: e.record(rep.Trades)}
	for _, t := range rep.Trades {
		res.Filled += t.Qty
	}
	res.Remaining = o.Qty - res.Filled

	e.log.Debugw("order_submitted",
		"order_id", o.ID,
		"side", o.Side.String(),
		"price", o.Price,
		"qty", o.Qty,
		"state", rep.State.String(),
		"trades", len(rep.Trades),
	)
	return res, nil
}

// record stamps trades with tape ids and hands them to the tape without
// waiting for storage.
func (e *Engine) record(trades []orderbook.Trade) []storage.TradeRecord {
	if len(trades) == 0 {
		return nil
	}
	now := e.clock.Now().UnixMilli()
	recs := make([]storage.TradeRecord, len(trades))
	for i, t := range trades {
		recs[i] = storage.TradeRecord{
			Seq:       e.tapeSeq.Next(),
			ID:        uuid.NewString(),
			Symbol:    e.mkt.Symbol,
			Price:     t.Price,
			Qty:       t.Qty,
			MakerID:   t.MakerID,
			TakerID:   t.TakerID,
			TakerSide: takerSide(t.TakerSide),
			Timestamp: now,
		}
	}
	e.trades.Add(uint64(len(recs)))

	if e.store == nil {
		return recs
	}
	select {
	case e.tape <- recs:
	default:
		e.tapeDropped.Add(uint64(len(recs)))
		e.log.Warnw("tape_full_dropping_trades",
			"count", len(recs),
			"first_seq", recs[0].Seq,
		)
	}
	return recs
}

func takerSide(s orderbook.Side) string {
	if s == orderbook.Bid {
		return "buy"
	}
	return "sell"
}

// Cancel removes a resting order. Unknown or already finished ids give an
// empty report and no error.
func (e *Engine) Cancel(ctx context.Context, id uint64) (orderbook.Report, error) {
	var rep orderbook.Report
	err := e.do(ctx, func() {
		rep = e.matcher.Cancel(id)
		e.topic.OnChanges(rep)
		e.resting.Store(int64(e.matcher.Resting()))
	})
	if err != nil {
		return orderbook.Report{}, err
	}
	if rep.State == orderbook.StateCancelled {
		e.cancelled.Add(1)
		e.log.Debugw("order_cancelled", "order_id", id)
	}
	return rep, nil
}

func (e *Engine) Snapshot(ctx context.Context) (orderbook.Snapshot, error) {
	var snap orderbook.Snapshot
	err := e.do(ctx, func() { snap = e.matcher.Snapshot() })
	return snap, err
}

// Order returns a resting order by id.
func (e *Engine) Order(ctx context.Context, id uint64) (orderbook.Order, bool, error) {
	var (
		o  orderbook.Order
		ok bool
	)
	err := e.do(ctx, func() { o, ok = e.matcher.Lookup(id) })
	return o, ok, err
}

// Subscribe calls fn on the matching goroutine with a snapshot of the book.
// Whatever fn registers with the publisher receives every change made after
// that snapshot and none made before it.
func (e *Engine) Subscribe(ctx context.Context, fn func(feed.Message)) error {
	return e.do(ctx, func() { fn(e.topic.Load()) })
}

// SetStatus pauses, resumes or settles the market. Resting orders stay in
// the book while paused.
func (e *Engine) SetStatus(ctx context.Context, status market.Status) error {
	var serr error
	err := e.do(ctx, func() { serr = e.mkt.SetStatus(status) })
	if err != nil {
		return err
	}
	if serr == nil {
		e.log.Infow("market_status_changed", "symbol", e.mkt.Symbol, "status", status.String())
	}
	return serr
}

// Market returns a copy of the market parameters and current status.
func (e *Engine) Market(ctx context.Context) (market.Market, error) {
	var m market.Market
	err := e.do(ctx, func() { m = *e.mkt })
	return m, err
}

func (e *Engine) Stats() Stats {
	return Stats{
		Accepted:      e.accepted.Load(),
		Rejected:      e.rejected.Load(),
		Cancelled:     e.cancelled.Load(),
		Trades:        e.trades.Load(),
		TapeDropped:   e.tapeDropped.Load(),
		TapeFailed:    e.tapeFailed.Load(),
		Published:     e.topic.Published(),
		RestingOrders: int(e.resting.Load()),
	}
}
