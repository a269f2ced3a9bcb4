// Package topic binds a matcher's change reports to a publication channel.
package topic

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/uhyunpark/hyperbook/pkg/app/core/feed"
	"github.com/uhyunpark/hyperbook/pkg/app/core/orderbook"
)

// Publisher hands a message to a transport. Implementations must not block:
// Publish runs on the matching goroutine.
type Publisher interface {
	Publish(topic string, msg feed.Message)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(topic string, msg feed.Message)

func (f PublisherFunc) Publish(topic string, msg feed.Message) { f(topic, msg) }

// Fanout publishes every message to each publisher in order.
type Fanout []Publisher

func (f Fanout) Publish(topic string, msg feed.Message) {
	for _, p := range f {
		p.Publish(topic, msg)
	}
}

// SnapshotSource is read for bootstrap and replace-mode publication.
type SnapshotSource interface {
	Snapshot() orderbook.Snapshot
}

type Option func(*TopicData)

// WithReplace publishes a full snapshot instead of each delta, for
// transports that conflate by keeping only the newest message.
func WithReplace(replace bool) Option {
	return func(t *TopicData) { t.replace = replace }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *TopicData) { t.log = log }
}

// TopicData is the publication side of one book. OnChanges and Load must be
// called from the goroutine that owns the book.
type TopicData struct {
	name    string
	src     SnapshotSource
	pub     Publisher
	replace bool
	log     *zap.SugaredLogger

	published atomic.Uint64
}

func New(name string, src SnapshotSource, pub Publisher, opts ...Option) *TopicData {
	t := &TopicData{
		name: name,
		src:  src,
		pub:  pub,
		log:  zap.NewNop().Sugar(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *TopicData) Name() string      { return t.name }
func (t *TopicData) Replace() bool     { return t.replace }
func (t *TopicData) Published() uint64 { return t.published.Load() }

// OnChanges publishes the level changes of one report. Reports that touched
// no level publish nothing.
func (t *TopicData) OnChanges(r orderbook.Report) {
	if len(r.Bids) == 0 && len(r.Asks) == 0 {
		return
	}
	var msg feed.Message
	if t.replace {
		msg = feed.EncodeSnapshot(t.src.Snapshot())
	} else {
		msg = feed.EncodeDelta(r.Bids, r.Asks)
	}
	t.pub.Publish(t.name, msg)
	t.published.Add(1)
	t.log.Debugw("topic_publish",
		"topic", t.name,
		"kind", msg.Kind.String(),
		"records", msg.Len(),
		"order_id", r.OrderID,
	)
}

// Load returns a full snapshot for a new subscriber.
func (t *TopicData) Load() feed.Message {
	return feed.EncodeSnapshot(t.src.Snapshot())
}
