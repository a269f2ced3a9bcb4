package kafka

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperbook/pkg/app/core/feed"
)

// Publisher implements topic.Publisher on top of a SyncProducer. Publish only
// queues; Run does the sending.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string // Kafka topic; the book topic is the message key
	log      *zap.SugaredLogger
	limit    int
	replace  bool

	mu      sync.Mutex
	queues  map[string]*feed.Backlog
	pending chan struct{}

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewPublisher queues up to limit messages per book topic before collapsing
// them. replace must match the book's publication mode.
func NewPublisher(producer sarama.SyncProducer, kafkaTopic string, log *zap.SugaredLogger, limit int, replace bool) *Publisher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Publisher{
		producer: producer,
		topic:    kafkaTopic,
		log:      log,
		limit:    limit,
		replace:  replace,
		queues:   make(map[string]*feed.Backlog),
		pending:  make(chan struct{}, 1),
	}
}

func (p *Publisher) backlog(topic string) *feed.Backlog {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.queues[topic]
	if !ok {
		b = feed.NewBacklog(p.limit, p.replace)
		p.queues[topic] = b
	}
	return b
}

func (p *Publisher) Publish(topic string, msg feed.Message) {
	conflated, err := p.backlog(topic).Push(msg)
	if err != nil {
		p.log.Errorw("kafka_backlog_collapse_failed", "topic", topic, "err", err)
	} else if conflated {
		p.log.Debugw("kafka_backlog_conflated", "topic", topic)
	}
	select {
	case p.pending <- struct{}{}:
	default:
	}
}

// Run sends queued messages until ctx is done, then makes a last pass over
// whatever is still queued.
func (p *Publisher) Run(ctx context.Context) error {
	p.log.Infow("kafka_publisher_started", "topic", p.topic, "limit", p.limit, "replace", p.replace)
	for {
		select {
		case <-ctx.Done():
			p.flush()
			p.log.Infow("kafka_publisher_stopped", "sent", p.sent.Load(), "failed", p.failed.Load())
			return nil
		case <-p.pending:
			p.flush()
		}
	}
}

func (p *Publisher) flush() {
	p.mu.Lock()
	topics := make([]string, 0, len(p.queues))
	for t := range p.queues {
		topics = append(topics, t)
	}
	p.mu.Unlock()
	sort.Strings(topics)

	for _, t := range topics {
		b := p.backlog(t)
		for {
			msg, ok := b.Pop()
			if !ok {
				break
			}
			p.send(t, msg)
		}
	}
}

func (p *Publisher) send(bookTopic string, msg feed.Message) {
	pm := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(bookTopic),
		Value: sarama.ByteEncoder(msg.Marshal()),
		Headers: []sarama.RecordHeader{
			{Key: []byte("kind"), Value: []byte(msg.Kind.String())},
		},
	}
	partition, offset, err := p.producer.SendMessage(pm)
	if err != nil {
		// A lost delta leaves consumers behind until they reload a snapshot.
		p.failed.Add(1)
		p.log.Errorw("kafka_send_failed",
			"book_topic", bookTopic,
			"kind", msg.Kind.String(),
			"err", err,
		)
		return
	}
	p.sent.Add(1)
	p.log.Debugw("kafka_sent",
		"book_topic", bookTopic,
		"partition", partition,
		"offset", offset,
	)
}

func (p *Publisher) Sent() uint64   { return p.sent.Load() }
func (p *Publisher) Failed() uint64 { return p.failed.Load() }

// Close closes the producer. Call it after Run has returned.
func (p *Publisher) Close() error {
	return p.producer.Close()
}
