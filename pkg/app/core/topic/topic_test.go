package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hyperbook/pkg/app/core/feed"
	"github.com/uhyunpark/hyperbook/pkg/app/core/orderbook"
)

type captured struct {
	topic string
	msg   feed.Message
}

type recorder struct{ got []captured }

func (r *recorder) Publish(topic string, msg feed.Message) {
	r.got = append(r.got, captured{topic, msg})
}

func submit(t *testing.T, m *orderbook.Matcher, id uint64, side orderbook.Side, price, qty int64, tif orderbook.TimeInForce) orderbook.Report {
	t.Helper()
	r, err := m.Submit(orderbook.NewOrder(id, side, price, qty, tif))
	require.NoError(t, err)
	return r
}

func TestOnChanges_Delta(t *testing.T) {
	m := orderbook.NewMatcher()
	rec := &recorder{}
	td := New("book:HYPL-USDC", m, rec)

	td.OnChanges(submit(t, m, 1, orderbook.Bid, 100, 10, orderbook.GTC))
	td.OnChanges(submit(t, m, 2, orderbook.Ask, 100, 4, orderbook.GTC))

	require.Len(t, rec.got, 2)
	assert.Equal(t, "book:HYPL-USDC", rec.got[0].topic)
	assert.Equal(t, "D|B100:10", rec.got[0].msg.String())
	assert.Equal(t, "D|B100:6", rec.got[1].msg.String())
	assert.Equal(t, uint64(2), td.Published())
}

func TestOnChanges_NoLevelChange(t *testing.T) {
	m := orderbook.NewMatcher()
	rec := &recorder{}
	td := New("book", m, rec)

	td.OnChanges(m.Cancel(42))
	td.OnChanges(submit(t, m, 1, orderbook.Ask, 100, 5, orderbook.IOC))

	assert.Empty(t, rec.got)
	assert.Zero(t, td.Published())
}

func TestOnChanges_Replace(t *testing.T) {
	m := orderbook.NewMatcher()
	rec := &recorder{}
	td := New("book", m, rec, WithReplace(true))
	require.True(t, td.Replace())

	td.OnChanges(submit(t, m, 1, orderbook.Bid, 100, 10, orderbook.GTC))
	td.OnChanges(submit(t, m, 2, orderbook.Ask, 103, 2, orderbook.GTC))

	require.Len(t, rec.got, 2)
	assert.Equal(t, feed.KindSnapshot, rec.got[1].msg.Kind)
	assert.Equal(t, "S|B100:10|A103:2", rec.got[1].msg.String())
}

func TestLoadThenDeltas(t *testing.T) {
	m := orderbook.NewMatcher()
	rec := &recorder{}
	td := New("book", m, rec)

	td.OnChanges(submit(t, m, 1, orderbook.Bid, 99, 3, orderbook.GTC))
	td.OnChanges(submit(t, m, 2, orderbook.Ask, 101, 7, orderbook.GTC))

	st := feed.NewState()
	feed.DecodeInto(st, td.Load())

	before := len(rec.got)
	td.OnChanges(submit(t, m, 3, orderbook.Bid, 101, 7, orderbook.GTC))
	td.OnChanges(submit(t, m, 4, orderbook.Bid, 98, 1, orderbook.GTC))
	for _, c := range rec.got[before:] {
		feed.DecodeInto(st, c.msg)
	}

	assert.Equal(t, m.Snapshot(), st.Snapshot())
}

func TestFanout(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	var calls int
	f := Fanout{a, b, PublisherFunc(func(string, feed.Message) { calls++ })}

	f.Publish("t", feed.Message{Kind: feed.KindDelta})
	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)
	assert.Equal(t, 1, calls)
}
