package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hyperbook/pkg/app/core/feed"
	"github.com/uhyunpark/hyperbook/pkg/app/core/market"
	"github.com/uhyunpark/hyperbook/pkg/app/engine"
	"github.com/uhyunpark/hyperbook/pkg/sequence"
	"github.com/uhyunpark/hyperbook/pkg/storage"
)

type fixture struct {
	srv   *httptest.Server
	eng   *engine.Engine
	hub   *Hub
	store *storage.InMemoryTradeStore
}

func newFixture(t *testing.T, backlog int) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	mkt, err := market.NewMarketWithDefaults("HYPL-USDC")
	require.NoError(t, err)
	store := storage.NewInMemoryTradeStore()
	hub := NewHub(nil, backlog, false)
	eng, err := engine.New(engine.DefaultConfig(), engine.Deps{
		Market:    mkt,
		Sequencer: sequence.New(0),
		Publisher: hub,
		Store:     store,
	})
	require.NoError(t, err)

	engDone := make(chan struct{})
	go func() {
		defer close(engDone)
		assert.NoError(t, eng.Run(ctx))
	}()
	go hub.Run(ctx)

	srv := httptest.NewServer(NewServer(eng, store, hub, nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-engDone
	})
	return &fixture{srv: srv, eng: eng, hub: hub, store: store}
}

func (f *fixture) post(t *testing.T, path string, body any) (*http.Response, []byte) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func (f *fixture) get(t *testing.T, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestSubmitAndQuery(t *testing.T) {
	f := newFixture(t, 64)

	resp, body := f.post(t, "/api/v1/orders", engine.SubmitRequest{Side: "buy", Price: 100, Qty: 10})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var sub SubmitOrderResponse
	require.NoError(t, json.Unmarshal(body, &sub))
	assert.Equal(t, uint64(1), sub.OrderID)
	assert.Equal(t, "resting", sub.Status)
	assert.Empty(t, sub.Trades)

	resp, body = f.post(t, "/api/v1/orders", engine.SubmitRequest{Side: "sell", Type: "IOC", Price: 95, Qty: 4})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &sub))
	assert.Equal(t, "filled", sub.Status)
	require.Len(t, sub.Trades, 1)
	assert.Equal(t, int64(100), sub.Trades[0].Price)
	assert.Equal(t, "sell", sub.Trades[0].Side)

	var book OrderbookSnapshot
	f.get(t, "/api/v1/book", &book)
	assert.Equal(t, "HYPL-USDC", book.Symbol)
	assert.Equal(t, []PriceLevel{{Price: 100, Size: 6}}, book.Bids)
	assert.Empty(t, book.Asks)

	var order OrderInfo
	f.get(t, "/api/v1/orders/1", &order)
	assert.Equal(t, int64(6), order.Remaining)
	assert.Equal(t, int64(4), order.Filled)
	assert.Equal(t, "buy", order.Side)

	assert.Eventually(t, func() bool {
		var trades []TradeInfo
		f.get(t, "/api/v1/trades?limit=5", &trades)
		return len(trades) == 1
	}, time.Second, 5*time.Millisecond)

	resp, body = f.post(t, "/api/v1/orders/cancel", CancelOrderRequest{OrderID: 1})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var cancelled CancelOrderResponse
	require.NoError(t, json.Unmarshal(body, &cancelled))
	assert.Equal(t, "cancelled", cancelled.Status)

	_, body = f.post(t, "/api/v1/orders/cancel", CancelOrderRequest{OrderID: 1})
	require.NoError(t, json.Unmarshal(body, &cancelled))
	assert.Equal(t, "none", cancelled.Status)

	resp = f.get(t, "/api/v1/orders/1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubmitRejects(t *testing.T) {
	f := newFixture(t, 64)

	tests := []struct {
		name   string
		body   any
		status int
		field  string
	}{
		{"zero quantity", engine.SubmitRequest{Side: "buy", Price: 100, Qty: 0}, http.StatusBadRequest, "Qty"},
		{"negative price", engine.SubmitRequest{Side: "buy", Price: -1, Qty: 1}, http.StatusBadRequest, "Price"},
		{"bad side", engine.SubmitRequest{Side: "short", Price: 1, Qty: 1}, http.StatusBadRequest, "Side"},
		{"not json", "{", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.post(t, "/api/v1/orders", tt.body)
			require.Equal(t, tt.status, resp.StatusCode)
			var e ErrorResponse
			require.NoError(t, json.Unmarshal(body, &e))
			if tt.field != "" {
				assert.Contains(t, e.Fields, tt.field)
			}
		})
	}

	resp, body := f.post(t, "/api/v1/orders/cancel", map[string]any{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Contains(t, e.Fields, "OrderID")

	resp = f.get(t, "/api/v1/trades?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMarketStatus(t *testing.T) {
	f := newFixture(t, 64)

	var info MarketInfo
	f.get(t, "/api/v1/market", &info)
	assert.Equal(t, "Active", info.Status)
	assert.Equal(t, "book:HYPL-USDC", info.Topic)

	resp, body := f.post(t, "/api/v1/market/status", MarketStatusRequest{Status: "Paused"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, _ = f.post(t, "/api/v1/orders", engine.SubmitRequest{Side: "buy", Price: 100, Qty: 1})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = f.post(t, "/api/v1/market/status", MarketStatusRequest{Status: "Frozen"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndStats(t *testing.T) {
	f := newFixture(t, 64)

	var health map[string]string
	resp := f.get(t, "/health", &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health["status"])

	f.post(t, "/api/v1/orders", engine.SubmitRequest{Side: "sell", Price: 10, Qty: 1})
	var stats map[string]any
	f.get(t, "/api/v1/stats", &stats)
	assert.EqualValues(t, 1, stats["accepted"])
	assert.EqualValues(t, 1, stats["resting_orders"])
}

func dial(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readBook(t *testing.T, conn *websocket.Conn) WSBookMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m WSBookMessage
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestWebSocket_SnapshotThenDeltas(t *testing.T) {
	f := newFixture(t, 64)

	f.post(t, "/api/v1/orders", engine.SubmitRequest{Side: "buy", Price: 99, Qty: 3})

	conn := dial(t, f)
	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{"book:HYPL-USDC"}}))

	first := readBook(t, conn)
	assert.Equal(t, "book", first.Type)
	assert.Equal(t, "book:HYPL-USDC", first.Channel)
	assert.Equal(t, "snapshot", first.Kind)
	assert.Equal(t, "S|B99:3", first.Payload.String())

	f.post(t, "/api/v1/orders", engine.SubmitRequest{Side: "sell", Price: 101, Qty: 2})
	f.post(t, "/api/v1/orders", engine.SubmitRequest{Side: "buy", Price: 101, Qty: 2})

	st := feed.NewState()
	feed.DecodeInto(st, first.Payload)
	for _, want := range []string{"D|A101:2", "D|A101"} {
		m := readBook(t, conn)
		assert.Equal(t, "delta", m.Kind)
		assert.Equal(t, want, m.Payload.String())
		feed.DecodeInto(st, m.Payload)
	}

	snap, err := f.eng.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snap, st.Snapshot())
}

func TestWebSocket_Errors(t *testing.T) {
	f := newFixture(t, 64)
	conn := dial(t, f)

	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{"book:OTHER"}}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ctl WSControlMessage
	require.NoError(t, conn.ReadJSON(&ctl))
	assert.Equal(t, "error", ctl.Type)
	assert.Equal(t, "book:OTHER", ctl.Channel)

	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{Op: "dance"}))
	require.NoError(t, conn.ReadJSON(&ctl))
	assert.Equal(t, "error", ctl.Type)
	assert.Contains(t, ctl.Message, "dance")
}
