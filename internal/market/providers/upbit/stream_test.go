package upbit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quotehub.com/internal/market/model"
)

func TestBuildPayload(t *testing.T) {
	b, ok := buildPayload([]model.Interest{
		{Symbol: "BTC", Kinds: []model.StreamKind{model.KindTicker, model.KindTrade}},
		{Symbol: "ETH", Kinds: []model.StreamKind{model.KindTicker}},
	})
	require.True(t, ok)

	var msg []map[string]any
	require.NoError(t, json.Unmarshal(b, &msg))
	require.Len(t, msg, 4)
	assert.Contains(t, msg[0]["ticket"], "quotehub-")
	assert.Equal(t, "ticker", msg[1]["type"])
	assert.Equal(t, []any{"KRW-BTC", "KRW-ETH"}, msg[1]["codes"])
	assert.Equal(t, "trade", msg[2]["type"])
	assert.Equal(t, []any{"KRW-BTC"}, msg[2]["codes"])
	assert.Equal(t, "DEFAULT", msg[3]["format"])

	_, ok = buildPayload(nil)
	assert.False(t, ok)
}

func TestDecode(t *testing.T) {
	ev, ok, err := decode([]byte(`{"type":"ticker","code":"KRW-BTC","trade_price":90000000,"signed_change_rate":0.0125,"acc_trade_volume_24h":10,"timestamp":1741100400000}`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.KindTicker, ev.Kind)
	assert.Equal(t, "BTC", ev.Symbol())
	assert.True(t, decimal.RequireFromString("0.0125").Equal(ev.Record.Ticker.ChangeRate))

	ev, ok, err = decode([]byte(`{"type":"trade","code":"KRW-ETH","trade_price":3000000,"trade_volume":1.5,"ask_bid":"BID","sequential_id":42,"trade_timestamp":1741100400123,"timestamp":1741100400200}`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.SideBuy, ev.Record.Trade.Side)
	assert.Equal(t, int64(1741100400123), ev.Record.Trade.Timestamp)

	ev, ok, err = decode([]byte(`{"type":"candle.1m","code":"KRW-XRP","candle_date_time_utc":"2025-03-04T15:00:00","opening_price":1,"high_price":2,"low_price":0.5,"trade_price":1.5}`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.KindCandle, ev.Kind)
	assert.Equal(t, int64(1741100400000), ev.Record.Candle.Start)

	_, ok, err = decode([]byte(`{"status":"UP"}`))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = decode([]byte(`{"error":{"name":"INVALID_PARAM","message":"bad codes"}}`))
	assert.ErrorIs(t, err, errStreamError)
}

func TestStream_ResendsFullSet(t *testing.T) {
	received := make(chan []map[string]any, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		ctx := r.Context()
		for {
			_, raw, err := c.Read(ctx)
			if err != nil {
				return
			}
			var msg []map[string]any
			if json.Unmarshal(raw, &msg) == nil {
				received <- msg
			}
			_ = c.Write(ctx, websocket.MessageBinary, []byte(`{"type":"ticker","code":"KRW-BTC","trade_price":1,"timestamp":1}`))
		}
	}))
	defer srv.Close()

	var (
		mu      sync.Mutex
		desired []model.Interest
	)
	setDesired := func(in ...model.Interest) {
		mu.Lock()
		desired = in
		mu.Unlock()
	}
	s := NewStream(Config{StreamURL: "ws" + strings.TrimPrefix(srv.URL, "http")}, nil)
	s.PingEvery = time.Hour
	s.BindDesired(func() []model.Interest {
		mu.Lock()
		defer mu.Unlock()
		return desired
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// desired 为空时不建连
	select {
	case <-received:
		t.Fatal("dialed without interest")
	case <-time.After(100 * time.Millisecond):
	}

	setDesired(model.Interest{Symbol: "BTC", Kinds: []model.StreamKind{model.KindTicker}})
	s.Subscribe([]string{"BTC"}, []model.StreamKind{model.KindTicker}, "")

	select {
	case msg := <-received:
		assert.Equal(t, []any{"KRW-BTC"}, msg[1]["codes"])
	case <-ctx.Done():
		t.Fatal("no subscription sent")
	}
	select {
	case ev := <-s.Events():
		assert.Equal(t, "BTC", ev.Symbol())
	case <-ctx.Done():
		t.Fatal("no event")
	}

	setDesired(
		model.Interest{Symbol: "BTC", Kinds: []model.StreamKind{model.KindTicker}},
		model.Interest{Symbol: "ETH", Kinds: []model.StreamKind{model.KindTicker}},
	)
	s.Subscribe([]string{"ETH"}, []model.StreamKind{model.KindTicker}, "")
	select {
	case msg := <-received:
		assert.Equal(t, []any{"KRW-BTC", "KRW-ETH"}, msg[1]["codes"])
	case <-ctx.Done():
		t.Fatal("full set not re-sent")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not stop")
	}
}
