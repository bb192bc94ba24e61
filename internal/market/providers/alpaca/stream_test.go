package alpaca

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quotehub.com/internal/market/model"
)

func TestDecode(t *testing.T) {
	frame := `[
		{"T":"t","S":"AAPL","i":96921,"x":"D","p":126.55,"s":1,"t":"2021-02-22T15:51:44.208Z","c":["@","I"],"z":"C"},
		{"T":"q","S":"MSFT","bx":"U","bp":0,"bs":1,"ax":"Q","ap":240.5,"as":2,"t":"2021-02-22T15:51:45.335Z","c":["R"],"z":"C"},
		{"T":"b","S":"SPY","o":388.985,"h":389.13,"l":388.975,"c":389.12,"v":49378,"n":120,"t":"2021-02-22T19:15:00Z"},
		{"T":"subscription","trades":["AAPL"],"quotes":["MSFT"],"bars":["SPY"]}
	]`
	events, ctrl, err := decode([]byte(frame))
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Len(t, ctrl, 1)
	assert.Equal(t, "subscription", ctrl[0].T)

	tr := events[0]
	assert.Equal(t, model.KindTrade, tr.Kind)
	assert.Equal(t, "AAPL", tr.Symbol())
	assert.Equal(t, "96921", tr.Record.Trade.ID)
	assert.True(t, decimal.RequireFromString("126.55").Equal(tr.Record.Trade.Price))
	assert.True(t, decimal.NewFromInt(1).Equal(tr.Record.Trade.Size))
	assert.Equal(t, int64(1614009104208), tr.Record.Trade.Timestamp)

	q := events[1]
	assert.Equal(t, model.KindTicker, q.Kind)
	assert.True(t, decimal.RequireFromString("240.5").Equal(q.Record.Ticker.Price))

	b := events[2]
	assert.Equal(t, model.KindCandle, b.Kind)
	assert.Equal(t, model.TF1Min, b.Record.Candle.Timeframe)
	assert.Equal(t, int64(120), b.Record.Candle.TradeCount)
}

func TestDecode_Invalid(t *testing.T) {
	_, _, err := decode([]byte(`{"T":"t"}`))
	assert.Error(t, err)
}

func TestReplayMessages_GroupsByKinds(t *testing.T) {
	msgs := replayMessages([]model.Interest{
		{Symbol: "AAPL", Kinds: []model.StreamKind{model.KindTicker}},
		{Symbol: "MSFT", Kinds: []model.StreamKind{model.KindTicker}},
		{Symbol: "TSLA", Kinds: []model.StreamKind{model.KindTrade, model.KindTicker}},
		{Symbol: "NONE"},
	})
	require.Len(t, msgs, 2)
	assert.Equal(t, subMsg{Action: "subscribe", Quotes: []string{"AAPL", "MSFT"}}, msgs[0])
	assert.Equal(t, subMsg{Action: "subscribe", Quotes: []string{"TSLA"}, Trades: []string{"TSLA"}}, msgs[1])
}

func TestToSubMsg(t *testing.T) {
	m := toSubMsg("unsubscribe", []string{"AAPL"}, []model.StreamKind{model.KindCandle})
	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"unsubscribe","bars":["AAPL"]}`, string(b))
}

// fakeAlpaca 模拟 connected -> auth -> subscribe 的握手，并记录收到的消息
func fakeAlpaca(t *testing.T, received chan<- map[string]any) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		_ = c.WriteMessage(websocket.TextMessage, []byte(`[{"T":"success","msg":"connected"}]`))

		var auth map[string]any
		if err := c.ReadJSON(&auth); err != nil || auth["action"] != "auth" {
			return
		}
		_ = c.WriteMessage(websocket.TextMessage, []byte(`[{"T":"success","msg":"authenticated"}]`))

		for {
			var m map[string]any
			if err := c.ReadJSON(&m); err != nil {
				return
			}
			received <- m
			if m["action"] == "subscribe" {
				_ = c.WriteMessage(websocket.TextMessage, []byte(`[{"T":"t","S":"AAPL","i":1,"p":100,"s":5,"t":"2025-03-04T15:00:00Z"}]`))
			}
		}
	}))
}

func TestStream_ReplaysDesiredAndEmits(t *testing.T) {
	received := make(chan map[string]any, 8)
	srv := fakeAlpaca(t, received)
	defer srv.Close()

	s := NewStream(Config{Key: "k", Secret: "s", StreamURL: "ws" + strings.TrimPrefix(srv.URL, "http")}, nil)
	s.BindDesired(func() []model.Interest {
		return []model.Interest{{Symbol: "AAPL", Kinds: []model.StreamKind{model.KindTrade}}}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case m := <-received:
		assert.Equal(t, "subscribe", m["action"])
		assert.Equal(t, []any{"AAPL"}, m["trades"])
	case <-ctx.Done():
		t.Fatal("no replay received")
	}

	select {
	case ev := <-s.Events():
		assert.Equal(t, model.KindTrade, ev.Kind)
		assert.Equal(t, "AAPL", ev.Symbol())
	case <-ctx.Done():
		t.Fatal("no event emitted")
	}

	// 增量订阅走 outbox
	s.Unsubscribe([]string{"AAPL"}, []model.StreamKind{model.KindTrade})
	select {
	case m := <-received:
		assert.Equal(t, "unsubscribe", m["action"])
	case <-ctx.Done():
		t.Fatal("no unsubscribe received")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not stop")
	}
}
