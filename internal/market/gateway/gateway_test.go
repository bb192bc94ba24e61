package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quotehub.com/internal/market/model"
	"quotehub.com/internal/market/subscription"
	"quotehub.com/internal/market/ws"
)

type resyncCall struct {
	ac        model.AssetClass
	kind      subscription.ChannelKind
	symbols   []string // nil = 走缓存的 Resync
	fromCache bool
}

type fakeResyncer struct {
	mu    sync.Mutex
	calls []resyncCall
}

func (f *fakeResyncer) ApplySnapshot(ac model.AssetClass, kind subscription.ChannelKind, recs []model.Record) error {
	f.mu.Lock()
	f.calls = append(f.calls, resyncCall{ac: ac, kind: kind, symbols: model.Symbols(recs)})
	f.mu.Unlock()
	return nil
}

func (f *fakeResyncer) Resync(_ context.Context, ac model.AssetClass, kind subscription.ChannelKind) error {
	f.mu.Lock()
	f.calls = append(f.calls, resyncCall{ac: ac, kind: kind, fromCache: true})
	f.mu.Unlock()
	return nil
}

func (f *fakeResyncer) snapshot() []resyncCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]resyncCall(nil), f.calls...)
}

func TestMatch(t *testing.T) {
	assert.True(t, Match("market:>", "market:equity:gainers"))
	assert.False(t, Match("market:>", "market"))
	assert.True(t, Match("market:*:gainers", "market:crypto:gainers"))
	assert.False(t, Match("market:*:gainers", "market:crypto:losers"))
	assert.True(t, Match("market:equity:assets", "market:equity:assets"))
	assert.False(t, Match("market:equity", "market:equity:assets"))
}

func TestSubjectMapping(t *testing.T) {
	assert.Equal(t, "market.equity.most-active", topicToSubject("market:equity:most-active"))
	assert.Equal(t, "market.>", topicToSubject(SnapshotPattern))
	assert.Equal(t, "market:crypto:gainers", subjectToTopic("market.crypto.gainers"))
}

func TestMemBroker_WildcardAndCancel(t *testing.T) {
	b := NewMemBroker()
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := b.Subscribe(ctx, []string{"market:>"})
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "market:equity:gainers", []byte("x")))
	require.NoError(t, b.Publish(ctx, "other:topic", []byte("y")))

	m := <-ch
	assert.Equal(t, "market:equity:gainers", m.Topic)
	select {
	case m := <-ch:
		t.Fatalf("unexpected %s", m.Topic)
	default:
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestGateway_SnapshotToHubAndResync(t *testing.T) {
	hub := ws.NewHub()
	broker := NewMemBroker()
	engine := &fakeResyncer{}
	g := NewGateway(hub, broker, engine, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	// 等 Run 订阅上
	require.Eventually(t, func() bool {
		broker.mu.RLock()
		defer broker.mu.RUnlock()
		return len(broker.subs) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, g.Publish(ctx, "market:equity:assets", []byte(`[]`)))
	require.NoError(t, g.Publish(ctx, "market:equity:most-active", []byte(`[{"symbol":"NVDA"}]`)))

	require.Eventually(t, func() bool { return hub.Last("market:equity:most-active") != nil }, time.Second, 5*time.Millisecond)
	var frame ws.SnapshotFrame
	require.NoError(t, json.Unmarshal(hub.Last("market:equity:most-active"), &frame))
	assert.Equal(t, ws.MsgSnapshot, frame.Type)
	assert.JSONEq(t, `[{"symbol":"NVDA"}]`, string(frame.Data))

	// assets 不是榜单频道，不回放也不 resync
	assert.Nil(t, hub.Last("market:equity:assets"))
	require.Eventually(t, func() bool { return len(engine.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, resyncCall{ac: model.Equity, kind: subscription.ChannelMostActive, symbols: []string{"NVDA"}}, engine.snapshot()[0])

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestGateway_ListenBeforePublish(t *testing.T) {
	hub := ws.NewHub()
	broker := NewMemBroker()
	engine := &fakeResyncer{}
	g := NewGateway(hub, broker, engine, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := g.Listen(ctx)
	require.NoError(t, err)

	// 启动预热时 Serve 还没跑，快照先排在订阅里
	require.NoError(t, g.Publish(ctx, "market:crypto:top-traded", []byte(`[{"symbol":"BTC"},{"symbol":"ETH"}]`)))
	go func() { _ = g.Serve(ctx, ch) }()

	require.Eventually(t, func() bool { return hub.Last("market:crypto:top-traded") != nil }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(engine.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"BTC", "ETH"}, engine.snapshot()[0].symbols)
}

func TestGateway_UndecodableSnapshotFallsBackToCache(t *testing.T) {
	engine := &fakeResyncer{}
	g := NewGateway(ws.NewHub(), NewMemBroker(), engine, nil)

	g.onSnapshot(context.Background(), Message{Topic: "market:equity:gainers", Payload: []byte(`{"items":1}`)})
	require.Len(t, engine.snapshot(), 1)
	assert.True(t, engine.snapshot()[0].fromCache)
	assert.Equal(t, subscription.ChannelGainers, engine.snapshot()[0].kind)
}

func TestGateway_PumpEncodesEvents(t *testing.T) {
	hub := ws.NewHub()
	g := NewGateway(hub, NewMemBroker(), &fakeResyncer{}, nil)
	conn := ws.NewConn("c1", nil)
	hub.Join(conn, []string{"market:equity:symbols:AAPL"})

	in := make(chan subscription.Broadcast, 1)
	in <- subscription.Broadcast{
		Channel: "market:equity:symbols:AAPL",
		Event:   model.Event{Kind: model.KindTicker, Record: model.Record{Asset: model.Asset{Symbol: "AAPL"}}},
	}
	close(in)
	g.Pump(context.Background(), in)

	assert.Equal(t, 1, conn.Pending())
}

func TestParseTopic(t *testing.T) {
	ac, kind, ok := parseTopic("market:crypto:top-traded")
	require.True(t, ok)
	assert.Equal(t, model.Crypto, ac)
	assert.Equal(t, subscription.ChannelTopTraded, kind)

	for _, topic := range []string{"market:equity:candles", "market:forex:gainers", "market:equity:symbols:AAPL", "foo:equity:gainers"} {
		_, _, ok := parseTopic(topic)
		assert.False(t, ok, topic)
	}
}
