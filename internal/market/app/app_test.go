package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quotehub.com/internal/market/model"
	"quotehub.com/internal/market/subscription"
)

func testConfig() *Config {
	return &Config{
		Name:  "market-test",
		Cache: CacheConfig{Driver: "memory"},
	}
}

func TestBuild_MemoryWithoutAlpaca(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, err := build(context.Background(), testConfig(), nil)
	require.NoError(t, err)
	// 在 start 之前订阅再退订：upbit stream 起来时 desired 为空，不会去连上游
	ids, err := m.engine.Subscribe(context.Background(), "c1", subscription.Payload{
		AssetClass: model.Crypto, Channel: subscription.ChannelSymbols, Symbols: []string{"BTC"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"market:crypto:symbols:BTC"}, ids)
	m.engine.RemoveClient("c1")
	assert.Empty(t, m.engine.Desired(model.Crypto))

	_, err = m.engine.Subscribe(context.Background(), "c1", subscription.Payload{
		AssetClass: model.Equity, Channel: subscription.ChannelSymbols, Symbols: []string{"AAPL"},
	})
	assert.ErrorIs(t, err, subscription.ErrUnsupportedAssetClass)

	cleanup, err := m.start()
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, cleanup(ctx))
	}()

	assert.False(t, m.registry.Has(model.Equity, model.Assets))
	assert.True(t, m.registry.Has(model.Crypto, model.TopTraded))
	assert.Len(t, m.streams, 1)
	assert.Nil(t, m.leader)

	// start 返回后 gateway 已在订阅，紧接着发布的快照（预热产生的）会进 hub
	require.NoError(t, m.broker.Publish(context.Background(), "market:crypto:top-traded", []byte(`[{"symbol":"BTC"}]`)))
	require.Eventually(t, func() bool { return m.hub.Last("market:crypto:top-traded") != nil }, time.Second, 5*time.Millisecond)

	w := httptest.NewRecorder()
	m.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	m.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/market/equity/assets", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBuild_RedisDriverRequiresClient(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Driver = "redis"
	_, err := build(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestUpstreamLimiterDefaults(t *testing.T) {
	s := upstreamLimiter(0, 0, 8)
	for i := 0; i < 8; i++ {
		assert.True(t, s.Allow("upbit"))
	}
	assert.False(t, s.Allow("upbit"))
}
