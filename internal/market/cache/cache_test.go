package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quotehub.com/internal/market/model"
)

func TestKey_Format(t *testing.T) {
	q := model.QueryParams{
		AssetClass: model.Equity,
		DataType:   model.Candles,
		Symbols:    []string{"msft", "aapl"},
		Timeframe:  model.TF1Day,
		Limit:      100,
		End:        "2025-03-04",
		Start:      "2025-01-01",
	}
	assert.Equal(t, "market:equity:candles:1D:AAPL,MSFT:end=2025-03-04&limit=100&start=2025-01-01", Key(q))
}

func TestKey_EmptySegmentsKept(t *testing.T) {
	q := model.QueryParams{AssetClass: model.Crypto, DataType: model.Assets}
	assert.Equal(t, "market:crypto:assets:::", Key(q))

	q = model.QueryParams{AssetClass: model.Equity, DataType: model.MostActive, Limit: 50}
	assert.Equal(t, "market:equity:most-active:::limit=50", Key(q))
}

func TestKey_Canonical(t *testing.T) {
	a := model.QueryParams{AssetClass: model.Equity, DataType: model.SymbolSnapshot, Symbols: []string{"aapl", "AAPL"}}
	b := model.QueryParams{AssetClass: model.Equity, DataType: model.SymbolSnapshot, Symbols: []string{"AAPL"}}
	assert.Equal(t, Key(b), Key(a))

	c := model.QueryParams{AssetClass: model.Equity, DataType: model.SymbolSnapshot, Symbols: []string{"MSFT", "aapl"}}
	d := model.QueryParams{AssetClass: model.Equity, DataType: model.SymbolSnapshot, Symbols: []string{"AAPL,msft"}}
	assert.Equal(t, Key(c), Key(d))
}

func TestKey_ProviderAndOrderBy(t *testing.T) {
	q := model.QueryParams{AssetClass: model.Crypto, DataType: model.TopTraded, OrderBy: "volume", Provider: "Upbit"}
	assert.Equal(t, "market:crypto:top-traded:::orderBy=volume&provider=upbit", Key(q))
}

func TestTopicAndLogoKey(t *testing.T) {
	assert.Equal(t, "market:equity:gainers", Topic(model.Equity, model.Gainers))
	assert.Equal(t, "market:crypto:logos", LogoKey(model.Crypto))
}

func TestMemStore_TTL(t *testing.T) {
	now := time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)
	s := NewMemStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 10*time.Second))
	b, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(b))

	now = now.Add(10 * time.Second)
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestGetJSON_CorruptEntryDeleted(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "bad", []byte("{not json"), time.Minute))

	_, ok, err := GetJSON[[]model.Record](ctx, s, "bad")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrCorrupt)
	_, found, _ := s.Get(ctx, "bad")
	assert.False(t, found)
}

func TestJSONRoundTripThroughStore(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	in := map[string]string{"AAPL": "https://img.logo.dev/ticker/AAPL"}
	require.NoError(t, SetJSON(ctx, s, LogoKey(model.Equity), in, time.Hour))

	out, ok, err := GetJSON[map[string]string](ctx, s, LogoKey(model.Equity))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in, out)
}

func TestWithJitter(t *testing.T) {
	assert.Equal(t, time.Minute, WithJitter(time.Minute, 0))
	for i := 0; i < 20; i++ {
		d := WithJitter(time.Minute, 300*time.Millisecond)
		assert.GreaterOrEqual(t, d, time.Minute)
		assert.Less(t, d, time.Minute+300*time.Millisecond)
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	s := NewRedisStore(rdb)
	ctx := context.Background()

	key := "market:test:redis-store:" + time.Now().Format(time.RFC3339Nano)
	_, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, key, []byte("v"), time.Second))
	b, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(b))

	require.NoError(t, s.Del(ctx, key))
	_, ok, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
