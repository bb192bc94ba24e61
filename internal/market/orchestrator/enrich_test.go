package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quotehub.com/internal/market/cache"
	"quotehub.com/internal/market/model"
	"quotehub.com/internal/market/providers/logodev"
	"quotehub.com/internal/market/ttl"
)

type countingLogos struct {
	n       atomic.Int32
	missing map[string]bool
	fail    map[string]bool
}

func (c *countingLogos) Lookup(_ context.Context, symbol string) (string, error) {
	c.n.Add(1)
	switch {
	case c.fail[symbol]:
		return "", errors.New("timeout")
	case c.missing[symbol]:
		return "", logodev.ErrNotFound
	}
	return "https://logo/" + symbol, nil
}

func TestLogoEnricher_CapsLookupsAndCaches(t *testing.T) {
	store := cache.NewMemStore()
	src := &countingLogos{missing: map[string]bool{"S0": true}}
	e := NewLogoEnricher(store, src)
	cfg := DataTypeConfig{DataType: model.MostActive, WithLogo: true}
	q := model.QueryParams{AssetClass: model.Equity, DataType: model.MostActive}

	recs := make([]model.Record, 150)
	for i := range recs {
		recs[i] = rec(fmt.Sprintf("S%d", i), "")
	}

	out, err := e.Enrich(context.Background(), q, cfg, recs)
	require.NoError(t, err)
	assert.Equal(t, int32(maxLogoLookup), src.n.Load())
	assert.Empty(t, out[0].Logo)
	assert.Equal(t, "https://logo/S1", out[1].Logo)
	assert.Empty(t, out[120].Logo)

	logos, ok, err := cache.GetJSON[map[string]string](context.Background(), store, cache.LogoKey(model.Equity))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, logos, maxLogoLookup)
	assert.Equal(t, logoNotFound, logos["S0"])

	left, ok := store.TTL(cache.LogoKey(model.Equity))
	require.True(t, ok)
	assert.InDelta(t, logoTTL.Seconds(), left.Seconds(), 5)

	// 第二次只查剩下的 50 个
	out, err = e.Enrich(context.Background(), q, cfg, recs)
	require.NoError(t, err)
	assert.Equal(t, int32(150), src.n.Load())
	assert.Equal(t, "https://logo/S149", out[149].Logo)
}

func TestLogoEnricher_TransientErrorNotCached(t *testing.T) {
	store := cache.NewMemStore()
	src := &countingLogos{fail: map[string]bool{"AAPL": true}}
	e := NewLogoEnricher(store, src)
	cfg := DataTypeConfig{WithLogo: true}
	q := model.QueryParams{AssetClass: model.Equity}

	_, err := e.Enrich(context.Background(), q, cfg, []model.Record{rec("AAPL", "")})
	require.NoError(t, err)
	_, err = e.Enrich(context.Background(), q, cfg, []model.Record{rec("AAPL", "")})
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.n.Load())
}

func TestLogoEnricher_SkippedWithoutFlag(t *testing.T) {
	src := &countingLogos{}
	e := NewLogoEnricher(cache.NewMemStore(), src)
	out, err := e.Enrich(context.Background(), model.QueryParams{}, DataTypeConfig{}, []model.Record{rec("AAPL", "")})
	require.NoError(t, err)
	assert.Empty(t, out[0].Logo)
	assert.Zero(t, src.n.Load())
}

type brokenStore struct{ cache.Store }

func (brokenStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("redis down")
}

func TestEnrichFailureDegrades(t *testing.T) {
	caller := newFakeCaller()
	caller.data[model.Gainers] = []model.Record{rec("AAPL", "")}
	store := cache.NewMemStore()
	svc := NewService(caller, store, equityConfig(
		DataTypeConfig{DataType: model.Gainers, TTL: ttl.Const(time.Minute)},
	), WithEnrichers(NewNameEnricher(brokenStore{store})))

	out, err := svc.GetMarketData(context.Background(), model.QueryParams{AssetClass: model.Equity, DataType: model.Gainers})
	require.NoError(t, err)
	require.Len(t, out, 1)
	// 补全失败，原样返回
	assert.Empty(t, out[0].Name)
}
