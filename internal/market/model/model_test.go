package model

import (
	"errors"
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_SymbolsCanonical(t *testing.T) {
	a := QueryParams{AssetClass: Equity, DataType: Candles, Symbols: []string{"aapl", "AAPL"}}.Normalize()
	b := QueryParams{AssetClass: Equity, DataType: Candles, Symbols: []string{"AAPL"}}.Normalize()
	assert.Equal(t, b.Symbols, a.Symbols)

	c := QueryParams{Symbols: []string{" msft, aapl ", "", "Tsla"}}.Normalize()
	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, c.Symbols)
}

func TestNormalize_Idempotent(t *testing.T) {
	q := QueryParams{
		AssetClass: Crypto,
		DataType:   Candles,
		Symbols:    []string{"eth", "btc,ETH"},
		Timeframe:  "1d",
		Provider:   " Upbit ",
		Limit:      -3,
	}
	once := q.Normalize()
	assert.Equal(t, once, once.Normalize())
	assert.Equal(t, TF1Day, once.Timeframe)
	assert.Equal(t, "upbit", once.Provider)
	assert.Equal(t, 0, once.Limit)
}

func TestNormalize_EmptySymbols(t *testing.T) {
	assert.Nil(t, QueryParams{Symbols: []string{" ", ","}}.Normalize().Symbols)
}

func TestParseAliases(t *testing.T) {
	ac, err := ParseAssetClass("stocks")
	require.NoError(t, err)
	assert.Equal(t, Equity, ac)

	dt, err := ParseDataType("mostActive")
	require.NoError(t, err)
	assert.Equal(t, MostActive, dt)

	dt, err = ParseDataType("topTraded")
	require.NoError(t, err)
	assert.Equal(t, TopTraded, dt)

	_, err = ParseDataType("orderbook")
	assert.True(t, errors.Is(err, ErrUnknownEnum))

	_, err = ParseTimeframe("2T")
	assert.Error(t, err)
	tf, err := ParseTimeframe("")
	require.NoError(t, err)
	assert.Equal(t, Timeframe(""), tf)
}

func TestRecord_JSONShape(t *testing.T) {
	r := Record{
		Asset:  Asset{AssetClass: Equity, Symbol: "AAPL", Name: "Apple Inc."},
		Ticker: &Ticker{Price: decimal.RequireFromString("187.25"), ChangeRate: decimal.RequireFromString("0.0125")},
	}
	b, err := json.Marshal(r)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	// Asset 字段平铺在顶层，价格是字符串
	assert.Equal(t, "AAPL", m["symbol"])
	ticker := m["ticker"].(map[string]any)
	assert.Equal(t, "187.25", ticker["price"])
	assert.Equal(t, "0.0125", ticker["changeRate"])
	assert.NotContains(t, m, "candle")
}

func TestSymbols_Dedup(t *testing.T) {
	recs := []Record{{Asset: Asset{Symbol: "A"}}, {Asset: Asset{Symbol: "B"}}, {Asset: Asset{Symbol: "A"}}, {}}
	assert.Equal(t, []string{"A", "B"}, Symbols(recs))
}
