package orchestrator

import (
	"time"

	"quotehub.com/internal/market/model"
	"quotehub.com/internal/market/ttl"
)

// DataTypeConfig 一个数据类型的缓存策略。TTL 为 nil 表示不缓存（例如 trades）。
type DataTypeConfig struct {
	DataType        model.DataType
	TTL             ttl.Policy
	RefreshInterval time.Duration // 0 = 不做定时刷新
	Warmup          *bool         // nil = 有 RefreshInterval 就预热
	DefaultLimit    int
	WithLogo        bool
}

func (c DataTypeConfig) Cacheable() bool { return c.TTL != nil }

// WarmupEnabled 按 symbol 查询的类型（snapshot / candles）没有默认参数，不预热
func (c DataTypeConfig) WarmupEnabled() bool {
	if !c.Cacheable() {
		return false
	}
	if c.Warmup != nil {
		return *c.Warmup
	}
	return c.RefreshInterval > 0
}

// AssetConfig DataTypes 的顺序有意义：预热和定时刷新都按这个顺序执行，
// assets 必须排在需要名称补全的榜单前面。
type AssetConfig struct {
	AssetClass model.AssetClass
	DataTypes  []DataTypeConfig
}

func (a AssetConfig) lookup(dt model.DataType) (DataTypeConfig, bool) {
	for _, c := range a.DataTypes {
		if c.DataType == dt {
			return c, true
		}
	}
	return DataTypeConfig{}, false
}

const (
	everyMinute  = time.Minute
	every12Hours = 12 * time.Hour
)

// DefaultAssetConfigs equityClock 判断美股开闭市
func DefaultAssetConfigs(equityClock ttl.MarketClock) []AssetConfig {
	crypto := ttl.AlwaysOpen{}
	return []AssetConfig{
		{
			AssetClass: model.Equity,
			DataTypes: []DataTypeConfig{
				{DataType: model.Assets, TTL: ttl.Const(every12Hours), RefreshInterval: every12Hours},
				{DataType: model.MostActive, TTL: ttl.Const(time.Minute), RefreshInterval: everyMinute, DefaultLimit: 50, WithLogo: true},
				{DataType: model.Gainers, TTL: ttl.Const(time.Minute), RefreshInterval: everyMinute, DefaultLimit: 50, WithLogo: true},
				{DataType: model.Losers, TTL: ttl.Const(time.Minute), RefreshInterval: everyMinute, DefaultLimit: 50, WithLogo: true},
				{DataType: model.SymbolSnapshot, TTL: ttl.MarketHours(equityClock, 10*time.Second, 60*time.Second)},
				{DataType: model.Candles, TTL: ttl.Candles(equityClock)},
				{DataType: model.Trades},
			},
		},
		{
			AssetClass: model.Crypto,
			DataTypes: []DataTypeConfig{
				{DataType: model.Assets, TTL: ttl.Const(every12Hours), RefreshInterval: every12Hours},
				{DataType: model.TopTraded, TTL: ttl.Const(time.Minute), RefreshInterval: everyMinute, DefaultLimit: 200},
				// 只在有人请求时刷新
				{DataType: model.MostActive, TTL: ttl.Const(time.Minute), DefaultLimit: 50},
				{DataType: model.Gainers, TTL: ttl.Const(time.Minute), DefaultLimit: 50},
				{DataType: model.Losers, TTL: ttl.Const(time.Minute), DefaultLimit: 50},
				{DataType: model.SymbolSnapshot, TTL: ttl.MarketHours(crypto, 10*time.Second, 10*time.Second)},
				{DataType: model.Candles, TTL: ttl.Candles(crypto)},
				{DataType: model.Trades},
			},
		},
	}
}
